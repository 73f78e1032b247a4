package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIProviderBatchOrdering(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		// Reply in reverse order; the provider must reorder by index.
		type item struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		var data []item
		for i := len(body.Input) - 1; i >= 0; i-- {
			data = append(data, item{Embedding: []float32{float32(i), 1}, Index: i})
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data, "model": body.Model})
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(Config{BaseURL: srv.URL, APIKey: "secret", Dimension: 2}, NewCache(10))
	require.NoError(t, err)
	defer p.Close()

	resp, err := p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"a", "b", "c"}})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 3)
	for i, emb := range resp.Embeddings {
		assert.Equal(t, float32(i), emb.Vector[0])
	}
	assert.Equal(t, ProviderOpenAI, resp.Provider)
	assert.Equal(t, DefaultOpenAIModel, resp.Model)

	_, err = p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"a", "b", "c"}})
	require.NoError(t, err)
	assert.Equal(t, int32(1), requests.Load(), "second batch is served from cache")
}

func TestAPIProviderMissingKey(t *testing.T) {
	t.Setenv(EnvJinaAPIKey, "")
	_, err := NewJinaProvider(Config{}, nil)
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
}

func TestAPIProviderClientErrorIsNotRetried(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, err := NewJinaProvider(Config{BaseURL: srv.URL, APIKey: "k"}, nil)
	require.NoError(t, err)

	_, err = p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"x"}})
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.Equal(t, int32(1), requests.Load())

	assert.ErrorIs(t, p.EnsureModelAvailable(context.Background()), ErrModelUnavailable)
}

func TestAPIProviderServerErrorIsRetried(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"embedding": []float32{1, 0}, "index": 0}},
		})
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(Config{BaseURL: srv.URL, APIKey: "k"}, nil)
	require.NoError(t, err)
	p.retry.BaseDelay = time.Millisecond

	emb, err := p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, emb.Vector)
	assert.Equal(t, int32(3), requests.Load())
}

func newOllamaServer(t *testing.T, models []string, pulled *atomic.Bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			var list []map[string]string
			for _, m := range models {
				list = append(list, map[string]string{"name": m, "model": m})
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"models": list})
		case "/api/pull":
			var body struct {
				Model  string `json:"model"`
				Stream bool   `json:"stream"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.False(t, body.Stream)
			pulled.Store(true)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "success"})
		case "/api/embed":
			var body struct {
				Model string   `json:"model"`
				Input []string `json:"input"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			out := make([][]float32, len(body.Input))
			for i := range body.Input {
				out[i] = []float32{0.6, 0.8, 0}
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"embeddings": out})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestOllamaEnsureModelAvailable(t *testing.T) {
	t.Run("present with latest tag", func(t *testing.T) {
		var pulled atomic.Bool
		srv := newOllamaServer(t, []string{"nomic-embed-text:latest"}, &pulled)
		defer srv.Close()

		p := NewOllamaProvider(Config{BaseURL: srv.URL}, nil)
		require.NoError(t, p.EnsureModelAvailable(context.Background()))
		assert.False(t, pulled.Load())
		assert.Equal(t, 3, p.Dimension(), "dimension learned from probe")
	})

	t.Run("missing model is pulled", func(t *testing.T) {
		var pulled atomic.Bool
		srv := newOllamaServer(t, nil, &pulled)
		defer srv.Close()

		p := NewOllamaProvider(Config{BaseURL: srv.URL, Model: "all-minilm"}, nil)
		require.NoError(t, p.EnsureModelAvailable(context.Background()))
		assert.True(t, pulled.Load())
	})

	t.Run("unreachable server", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		p := NewOllamaProvider(Config{BaseURL: url, Timeout: time.Second}, nil)
		assert.ErrorIs(t, p.EnsureModelAvailable(context.Background()), ErrModelUnavailable)
	})
}

func TestOllamaGenerateBatch(t *testing.T) {
	var pulled atomic.Bool
	srv := newOllamaServer(t, []string{"nomic-embed-text"}, &pulled)
	defer srv.Close()

	p := NewOllamaProvider(Config{BaseURL: srv.URL}, NewCache(4))
	resp, err := p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Len(t, resp.Embeddings, 2)
	assert.Equal(t, ProviderOllama, resp.Provider)

	_, err = p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"a"}, Model: "other"})
	assert.ErrorIs(t, err, ErrUnsupportedModel)
}

func TestRetryWithBackoff(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}

	t.Run("permanent error stops", func(t *testing.T) {
		calls := 0
		_, err := retryWithBackoff(context.Background(), cfg, func() (int, error) {
			calls++
			return 0, permanent(errors.New("nope"))
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		_, err := retryWithBackoff(context.Background(), cfg, func() (int, error) {
			calls++
			return 0, errors.New("flaky")
		})
		assert.EqualError(t, err, "flaky")
		assert.Equal(t, 3, calls)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := retryWithBackoff(ctx, cfg, func() (int, error) {
			return 0, errors.New("flaky")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNewSelectsProvider(t *testing.T) {
	t.Setenv(EnvJinaAPIKey, "")
	t.Setenv(EnvOpenAIAPIKey, "")

	emb, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, emb.Provider())

	emb, err = New(Config{BaseURL: "http://localhost:1"})
	require.NoError(t, err)
	assert.Equal(t, ProviderOllama, emb.Provider())

	t.Setenv(EnvOpenAIAPIKey, "k")
	assert.Equal(t, ProviderOpenAI, DetectProvider(Config{}))

	_, err = New(Config{Provider: "bogus"})
	assert.ErrorIs(t, err, ErrUnsupportedModel)
}
