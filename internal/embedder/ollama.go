package embedder

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
)

// OllamaProvider implements Embedder against a local Ollama server.
type OllamaProvider struct {
	baseURL    string
	model      string
	dimension  atomic.Int64
	httpClient *http.Client
	cache      *Cache
	retry      RetryConfig
}

// NewOllamaProvider creates an Ollama embedder. The dimension is taken from
// cfg when set and otherwise learned from the first embedding returned.
func NewOllamaProvider(cfg Config, cache *Cache) *OllamaProvider {
	p := &OllamaProvider{
		baseURL:    strings.TrimRight(orDefault(cfg.BaseURL, DefaultOllamaURL), "/"),
		model:      orDefault(cfg.Model, DefaultOllamaModel),
		httpClient: &http.Client{Timeout: orDefaultDuration(cfg.Timeout, defaultTimeout)},
		cache:      cache,
		retry:      DefaultRetryConfig(),
	}
	dim := cfg.Dimension
	if dim <= 0 {
		dim = OllamaDimension
	}
	p.dimension.Store(int64(dim))
	return p
}

// EnsureModelAvailable lists the server's models and pulls the configured
// model when it is missing. A probe embedding then fixes the dimension.
func (p *OllamaProvider) EnsureModelAvailable(ctx context.Context) error {
	present, err := p.hasModel(ctx)
	if err != nil {
		return fmt.Errorf("%w: ollama at %s: %v", ErrModelUnavailable, p.baseURL, err)
	}
	if !present {
		if err := p.pull(ctx); err != nil {
			return fmt.Errorf("%w: pull %s: %v", ErrModelUnavailable, p.model, err)
		}
	}

	vectors, err := p.embed(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("%w: probe %s: %v", ErrModelUnavailable, p.model, err)
	}
	if len(vectors) == 1 && len(vectors[0]) > 0 {
		p.dimension.Store(int64(len(vectors[0])))
	}
	return nil
}

func (p *OllamaProvider) hasModel(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return false, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("list models: status %d", resp.StatusCode)
	}

	var tags struct {
		Models []struct {
			Name  string `json:"name"`
			Model string `json:"model"`
		} `json:"models"`
	}
	if err := decodeJSON(resp.Body, &tags); err != nil {
		return false, err
	}

	want := strings.TrimSuffix(p.model, ":latest")
	for _, m := range tags.Models {
		for _, name := range []string{m.Name, m.Model} {
			if strings.TrimSuffix(name, ":latest") == want {
				return true, nil
			}
		}
	}
	return false, nil
}

func (p *OllamaProvider) pull(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	body := map[string]interface{}{"model": p.model, "stream": false}
	if err := postJSON(ctx, p.httpClient, p.baseURL+"/api/pull", nil, body, &out); err != nil {
		return err
	}
	if out.Status != "" && out.Status != "success" {
		return fmt.Errorf("pull status %q", out.Status)
	}
	return nil
}

func (p *OllamaProvider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	body := map[string]interface{}{"model": p.model, "input": texts}
	if err := postJSON(ctx, p.httpClient, p.baseURL+"/api/embed", nil, body, &out); err != nil {
		return nil, err
	}
	return out.Embeddings, nil
}

func (p *OllamaProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}, Model: req.Model})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

func (p *OllamaProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}
	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}
	if req.Model != "" && req.Model != p.model {
		return nil, fmt.Errorf("%w: %s (configured %s)", ErrUnsupportedModel, req.Model, p.model)
	}

	embeddings, err := embedCached(ctx, p.cache, ProviderOllama, p.model, req.Texts, func(ctx context.Context, texts []string) ([][]float32, error) {
		vectors, err := retryWithBackoff(ctx, p.retry, func() ([][]float32, error) {
			return p.embed(ctx, texts)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
		}
		return vectors, nil
	})
	if err != nil {
		return nil, err
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderOllama,
		Model:      p.model,
	}, nil
}

func (p *OllamaProvider) Dimension() int {
	return int(p.dimension.Load())
}

func (p *OllamaProvider) Provider() string {
	return ProviderOllama
}

func (p *OllamaProvider) Model() string {
	return p.model
}

func (p *OllamaProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
