package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderLocal  = "local"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultOllamaModel = "nomic-embed-text"
	DefaultLocalModel  = "local-hash-v1"

	// Default endpoints
	DefaultJinaURL   = "https://api.jina.ai/v1"
	DefaultOpenAIURL = "https://api.openai.com/v1"
	DefaultOllamaURL = "http://localhost:11434"

	// Dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536
	OllamaDimension = 768
	LocalDimension  = 384

	// API key environment variables, consulted when no key is configured
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"

	// Batch limits
	DefaultBatchSize = 32
	MaxBatchSize     = 100

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0

	defaultTimeout = 30 * time.Second
)

// APIProvider implements Embedder for OpenAI-compatible /embeddings APIs
// (OpenAI and Jina AI).
type APIProvider struct {
	name       string
	baseURL    string
	apiKey     string
	model      string
	dimension  int
	httpClient *http.Client
	cache      *Cache
	retry      RetryConfig
}

// NewJinaProvider creates a Jina AI embedder. An empty apiKey falls back to
// the JINA_API_KEY environment variable.
func NewJinaProvider(cfg Config, cache *Cache) (*APIProvider, error) {
	return newAPIProvider(ProviderJina, DefaultJinaURL, EnvJinaAPIKey, DefaultJinaModel, JinaDimension, cfg, cache)
}

// NewOpenAIProvider creates an OpenAI embedder. An empty apiKey falls back to
// the OPENAI_API_KEY environment variable.
func NewOpenAIProvider(cfg Config, cache *Cache) (*APIProvider, error) {
	return newAPIProvider(ProviderOpenAI, DefaultOpenAIURL, EnvOpenAIAPIKey, DefaultOpenAIModel, OpenAIDimension, cfg, cache)
}

func newAPIProvider(name, defaultURL, keyEnv, defaultModel string, defaultDim int, cfg Config, cache *Cache) (*APIProvider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(keyEnv)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, keyEnv)
	}

	p := &APIProvider{
		name:       name,
		baseURL:    strings.TrimRight(orDefault(cfg.BaseURL, defaultURL), "/"),
		apiKey:     apiKey,
		model:      orDefault(cfg.Model, defaultModel),
		dimension:  cfg.Dimension,
		httpClient: &http.Client{Timeout: orDefaultDuration(cfg.Timeout, defaultTimeout)},
		cache:      cache,
		retry:      DefaultRetryConfig(),
	}
	if p.dimension <= 0 {
		p.dimension = defaultDim
	}
	return p, nil
}

// EnsureModelAvailable implements Embedder. Hosted models are always
// available once a key is configured; a one-text probe confirms the key.
func (p *APIProvider) EnsureModelAvailable(ctx context.Context) error {
	if _, err := p.callAPI(ctx, []string{"ping"}, p.model); err != nil {
		return fmt.Errorf("%w: %s/%s: %v", ErrModelUnavailable, p.name, p.model, err)
	}
	return nil
}

func (p *APIProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}

	return resp.Embeddings[0], nil
}

func (p *APIProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	model := orDefault(req.Model, p.model)

	embeddings, err := embedCached(ctx, p.cache, p.name, model, req.Texts, func(ctx context.Context, texts []string) ([][]float32, error) {
		vectors, err := retryWithBackoff(ctx, p.retry, func() ([][]float32, error) {
			return p.callAPI(ctx, texts, model)
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
		Provider:   p.name,
		Model:      model,
	}, nil
}

func (p *APIProvider) callAPI(ctx context.Context, texts []string, model string) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"input": texts,
		"model": model,
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}

	headers := map[string]string{"Authorization": "Bearer " + p.apiKey}
	if err := postJSON(ctx, p.httpClient, p.baseURL+"/embeddings", headers, reqBody, &apiResp); err != nil {
		return nil, err
	}

	// The API may return data out of input order.
	sort.Slice(apiResp.Data, func(i, j int) bool {
		return apiResp.Data[i].Index < apiResp.Data[j].Index
	})

	vectors := make([][]float32, len(apiResp.Data))
	for i, data := range apiResp.Data {
		vectors[i] = data.Embedding
	}
	return vectors, nil
}

func (p *APIProvider) Dimension() int {
	return p.dimension
}

func (p *APIProvider) Provider() string {
	return p.name
}

func (p *APIProvider) Model() string {
	return p.model
}

func (p *APIProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// postJSON POSTs body as JSON and decodes a 200 response into out. Non-200
// responses become errors carrying the status and body; 4xx other than 429
// are marked permanent so they are not retried.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := fmt.Errorf("api error %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return permanent(apiErr)
		}
		return apiErr
	}

	return decodeJSON(resp.Body, out)
}

func decodeJSON(r io.Reader, out interface{}) error {
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orDefaultDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
