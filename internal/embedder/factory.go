package embedder

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds embedder configuration
type Config struct {
	Provider  string        // jina, openai, ollama, local; empty auto-detects
	Model     string        // empty selects the provider default
	BaseURL   string        // empty selects the provider default
	APIKey    string        // falls back to the provider's environment variable
	Dimension int           // 0 selects the provider default
	CacheSize int           // 0 disables caching
	Timeout   time.Duration // per HTTP request
}

// New creates an embedder for cfg.Provider. An empty provider is resolved
// with DetectProvider.
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = DetectProvider(cfg)
	}

	switch provider {
	case ProviderJina:
		return NewJinaProvider(cfg, cache)
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg, cache)
	case ProviderOllama:
		return NewOllamaProvider(cfg, cache), nil
	case ProviderLocal:
		return NewLocalProvider(cfg, cache), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// DetectProvider returns the provider that New would pick for an unset
// Provider. Priority: an explicit API key in cfg or the environment (Jina,
// then OpenAI), then Ollama when a base URL is configured, then local.
func DetectProvider(cfg Config) string {
	if cfg.Provider != "" {
		return strings.ToLower(cfg.Provider)
	}
	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	if cfg.BaseURL != "" {
		return ProviderOllama
	}
	return ProviderLocal
}
