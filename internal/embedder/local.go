package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// LocalProvider is an offline embedder that hashes identifier tokens into a
// fixed-size signed feature vector. Texts sharing vocabulary land close
// together, so it supports real (if shallow) lexical search without a model
// server.
type LocalProvider struct {
	dimension int
	cache     *Cache
}

// NewLocalProvider creates a local feature-hashing embedder.
func NewLocalProvider(cfg Config, cache *Cache) *LocalProvider {
	dim := cfg.Dimension
	if dim <= 0 {
		dim = LocalDimension
	}
	return &LocalProvider{dimension: dim, cache: cache}
}

func (p *LocalProvider) EnsureModelAvailable(ctx context.Context) error {
	return ctx.Err()
}

func (p *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

func (p *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}
	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	embeddings, err := embedCached(ctx, p.cache, ProviderLocal, DefaultLocalModel, req.Texts, func(ctx context.Context, texts []string) ([][]float32, error) {
		vectors := make([][]float32, len(texts))
		for i, text := range texts {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			vectors[i] = p.hashVector(text)
		}
		return vectors, nil
	})
	if err != nil {
		return nil, err
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      DefaultLocalModel,
	}, nil
}

// hashVector builds a unit vector from token features. Each feature picks a
// bucket with one hash and a sign with another.
func (p *LocalProvider) hashVector(text string) []float32 {
	vec := make([]float32, p.dimension)
	features := tokenize(text)
	if len(features) == 0 {
		features = []string{strings.TrimSpace(text)}
	}

	for _, f := range features {
		h := fnv.New64a()
		_, _ = h.Write([]byte(f))
		sum := h.Sum64()
		bucket := int(sum % uint64(p.dimension))
		sign := float32(1)
		if (sum>>63)&1 == 1 {
			sign = -1
		}
		vec[bucket] += sign
	}

	normalized := NormalizeVector(vec)
	if isZero(normalized) {
		// Opposite-signed collisions cancelled out; keep the vector non-zero.
		normalized[0] = 1
	}
	return normalized
}

// tokenize lowercases alphanumeric runs and also emits their camelCase and
// snake_case parts.
func tokenize(text string) []string {
	var tokens []string
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	for _, w := range words {
		lower := strings.ToLower(w)
		tokens = append(tokens, lower)
		parts := splitIdentifier(w)
		if len(parts) > 1 {
			for _, part := range parts {
				tokens = append(tokens, strings.ToLower(part))
			}
		}
	}
	return tokens
}

func splitIdentifier(w string) []string {
	var parts []string
	for _, seg := range strings.Split(w, "_") {
		if seg == "" {
			continue
		}
		runes := []rune(seg)
		start := 0
		for i := 1; i < len(runes); i++ {
			if unicode.IsUpper(runes[i]) && !unicode.IsUpper(runes[i-1]) {
				parts = append(parts, string(runes[start:i]))
				start = i
			}
		}
		parts = append(parts, string(runes[start:]))
	}
	return parts
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func (p *LocalProvider) Dimension() int {
	return p.dimension
}

func (p *LocalProvider) Provider() string {
	return ProviderLocal
}

func (p *LocalProvider) Model() string {
	return DefaultLocalModel
}

func (p *LocalProvider) Close() error {
	return nil
}
