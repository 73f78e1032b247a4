package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/dshills/repoindex/internal/embedder"
	"github.com/dshills/repoindex/internal/statestore"
	"github.com/dshills/repoindex/internal/vectorstore"
	"github.com/dshills/repoindex/pkg/types"
)

var (
	// ErrEmptyQuery is returned for a blank query string.
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrInvalidRequest is returned for other malformed requests.
	ErrInvalidRequest = errors.New("invalid search request")
	// ErrNotIndexed is returned when the repository has no collection.
	ErrNotIndexed = errors.New("repository not indexed")
)

// Defaults for Config fields left at zero.
const (
	DefaultLimit    = 10
	MaxLimit        = 100
	DefaultMinScore = 0.3
	DefaultCacheTTL = 5 * time.Minute
)

// Config controls request defaults and the query cache.
type Config struct {
	DefaultLimit int
	MaxLimit     int
	// MinScore is the similarity floor used when a request has none.
	MinScore  float64
	CacheSize int // 0 disables the query cache
	CacheTTL  time.Duration
}

// DefaultConfig returns the standard search settings.
func DefaultConfig() Config {
	return Config{
		DefaultLimit: DefaultLimit,
		MaxLimit:     MaxLimit,
		MinScore:     DefaultMinScore,
		CacheTTL:     DefaultCacheTTL,
	}
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Repository string
	Query      string
	Limit      int      // <= 0 selects Config.DefaultLimit; capped at Config.MaxLimit
	MinScore   *float64 // nil selects Config.MinScore
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	result    *types.SearchResult
	expiresAt time.Time
}

// Searcher embeds queries and delegates similarity search to the vector
// store. It never re-sorts or re-ranks what the store returns.
type Searcher struct {
	embedder embedder.Embedder
	vectors  vectorstore.Store
	state    statestore.Store
	logger   *zap.Logger
	config   Config

	cache   *lru.Cache[[32]byte, *cacheEntry]
	cacheMu sync.Mutex
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithConfig overrides DefaultConfig. MinScore and CacheSize are taken as
// given; zero limits and TTL keep their defaults.
func WithConfig(cfg Config) Option {
	return func(s *Searcher) {
		if cfg.DefaultLimit > 0 {
			s.config.DefaultLimit = cfg.DefaultLimit
		}
		if cfg.MaxLimit > 0 {
			s.config.MaxLimit = cfg.MaxLimit
		}
		s.config.MinScore = cfg.MinScore
		s.config.CacheSize = cfg.CacheSize
		if cfg.CacheTTL > 0 {
			s.config.CacheTTL = cfg.CacheTTL
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Searcher) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Searcher. state may be nil, in which case model mismatch
// detection is skipped.
func New(emb embedder.Embedder, vectors vectorstore.Store, state statestore.Store, opts ...Option) *Searcher {
	s := &Searcher{
		embedder: emb,
		vectors:  vectors,
		state:    state,
		logger:   zap.NewNop(),
		config:   DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.config.CacheSize > 0 {
		// Only fails for a non-positive size.
		s.cache, _ = lru.New[[32]byte, *cacheEntry](s.config.CacheSize)
	}
	return s
}

// Search embeds req.Query with the indexing embedder and returns the
// collection's nearest chunks at or above the score floor, in the order the
// vector store returned them. Failures are returned as errors; there are no
// partial results.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*types.SearchResult, error) {
	start := time.Now()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if strings.TrimSpace(req.Repository) == "" {
		return nil, fmt.Errorf("%w: repository is required", ErrInvalidRequest)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = s.config.DefaultLimit
	}
	if limit > s.config.MaxLimit {
		limit = s.config.MaxLimit
	}
	minScore := s.config.MinScore
	if req.MinScore != nil {
		minScore = *req.MinScore
	}
	if minScore < -1 || minScore > 1 {
		return nil, fmt.Errorf("%w: min score %v outside [-1, 1]", ErrInvalidRequest, minScore)
	}

	collection := types.SanitizeName(req.Repository)
	log := s.logger.With(zap.String("repository", req.Repository), zap.String("collection", collection))

	key := cacheKey(collection, s.embedder.Model(), query, limit, minScore)
	if cached := s.checkCache(key); cached != nil {
		cached.Duration = time.Since(start)
		return cached, nil
	}

	mismatch := s.modelMismatch(ctx, req.Repository, log)

	emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := s.vectors.Search(ctx, collection, emb.Vector, limit, minScore)
	if errors.Is(err, vectorstore.ErrCollectionNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotIndexed, req.Repository)
	}
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", collection, err)
	}
	if hits == nil {
		hits = []types.SearchHit{}
	}

	result := &types.SearchResult{
		Query:         query,
		Repository:    req.Repository,
		Collection:    collection,
		Hits:          hits,
		ModelMismatch: mismatch,
		Duration:      time.Since(start),
	}
	s.storeInCache(key, result)

	log.Debug("search completed",
		zap.Int("limit", limit),
		zap.Float64("min_score", minScore),
		zap.Int("hits", len(hits)),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// modelMismatch reports whether the repository's manifest was built with a
// different embedding model than the one answering queries. Scores are then
// meaningless, but the search still runs.
func (s *Searcher) modelMismatch(ctx context.Context, repository string, log *zap.Logger) bool {
	if s.state == nil {
		return false
	}
	m, err := s.state.Load(ctx, repository)
	if err != nil {
		if !errors.Is(err, statestore.ErrNotFound) {
			log.Warn("loading manifest for model check failed", zap.Error(err))
		}
		return false
	}
	if m.EmbeddingModel == "" || m.EmbeddingModel == s.embedder.Model() {
		return false
	}
	log.Warn("embedding model mismatch, scores are not comparable",
		zap.String("indexed_model", m.EmbeddingModel),
		zap.String("query_model", s.embedder.Model()),
	)
	return true
}

// checkCache returns a copy of a live cached result, or nil.
func (s *Searcher) checkCache(key [32]byte) *types.SearchResult {
	if s.cache == nil {
		return nil
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	entry, ok := s.cache.Get(key)
	if !ok {
		return nil
	}
	if time.Now().After(entry.expiresAt) {
		s.cache.Remove(key)
		return nil
	}
	return copyResult(entry.result)
}

func (s *Searcher) storeInCache(key [32]byte, result *types.SearchResult) {
	if s.cache == nil {
		return
	}
	s.cacheMu.Lock()
	s.cache.Add(key, &cacheEntry{result: copyResult(result), expiresAt: time.Now().Add(s.config.CacheTTL)})
	s.cacheMu.Unlock()
}

// InvalidateCache drops every cached result. Call it after a repository is
// re-indexed or reset.
func (s *Searcher) InvalidateCache() {
	if s.cache == nil {
		return
	}
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

func copyResult(src *types.SearchResult) *types.SearchResult {
	dst := *src
	dst.Hits = make([]types.SearchHit, len(src.Hits))
	copy(dst.Hits, src.Hits)
	return &dst
}

// cacheKey computes a unique hash for a resolved search request
func cacheKey(collection, model, query string, limit int, minScore float64) [32]byte {
	return sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d|%.4f", collection, model, query, limit, minScore)))
}
