package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/repoindex/internal/chunker"
	"github.com/dshills/repoindex/internal/discovery"
	"github.com/dshills/repoindex/internal/embedder"
	"github.com/dshills/repoindex/internal/fingerprint"
	"github.com/dshills/repoindex/internal/statestore"
	"github.com/dshills/repoindex/internal/vectorstore"
	"github.com/dshills/repoindex/pkg/types"
)

var (
	// ErrIndexInProgress is returned when the repository is already being
	// indexed or reset by this process.
	ErrIndexInProgress = errors.New("indexing already in progress")
	// ErrInvalidPath is returned when the repository path is not an existing directory.
	ErrInvalidPath = errors.New("invalid repository path")
)

// Defaults for Config fields left at zero.
const (
	DefaultWorkers   = 4
	DefaultBatchSize = 32
)

// Config contains configuration for the indexer
type Config struct {
	Workers         int      // Concurrent chunking workers (default: 4)
	BatchSize       int      // Chunks per embed + upsert call (default: 32)
	IncludePatterns []string // Used when a request carries none
	ExcludePatterns []string // Used when a request carries none
}

// Phase names reported through Progress.
const (
	PhaseSetup    = "setup"
	PhaseDiscover = "discover"
	PhaseClassify = "classify"
	PhaseRemove   = "remove"
	PhaseChunk    = "chunk"
	PhaseEmbed    = "embed"
	PhaseSave     = "save"
)

// Progress is an advisory snapshot of a running index. It never influences
// control flow.
type Progress struct {
	Phase          string
	Total          int // files to chunk, or chunks to embed in PhaseEmbed
	Processed      int
	Failed         int
	ChunksEmbedded int
}

// IndexRequest describes one indexing run.
type IndexRequest struct {
	Path            string   // repository root; must be an existing directory
	Name            string   // display name; defaults to the root's base name
	IncludePatterns []string // defaults to Config.IncludePatterns
	ExcludePatterns []string // defaults to Config.ExcludePatterns
	Force           bool     // drop the collection and re-index every file

	// OnProgress, when set, receives progress updates. During the chunk
	// phase it is called from several worker goroutines at once, so it must
	// be safe for concurrent use.
	OnProgress func(Progress)
}

// Indexer coordinates the indexing pipeline:
// discover -> classify -> remove stale -> chunk -> embed -> upsert -> save manifest
type Indexer struct {
	embedder   embedder.Embedder
	vectors    vectorstore.Store
	state      statestore.Store
	registry   *chunker.Registry
	discoverer *discovery.Discoverer
	logger     *zap.Logger
	metrics    *Metrics
	config     Config
	locks      lockSet
	now        func() time.Time
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithConfig sets worker, batch and default pattern settings.
func WithConfig(cfg Config) Option {
	return func(idx *Indexer) { idx.config = cfg }
}

// WithRegistry replaces the default chunker registry.
func WithRegistry(r *chunker.Registry) Option {
	return func(idx *Indexer) { idx.registry = r }
}

// WithDiscoverer replaces the default file discoverer.
func WithDiscoverer(d *discovery.Discoverer) Option {
	return func(idx *Indexer) { idx.discoverer = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(idx *Indexer) { idx.metrics = m }
}

// New creates a new Indexer instance
func New(emb embedder.Embedder, vectors vectorstore.Store, state statestore.Store, opts ...Option) *Indexer {
	idx := &Indexer{
		embedder: emb,
		vectors:  vectors,
		state:    state,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(idx)
	}

	if idx.registry == nil {
		idx.registry = chunker.NewDefaultRegistry(chunker.Options{})
	}
	if idx.discoverer == nil {
		idx.discoverer = discovery.New(discovery.WithLogger(idx.logger))
	}
	if idx.config.Workers <= 0 {
		idx.config.Workers = DefaultWorkers
	}
	if idx.config.BatchSize <= 0 {
		idx.config.BatchSize = DefaultBatchSize
	}
	if idx.config.BatchSize > embedder.MaxBatchSize {
		idx.config.BatchSize = embedder.MaxBatchSize
	}
	return idx
}

// run holds the state of one Index call. The three accumulators are filled
// concurrently by the chunking workers.
type run struct {
	req        IndexRequest
	root       string
	name       string
	collection string
	include    []string
	exclude    []string
	started    time.Time

	chunksMu sync.Mutex
	chunks   []types.CodeChunk

	entriesMu sync.Mutex
	entries   map[string]types.IndexedFile

	failedMu sync.Mutex
	failed   []types.FailedFile

	processed atomic.Int64
}

func (r *run) addChunks(chunks []types.CodeChunk) {
	r.chunksMu.Lock()
	r.chunks = append(r.chunks, chunks...)
	r.chunksMu.Unlock()
}

func (r *run) addEntry(e types.IndexedFile) {
	r.entriesMu.Lock()
	r.entries[e.RelativePath] = e
	r.entriesMu.Unlock()
}

func (r *run) fail(path string, err error) {
	r.failedMu.Lock()
	r.failed = append(r.failed, types.FailedFile{Path: path, Error: err.Error()})
	r.failedMu.Unlock()
}

func (r *run) failedCount() int {
	r.failedMu.Lock()
	defer r.failedMu.Unlock()
	return len(r.failed)
}

func (r *run) progress(p Progress) {
	if r.req.OnProgress != nil {
		r.req.OnProgress(p)
	}
}

// Index brings the repository's collection and manifest up to date with the
// files on disk. Only added and updated files are chunked and embedded.
//
// The returned error is non-nil exactly when result.Success is false. Setup
// failures (invalid path, embedding model unavailable, collection or manifest
// unusable, discovery failure) return zero counts and write no manifest. A
// failed embed or upsert batch, or cancellation, aborts the run after saving
// a manifest that holds only files whose vectors are fully stored.
func (idx *Indexer) Index(ctx context.Context, req IndexRequest) (*types.IndexingResult, error) {
	started := idx.now()

	root, name, err := resolveRoot(req.Path, req.Name)
	if err != nil {
		return idx.failSetup(&types.IndexingResult{Repository: req.Name}, started, err)
	}

	r := &run{
		req:        req,
		root:       root,
		name:       name,
		collection: types.SanitizeName(name),
		include:    req.IncludePatterns,
		exclude:    req.ExcludePatterns,
		started:    started,
		entries:    make(map[string]types.IndexedFile),
	}
	if len(r.include) == 0 {
		r.include = idx.config.IncludePatterns
	}
	if len(r.exclude) == 0 {
		r.exclude = idx.config.ExcludePatterns
	}
	result := &types.IndexingResult{Repository: name, Collection: r.collection}

	lock := idx.locks.get(r.collection)
	if !lock.TryAcquire() {
		return idx.failSetup(result, started, fmt.Errorf("%w: %s", ErrIndexInProgress, name))
	}
	defer lock.Release()

	log := idx.logger.With(zap.String("repository", name), zap.String("collection", r.collection))
	log.Info("indexing started", zap.String("root", root), zap.Bool("force", req.Force))

	r.progress(Progress{Phase: PhaseSetup})
	manifest, err := idx.setup(ctx, r, log)
	if err != nil {
		return idx.failSetup(result, started, err)
	}

	r.progress(Progress{Phase: PhaseDiscover})
	files, err := idx.discoverer.Discover(ctx, root, r.include, r.exclude)
	if err != nil {
		return idx.failSetup(result, started, fmt.Errorf("discovering files: %w", err))
	}

	r.progress(Progress{Phase: PhaseClassify, Total: len(files)})
	changes := Classify(files, manifest.Files, root)
	for _, u := range changes.Unreadable {
		log.Warn("file unreadable, excluded from manifest", zap.String("path", u.Path), zap.String("error", u.Error))
	}
	r.failed = append(r.failed, changes.Unreadable...)
	log.Debug("classified files",
		zap.Int("added", len(changes.Added)),
		zap.Int("updated", len(changes.Updated)),
		zap.Int("removed", len(changes.Removed)),
		zap.Int("unchanged", len(changes.Unchanged)),
		zap.Int("unreadable", len(changes.Unreadable)),
	)

	// Stale vectors must be gone before any worker re-adds a path.
	r.progress(Progress{Phase: PhaseRemove, Total: len(changes.Removed)})
	for _, rel := range changes.Removed {
		if err := idx.vectors.DeleteByFilePath(ctx, r.collection, rel); err != nil {
			return idx.failSetup(result, started, fmt.Errorf("removing vectors for %s: %w", rel, err))
		}
	}

	changed := changes.Changed()
	chunkErr := idx.chunkFiles(ctx, r, changed)

	var embedErr error
	upserted := map[string]int{}
	if chunkErr == nil {
		upserted, embedErr = idx.embedChunks(ctx, r, log)
	}

	// Merge: unchanged entries carried verbatim plus changed files whose
	// chunks are all stored.
	next := &types.IndexManifest{
		Repository:        name,
		RootPath:          root,
		CreatedAt:         manifest.CreatedAt,
		UpdatedAt:         idx.now(),
		EmbeddingProvider: idx.embedder.Provider(),
		EmbeddingModel:    idx.embedder.Model(),
		Dimension:         idx.embedder.Dimension(),
		Collection:        r.collection,
		IncludePatterns:   r.include,
		ExcludePatterns:   r.exclude,
		Files:             make(map[string]types.IndexedFile, len(changes.Unchanged)+len(r.entries)),
	}
	for _, e := range changes.Unchanged {
		next.Files[e.RelativePath] = e
	}

	abortErr := chunkErr
	if abortErr == nil {
		abortErr = embedErr
	}
	for _, cf := range changed {
		rel := cf.File.RelativePath
		e, ok := r.entries[rel]
		if !ok {
			continue // already recorded as failed
		}
		if upserted[rel] != e.ChunkCount {
			r.failed = append(r.failed, types.FailedFile{Path: rel, Error: fmt.Sprintf("not indexed: %v", abortErr)})
			continue
		}
		next.Files[rel] = e
		if cf.Previous == nil {
			result.FilesAdded++
		} else {
			result.FilesUpdated++
		}
	}
	// Files that never reached a worker because the run was cancelled.
	if chunkErr != nil {
		for _, cf := range changed {
			if _, ok := r.entries[cf.File.RelativePath]; !ok && !r.hasFailed(cf.File.RelativePath) {
				r.failed = append(r.failed, types.FailedFile{Path: cf.File.RelativePath, Error: fmt.Sprintf("not indexed: %v", chunkErr)})
			}
		}
	}

	r.progress(Progress{Phase: PhaseSave})
	next.Revision = sourceRevision(root)
	saveErr := idx.state.Save(ctx, name, next)
	if saveErr != nil && abortErr != nil {
		// A cancelled context also fails the save; retry detached so the
		// partial manifest still lands.
		saveErr = idx.state.Save(context.WithoutCancel(ctx), name, next)
	}

	sort.Slice(r.failed, func(i, j int) bool { return r.failed[i].Path < r.failed[j].Path })
	result.FilesRemoved = len(changes.Removed)
	result.FilesSkipped = len(changes.Unchanged)
	result.TotalChunks = next.TotalChunks()
	result.FailedFiles = r.failed
	result.Duration = idx.now().Sub(started)

	idx.metrics.files("added", result.FilesAdded)
	idx.metrics.files("updated", result.FilesUpdated)
	idx.metrics.files("removed", result.FilesRemoved)
	idx.metrics.files("unchanged", result.FilesSkipped)
	idx.metrics.files("failed", len(result.FailedFiles))

	runErr := abortErr
	if saveErr != nil {
		saveErr = fmt.Errorf("saving manifest: %w", saveErr)
		runErr = errors.Join(runErr, saveErr)
	}
	if runErr != nil {
		result.Success = false
		result.Error = runErr.Error()
		idx.metrics.run(false, result.Duration)
		log.Error("indexing aborted", zap.Error(runErr), zap.Int("failed_files", len(result.FailedFiles)))
		return result, runErr
	}

	result.Success = true
	idx.metrics.run(true, result.Duration)
	log.Info("indexing completed",
		zap.Int("added", result.FilesAdded),
		zap.Int("updated", result.FilesUpdated),
		zap.Int("removed", result.FilesRemoved),
		zap.Int("skipped", result.FilesSkipped),
		zap.Int("failed", len(result.FailedFiles)),
		zap.Int("total_chunks", result.TotalChunks),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

func (r *run) hasFailed(rel string) bool {
	for _, f := range r.failed {
		if f.Path == rel {
			return true
		}
	}
	return false
}

// setup makes the embedding model and the collection usable and returns the
// manifest to diff against. A forced run, or a manifest built with another
// embedding model, drops the collection and starts from an empty file map.
func (idx *Indexer) setup(ctx context.Context, r *run, log *zap.Logger) (*types.IndexManifest, error) {
	if err := idx.embedder.EnsureModelAvailable(ctx); err != nil {
		return nil, fmt.Errorf("embedding model: %w", err)
	}

	prev, err := idx.state.Load(ctx, r.name)
	switch {
	case errors.Is(err, statestore.ErrNotFound):
		prev = nil
	case err != nil:
		return nil, fmt.Errorf("loading manifest: %w", err)
	}

	rebuild := r.req.Force
	if prev != nil && idx.modelChanged(prev) {
		log.Warn("embedding model changed, rebuilding collection",
			zap.String("previous_model", prev.EmbeddingModel),
			zap.Int("previous_dimension", prev.Dimension),
			zap.String("model", idx.embedder.Model()),
			zap.Int("dimension", idx.embedder.Dimension()),
		)
		rebuild = true
	}
	if rebuild {
		if err := idx.vectors.DeleteCollection(ctx, r.collection); err != nil {
			return nil, fmt.Errorf("dropping collection: %w", err)
		}
	}

	if err := idx.vectors.EnsureCollection(ctx, r.collection, idx.embedder.Dimension()); err != nil {
		return nil, fmt.Errorf("ensuring collection: %w", err)
	}

	manifest := types.NewManifest(r.name, r.root)
	manifest.CreatedAt = idx.now()
	if prev != nil {
		manifest.CreatedAt = prev.CreatedAt
		if !rebuild {
			manifest.Files = prev.Files
		}
	}
	return manifest, nil
}

func (idx *Indexer) modelChanged(m *types.IndexManifest) bool {
	if m.EmbeddingModel == "" {
		return false
	}
	if m.EmbeddingModel != idx.embedder.Model() {
		return true
	}
	if m.EmbeddingProvider != "" && m.EmbeddingProvider != idx.embedder.Provider() {
		return true
	}
	return m.Dimension > 0 && m.Dimension != idx.embedder.Dimension()
}

// chunkFiles runs the bounded worker pool over the changed files. Per-file
// failures are recorded on r; only cancellation is returned.
func (idx *Indexer) chunkFiles(ctx context.Context, r *run, files []ChangedFile) error {
	total := len(files)
	r.progress(Progress{Phase: PhaseChunk, Total: total})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.config.Workers)

	for _, cf := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			idx.chunkFile(gctx, r, cf)
			n := r.processed.Add(1)
			r.progress(Progress{Phase: PhaseChunk, Total: total, Processed: int(n), Failed: r.failedCount()})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// chunkFile removes the path's previous vectors, then reads and chunks it.
// Deleting first for added paths too clears vectors orphaned by an earlier
// aborted run.
func (idx *Indexer) chunkFile(ctx context.Context, r *run, cf ChangedFile) {
	rel := cf.File.RelativePath
	log := idx.logger.With(zap.String("path", rel))

	if err := idx.vectors.DeleteByFilePath(ctx, r.collection, rel); err != nil {
		log.Warn("deleting previous vectors failed", zap.Error(err))
		r.fail(rel, fmt.Errorf("deleting previous vectors: %w", err))
		return
	}

	content, err := os.ReadFile(cf.File.Path)
	if err != nil {
		log.Warn("reading file failed", zap.Error(err))
		r.fail(rel, fmt.Errorf("reading file: %w", err))
		return
	}

	language, c := idx.registry.Select(rel)
	chunks, err := c.ChunkCode(string(content), cf.File.Path, rel, language)
	if err != nil {
		log.Warn("chunking failed", zap.String("language", language), zap.Error(err))
		r.fail(rel, fmt.Errorf("chunking: %w", err))
		return
	}

	ids := make([]string, len(chunks))
	for i := range chunks {
		ids[i] = chunks[i].ID
	}

	modTime := cf.File.ModTime
	if info, err := os.Stat(cf.File.Path); err == nil {
		modTime = info.ModTime()
	}

	r.addChunks(chunks)
	r.addEntry(types.IndexedFile{
		RelativePath: rel,
		Fingerprint:  fingerprint.Bytes(content),
		ModTime:      modTime,
		IndexedAt:    idx.now(),
		ChunkCount:   len(chunks),
		ChunkIDs:     ids,
	})
}

// embedChunks embeds and upserts the run's chunks in sequential batches and
// returns how many chunks of each path were stored. The first batch error,
// or cancellation, stops the loop; no later batch is attempted.
func (idx *Indexer) embedChunks(ctx context.Context, r *run, log *zap.Logger) (map[string]int, error) {
	chunks := r.chunks
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].RelativePath != chunks[j].RelativePath {
			return chunks[i].RelativePath < chunks[j].RelativePath
		}
		if chunks[i].StartLine != chunks[j].StartLine {
			return chunks[i].StartLine < chunks[j].StartLine
		}
		return chunks[i].EndLine < chunks[j].EndLine
	})

	upserted := make(map[string]int)
	total := len(chunks)
	r.progress(Progress{Phase: PhaseEmbed, Total: total})

	for start := 0; start < total; start += idx.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return upserted, err
		}

		end := start + idx.config.BatchSize
		if end > total {
			end = total
		}
		batch := chunks[start:end]
		batchStarted := time.Now()

		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].EmbeddingText()
		}

		resp, err := idx.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
		if err != nil {
			return upserted, fmt.Errorf("embedding batch %d-%d: %w", start, end, err)
		}
		if len(resp.Embeddings) != len(batch) {
			return upserted, fmt.Errorf("embedding batch %d-%d: got %d embeddings", start, end, len(resp.Embeddings))
		}
		vectors := make([][]float32, len(batch))
		for i, emb := range resp.Embeddings {
			vectors[i] = emb.Vector
		}

		if err := idx.vectors.UpsertChunks(ctx, r.collection, batch, vectors); err != nil {
			return upserted, fmt.Errorf("upserting batch %d-%d: %w", start, end, err)
		}

		for i := range batch {
			upserted[batch[i].RelativePath]++
		}
		idx.metrics.batch(len(batch), time.Since(batchStarted))
		log.Debug("batch stored", zap.Int("start", start), zap.Int("size", len(batch)))
		r.progress(Progress{Phase: PhaseEmbed, Total: total, Processed: end, ChunksEmbedded: end})
	}
	return upserted, nil
}

func (idx *Indexer) failSetup(result *types.IndexingResult, started time.Time, err error) (*types.IndexingResult, error) {
	result.Success = false
	result.Error = err.Error()
	result.Duration = idx.now().Sub(started)
	idx.metrics.run(false, result.Duration)
	idx.logger.Error("indexing failed", zap.String("repository", result.Repository), zap.Error(err))
	return result, err
}

// resolveRoot returns the absolute, symlink-free root and the display name.
func resolveRoot(path, name string) (string, string, error) {
	if path == "" {
		return "", "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	root, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if !info.IsDir() {
		return "", "", fmt.Errorf("%w: %s is not a directory", ErrInvalidPath, root)
	}
	if name == "" {
		name = filepath.Base(root)
	}
	return root, name, nil
}
