package types

import "time"

// FailedFile records a file that could not be indexed and why.
type FailedFile struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// IndexingResult summarizes a single indexing run. It is returned to the
// caller and never persisted.
type IndexingResult struct {
	Success      bool          `json:"success"`
	Repository   string        `json:"repository"`
	Collection   string        `json:"collection"`
	FilesAdded   int           `json:"files_added"`
	FilesUpdated int           `json:"files_updated"`
	FilesRemoved int           `json:"files_removed"`
	FilesSkipped int           `json:"files_skipped"`
	TotalChunks  int           `json:"total_chunks"`
	Duration     time.Duration `json:"duration"`
	FailedFiles  []FailedFile  `json:"failed_files,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// FailedPaths returns the paths of all failed files.
func (r *IndexingResult) FailedPaths() []string {
	paths := make([]string, len(r.FailedFiles))
	for i, f := range r.FailedFiles {
		paths[i] = f.Path
	}
	return paths
}

// SearchHit is one chunk returned by a similarity search.
type SearchHit struct {
	Chunk CodeChunk `json:"chunk"`
	Score float64   `json:"score"`
}

// SearchResult is the outcome of one search call. Hits are ordered by
// descending score as returned by the vector store.
type SearchResult struct {
	Query      string        `json:"query"`
	Repository string        `json:"repository"`
	Collection string        `json:"collection"`
	Hits       []SearchHit   `json:"hits"`
	Duration   time.Duration `json:"duration"`

	// ModelMismatch is set when the collection was built with a different
	// embedding model than the one used for the query. Scores are then not
	// comparable.
	ModelMismatch bool `json:"model_mismatch,omitempty"`
}

// Validate checks a hit's score range and chunk reference.
func (h *SearchHit) Validate() error {
	if h.Chunk.ID == "" {
		return ErrInvalidChunkID
	}
	if h.Score < -1 || h.Score > 1 {
		return ErrInvalidRelevanceScore
	}
	return nil
}
