package types

import (
	"sort"
	"time"
)

// IndexedFile is the last-known indexed state of one file.
type IndexedFile struct {
	RelativePath string    `json:"relative_path"`
	Fingerprint  string    `json:"fingerprint"`
	ModTime      time.Time `json:"mod_time"`
	IndexedAt    time.Time `json:"indexed_at"`
	ChunkCount   int       `json:"chunk_count"`
	ChunkIDs     []string  `json:"chunk_ids"`
}

// IndexManifest is the persisted per-repository record of what has been
// indexed. Every chunk ID referenced from Files exists in Collection at the
// time the manifest is saved.
type IndexManifest struct {
	Repository        string                 `json:"repository"`
	RootPath          string                 `json:"root_path"`
	Revision          string                 `json:"revision,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
	EmbeddingProvider string                 `json:"embedding_provider"`
	EmbeddingModel    string                 `json:"embedding_model"`
	Dimension         int                    `json:"dimension"`
	Collection        string                 `json:"collection"`
	IncludePatterns   []string               `json:"include_patterns"`
	ExcludePatterns   []string               `json:"exclude_patterns"`
	Files             map[string]IndexedFile `json:"files"`
}

// NewManifest returns an empty manifest for a repository.
func NewManifest(repository, rootPath string) *IndexManifest {
	return &IndexManifest{
		Repository: repository,
		RootPath:   rootPath,
		Collection: SanitizeName(repository),
		Files:      make(map[string]IndexedFile),
	}
}

// TotalChunks sums the chunk counts of all files in the manifest.
func (m *IndexManifest) TotalChunks() int {
	total := 0
	for _, f := range m.Files {
		total += f.ChunkCount
	}
	return total
}

// Paths returns the manifest's relative paths in sorted order.
func (m *IndexManifest) Paths() []string {
	paths := make([]string, 0, len(m.Files))
	for p := range m.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Fingerprints maps each relative path to its stored fingerprint.
func (m *IndexManifest) Fingerprints() map[string]string {
	out := make(map[string]string, len(m.Files))
	for p, f := range m.Files {
		out[p] = f.Fingerprint
	}
	return out
}
