package chunker

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// LanguageText is the tag given to files with an unrecognized extension.
const LanguageText = "text"

// Registry maps language tags to chunkers and file extensions to language
// tags. Unknown languages resolve to the fallback chunker, so no file type is
// skipped.
type Registry struct {
	mu         sync.RWMutex
	chunkers   map[string]Chunker // language tag → chunker
	extensions map[string]string  // extension (without dot, lower-case) → language tag
	fallback   Chunker
}

// NewRegistry creates a registry with the given fallback chunker.
func NewRegistry(fallback Chunker) *Registry {
	return &Registry{
		chunkers:   make(map[string]Chunker),
		extensions: make(map[string]string),
		fallback:   fallback,
	}
}

// Register adds a chunker for language and maps the given extensions to it.
// A nil chunker maps the extensions to the language tag but chunks with the
// fallback.
func (r *Registry) Register(language string, c Chunker, extensions ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c != nil {
		r.chunkers[language] = c
	}
	for _, ext := range extensions {
		r.extensions[strings.ToLower(strings.TrimPrefix(ext, "."))] = language
	}
}

// Language returns the language tag for a file path.
func (r *Registry) Language(path string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	r.mu.RLock()
	defer r.mu.RUnlock()
	if lang, ok := r.extensions[ext]; ok {
		return lang
	}
	return LanguageText
}

// Select returns the language tag for path and the chunker to use for it.
func (r *Registry) Select(path string) (string, Chunker) {
	lang := r.Language(path)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.chunkers[lang]; ok {
		return lang, c
	}
	return lang, r.fallback
}

// Languages returns the tags that have a dedicated chunker, sorted.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	langs := make([]string, 0, len(r.chunkers))
	for l := range r.chunkers {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// plainLanguages are recognized for tagging but chunked by lines.
var plainLanguages = map[string][]string{
	"rust":     {"rs"},
	"java":     {"java"},
	"kotlin":   {"kt", "kts"},
	"c":        {"c", "h"},
	"cpp":      {"cc", "cpp", "cxx", "hpp", "hh"},
	"csharp":   {"cs"},
	"ruby":     {"rb"},
	"php":      {"php"},
	"swift":    {"swift"},
	"shell":    {"sh", "bash", "zsh"},
	"sql":      {"sql"},
	"markdown": {"md", "markdown"},
	"yaml":     {"yaml", "yml"},
	"json":     {"json"},
	"toml":     {"toml"},
	"html":     {"html", "htm"},
	"css":      {"css", "scss"},
	"proto":    {"proto"},
}

// Options tunes the chunkers built by NewDefaultRegistry.
type Options struct {
	MaxTokens    int
	OverlapLines int
}

// NewDefaultRegistry returns a registry with the Go chunker, the tree-sitter
// chunkers available in this build, tags for common plain languages and a
// line-based fallback.
func NewDefaultRegistry(opts Options) *Registry {
	overlap := opts.OverlapLines
	if overlap == 0 {
		overlap = DefaultOverlapLines
	}
	lc := NewLineChunker(opts.MaxTokens, overlap)
	r := NewRegistry(lc)

	r.Register("go", NewGoChunker(lc), "go")
	registerTreeSitter(r, lc)
	for lang, exts := range plainLanguages {
		r.Register(lang, nil, exts...)
	}
	return r
}
