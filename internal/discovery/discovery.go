// Package discovery expands include/exclude glob patterns into the list of
// files an indexing run considers.
package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
)

// DefaultMaxFileSize is the largest file considered for indexing.
const DefaultMaxFileSize = 1 << 20

// sniffLen is how many leading bytes are inspected to detect binary content.
const sniffLen = 8000

// DefaultIncludePatterns matches every file.
var DefaultIncludePatterns = []string{"**/*"}

// DefaultExcludePatterns covers lock files, minified bundles, dependency
// trees, tool caches and common generated output. They apply only when the
// caller passes no exclude patterns of its own.
var DefaultExcludePatterns = []string{
	"**/*.min.js",
	"**/*.map",
	"**/*.lock",
	"**/package-lock.json",
	"**/go.sum",
	"**/*.pyc",
	"**/*.png", "**/*.jpg", "**/*.jpeg", "**/*.gif", "**/*.ico", "**/*.pdf",
	"**/*.zip", "**/*.tar", "**/*.gz",
	"**/node_modules/**",
	"**/vendor/**",
	"**/.venv/**",
	"**/venv/**",
	"**/__pycache__/**",
	"**/.idea/**",
	"**/.vscode/**",
	"**/.cache/**",
	"**/.next/**",
	"**/dist/**",
	"**/target/**",
}

// vcsDirs are never descended into, regardless of patterns.
var vcsDirs = map[string]bool{
	".git": true,
	".svn": true,
	".hg":  true,
}

// ErrInvalidPattern is returned when an include or exclude pattern does not parse.
var ErrInvalidPattern = errors.New("invalid glob pattern")

// File is a discovered file.
type File struct {
	Path         string // absolute
	RelativePath string // slash-separated, relative to the root
	Size         int64
	ModTime      time.Time
}

// Discoverer walks a directory tree applying glob filters.
type Discoverer struct {
	maxFileSize int64
	logger      *zap.Logger
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithMaxFileSize overrides DefaultMaxFileSize. Zero or negative disables the limit.
func WithMaxFileSize(n int64) Option {
	return func(d *Discoverer) { d.maxFileSize = n }
}

// WithLogger sets the logger used for skipped entries.
func WithLogger(l *zap.Logger) Option {
	return func(d *Discoverer) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a Discoverer.
func New(opts ...Option) *Discoverer {
	d := &Discoverer{
		maxFileSize: DefaultMaxFileSize,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Discover returns every regular file under root whose relative path matches
// at least one include pattern and no exclude pattern. Exclude wins on
// conflict. Patterns use doublestar syntax against slash-separated relative
// paths; a directory is pruned when "<dir>/" matches an exclude pattern.
// An empty include list means DefaultIncludePatterns and an empty exclude
// list means DefaultExcludePatterns. Version-control directories are always
// skipped. Results are ordered by relative path.
//
// Files that cannot be opened are still returned so the caller can record
// them as failed instead of silently dropping them.
func (d *Discoverer) Discover(ctx context.Context, root string, include, exclude []string) ([]File, error) {
	if len(include) == 0 {
		include = DefaultIncludePatterns
	}
	if len(exclude) == 0 {
		exclude = DefaultExcludePatterns
	}
	if err := validatePatterns(include); err != nil {
		return nil, err
	}
	if err := validatePatterns(exclude); err != nil {
		return nil, err
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	var files []File
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			d.logger.Warn("skipping unreadable entry", zap.String("path", path), zap.Error(walkErr))
			if entry != nil && entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("computing relative path: %w", err)
		}
		rel = filepath.ToSlash(rel)

		if entry.IsDir() {
			if path == root {
				return nil
			}
			if vcsDirs[entry.Name()] || matchAny(exclude, rel) || matchAny(exclude, rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if !entry.Type().IsRegular() {
			return nil
		}
		if !matchAny(include, rel) || matchAny(exclude, rel) {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			// Vanished between listing and stat.
			d.logger.Debug("skipping file", zap.String("path", rel), zap.Error(err))
			return nil
		}
		if d.maxFileSize > 0 && info.Size() > d.maxFileSize {
			d.logger.Debug("skipping large file", zap.String("path", rel), zap.Int64("size", info.Size()))
			return nil
		}
		if isBinary(path) {
			d.logger.Debug("skipping binary file", zap.String("path", rel))
			return nil
		}

		files = append(files, File{
			Path:         path,
			RelativePath: rel,
			Size:         info.Size(),
			ModTime:      info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}

func validatePatterns(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("%w: %q", ErrInvalidPattern, p)
		}
	}
	return nil
}

func matchAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if matched, err := doublestar.Match(pattern, path); err == nil && matched {
			return true
		}
	}
	return false
}

// isBinary reports whether the file's leading bytes contain a NUL. Files that
// cannot be opened are reported as text.
func isBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false
	}
	return bytes.IndexByte(buf[:n], 0) >= 0
}
