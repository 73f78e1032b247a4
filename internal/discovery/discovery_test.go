package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func relPaths(files []File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.RelativePath
	}
	return out
}

func TestDiscover_DefaultPatterns(t *testing.T) {
	root := t.TempDir()
	createTestFile(t, root, "a.py", "print('a')\n")
	createTestFile(t, root, "pkg/b.go", "package pkg\n")
	createTestFile(t, root, ".git/HEAD", "ref: refs/heads/main\n")
	createTestFile(t, root, "node_modules/x/index.js", "module.exports = 1\n")

	files, err := New().Discover(context.Background(), root, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py", "pkg/b.go"}, relPaths(files))

	for _, f := range files {
		assert.True(t, filepath.IsAbs(f.Path))
		assert.Positive(t, f.Size)
	}
}

func TestDiscover_IncludeExclude(t *testing.T) {
	root := t.TempDir()
	createTestFile(t, root, "src/main.py", "x = 1\n")
	createTestFile(t, root, "src/util.py", "y = 2\n")
	createTestFile(t, root, "src/gen/out.py", "z = 3\n")
	createTestFile(t, root, "docs/readme.md", "# hi\n")

	tests := []struct {
		name    string
		include []string
		exclude []string
		want    []string
	}{
		{
			name:    "include only python",
			include: []string{"**/*.py"},
			want:    []string{"src/gen/out.py", "src/main.py", "src/util.py"},
		},
		{
			name:    "exclude wins over include",
			include: []string{"**/*.py"},
			exclude: []string{"src/util.py"},
			want:    []string{"src/gen/out.py", "src/main.py"},
		},
		{
			name:    "exclude directory",
			include: []string{"**/*"},
			exclude: []string{"src/gen/**"},
			want:    []string{"docs/readme.md", "src/main.py", "src/util.py"},
		},
		{
			name:    "no match",
			include: []string{"**/*.rs"},
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := New().Discover(context.Background(), root, tt.include, tt.exclude)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, files)
				return
			}
			assert.Equal(t, tt.want, relPaths(files))
		})
	}
}

func TestDiscover_DefaultExcludesAreReplaceable(t *testing.T) {
	root := t.TempDir()
	createTestFile(t, root, "main.go", "package main\n")
	createTestFile(t, root, "build/gen.go", "package build\n")
	createTestFile(t, root, "internal/build/b.go", "package build\n")
	createTestFile(t, root, "target/x.py", "x = 1\n")
	createTestFile(t, root, "vendor/lib/lib.go", "package lib\n")
	createTestFile(t, root, ".git/config.go", "package git\n")

	tests := []struct {
		name    string
		include []string
		exclude []string
		want    []string
	}{
		{
			name:    "defaults skip dependency and output trees",
			include: []string{"**/*.go", "**/*.py"},
			want:    []string{"build/gen.go", "internal/build/b.go", "main.go"},
		},
		{
			name:    "caller excludes replace defaults",
			include: []string{"**/*.go", "**/*.py"},
			exclude: []string{"build/**"},
			want:    []string{"internal/build/b.go", "main.go", "target/x.py", "vendor/lib/lib.go"},
		},
		{
			name:    "include a single directory",
			include: []string{"build/**"},
			want:    []string{"build/gen.go"},
		},
		{
			name:    "vcs directories stay skipped",
			include: []string{"**/*.go"},
			exclude: []string{"nothing/**"},
			want:    []string{"build/gen.go", "internal/build/b.go", "main.go", "vendor/lib/lib.go"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := New().Discover(context.Background(), root, tt.include, tt.exclude)
			require.NoError(t, err)
			assert.Equal(t, tt.want, relPaths(files))
		})
	}
}

func TestDiscover_SkipsLargeAndBinary(t *testing.T) {
	root := t.TempDir()
	createTestFile(t, root, "small.txt", "ok\n")
	createTestFile(t, root, "big.txt", string(make([]byte, 64)))
	createTestFile(t, root, "blob.bin", "abc\x00def")

	files, err := New(WithMaxFileSize(32)).Discover(context.Background(), root, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"small.txt"}, relPaths(files))
}

func TestDiscover_InvalidPattern(t *testing.T) {
	_, err := New().Discover(context.Background(), t.TempDir(), []string{"[abc"}, nil)
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestDiscover_MissingRoot(t *testing.T) {
	_, err := New().Discover(context.Background(), filepath.Join(t.TempDir(), "nope"), nil, nil)
	assert.Error(t, err)
}

func TestDiscover_Cancelled(t *testing.T) {
	root := t.TempDir()
	createTestFile(t, root, "a.py", "x\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Discover(ctx, root, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
