package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/repoindex/pkg/types"
)

type stubChunker struct{}

func (stubChunker) ChunkCode(content, path, relativePath, language string) ([]types.CodeChunk, error) {
	return nil, nil
}

func TestRegistry_Select(t *testing.T) {
	fallback := NewLineChunker(0, 0)
	r := NewRegistry(fallback)
	stub := stubChunker{}
	r.Register("python", stub, "py", ".PYI")
	r.Register("markdown", nil, "md")

	lang, c := r.Select("pkg/a.py")
	assert.Equal(t, "python", lang)
	assert.Equal(t, stub, c)

	lang, _ = r.Select("stubs/a.pyi")
	assert.Equal(t, "python", lang)

	lang, c = r.Select("README.md")
	assert.Equal(t, "markdown", lang)
	assert.Same(t, fallback, c)

	lang, c = r.Select("Makefile")
	assert.Equal(t, LanguageText, lang)
	assert.Same(t, fallback, c)

	assert.Equal(t, []string{"python"}, r.Languages())
}

func TestDefaultRegistry(t *testing.T) {
	r := NewDefaultRegistry(Options{})

	tests := map[string]string{
		"main.go":     "go",
		"app.py":      "python",
		"index.js":    "javascript",
		"view.tsx":    "tsx",
		"api.ts":      "typescript",
		"lib.rs":      "rust",
		"notes.txt":   LanguageText,
		"Dockerfile":  LanguageText,
		"config.yaml": "yaml",
	}
	for path, want := range tests {
		lang, c := r.Select(path)
		assert.Equal(t, want, lang, path)
		assert.NotNil(t, c, path)
	}
}

func TestDefaultRegistry_PythonFile(t *testing.T) {
	content := `import os


def greet(name):
    return "hello " + name


class Greeter:
    def __init__(self, name):
        self.name = name

    def greet(self):
        return greet(self.name)


print(greet("world"))
`
	r := NewDefaultRegistry(Options{})
	lang, c := r.Select("a.py")
	chunks, err := c.ChunkCode(content, "/r/a.py", "a.py", lang)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	var all string
	for _, ch := range chunks {
		assert.Equal(t, "python", ch.Language)
		assert.NoError(t, ch.Validate())
		all += ch.Content + "\n"
	}
	assert.Contains(t, all, "def greet(name)")
	assert.Contains(t, all, "class Greeter")
	assert.Contains(t, all, `print(greet("world"))`)
}
