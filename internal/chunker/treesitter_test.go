//go:build cgo

package chunker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeSitter_TSXComponent(t *testing.T) {
	content := `import React from "react";

interface Props {
  name: string;
}

export function Greeting({ name }: Props) {
  return <div className="greeting">Hello {name}</div>;
}

const Farewell = ({ name }: Props) => <span>Bye {name}</span>;
`
	r := NewDefaultRegistry(Options{})
	lang, c := r.Select("ui/greeting.tsx")
	require.Equal(t, "tsx", lang)

	chunks, err := c.ChunkCode(content, "/r/ui/greeting.tsx", "ui/greeting.tsx", lang)
	require.NoError(t, err)

	names := map[string]bool{}
	for _, ch := range chunks {
		assert.Equal(t, "tsx", ch.Language)
		assert.NoError(t, ch.Validate())
		if ch.Name != "" {
			names[ch.Name] = true
		}
	}
	assert.True(t, names["Props"], "interface chunk")
	assert.True(t, names["Greeting"], "component chunk")
	assert.True(t, names["Farewell"], "arrow component chunk")
}

func TestTreeSitter_QueryCompiledOnce(t *testing.T) {
	c := NewTreeSitterChunker(pythonSpec, NewLineChunker(0, 0))
	src := "def a():\n    return 1\n\n\ndef b():\n    return 2\n"

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			chunks, err := c.ChunkCode(src, "/r/m.py", "m.py", "python")
			assert.NoError(t, err)
			assert.Len(t, chunks, 2)
		}()
	}
	wg.Wait()

	q, err := c.compiledQuery()
	require.NoError(t, err)
	again, err := c.compiledQuery()
	require.NoError(t, err)
	assert.Same(t, q, again)
}

func TestTreeSitter_BadQuery(t *testing.T) {
	spec := &LanguageSpec{Language: pythonSpec.Language, Query: "(not_a_node @chunk"}
	c := NewTreeSitterChunker(spec, NewLineChunker(0, 0))

	_, err := c.ChunkCode("x = 1\n", "/r/m.py", "m.py", "python")
	assert.Error(t, err)
	_, err = c.ChunkCode("y = 2\n", "/r/m.py", "m.py", "python")
	assert.Error(t, err)
}
