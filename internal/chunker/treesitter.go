//go:build cgo

package chunker

import (
	"context"
	"fmt"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/dshills/repoindex/pkg/types"
)

// LanguageSpec defines the tree-sitter grammar and query for a language.
type LanguageSpec struct {
	Language *sitter.Language
	// Query is a tree-sitter S-expression query that captures top-level
	// definitions. It must use @chunk for the outer node and @name for the
	// identifier (optional).
	Query string
}

// TreeSitterChunker chunks source at the definitions matched by a
// tree-sitter query. Code outside any definition is line-chunked.
type TreeSitterChunker struct {
	spec  *LanguageSpec
	lines *LineChunker

	once     sync.Once
	query    *sitter.Query
	queryErr error
}

// NewTreeSitterChunker creates a chunker for one language. The query is
// compiled on first use and shared by every later call.
func NewTreeSitterChunker(spec *LanguageSpec, lc *LineChunker) *TreeSitterChunker {
	return &TreeSitterChunker{spec: spec, lines: lc}
}

func (c *TreeSitterChunker) compiledQuery() (*sitter.Query, error) {
	c.once.Do(func() {
		c.query, c.queryErr = sitter.NewQuery([]byte(c.spec.Query), c.spec.Language)
	})
	return c.query, c.queryErr
}

// ChunkCode implements Chunker. A parser and cursor are created per call
// because they are not safe for concurrent use; the compiled query is.
func (c *TreeSitterChunker) ChunkCode(content, path, relativePath, language string) ([]types.CodeChunk, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	src := []byte(content)

	q, err := c.compiledQuery()
	if err != nil {
		return nil, fmt.Errorf("compile query for %s: %w", language, err)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(c.spec.Language)

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", relativePath, err)
	}
	defer tree.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, tree.RootNode())

	var spans []span
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		var node *sitter.Node
		var name string
		for _, capture := range m.Captures {
			switch q.CaptureNameForId(capture.Index) {
			case "chunk":
				node = capture.Node
			case "name":
				name = capture.Node.Content(src)
			}
		}
		if node == nil {
			continue
		}
		spans = append(spans, span{
			start: int(node.StartPoint().Row) + 1,
			end:   int(node.EndPoint().Row) + 1,
			kind:  nodeKind(node.Type()),
			name:  name,
		})
	}

	f := newFileInfo(content, path, relativePath, language, "")
	return assemble(splitLines(content), spans, c.lines, f), nil
}

func nodeKind(nodeType string) types.ChunkKind {
	switch {
	case strings.Contains(nodeType, "class"):
		return types.ChunkClass
	case strings.Contains(nodeType, "method"):
		return types.ChunkMethod
	case strings.Contains(nodeType, "interface"), strings.Contains(nodeType, "type_alias"):
		return types.ChunkTypeDecl
	case strings.Contains(nodeType, "function"), strings.Contains(nodeType, "decorated"):
		return types.ChunkFunction
	default:
		return types.ChunkDecl
	}
}

var (
	pythonSpec = &LanguageSpec{
		Language: python.GetLanguage(),
		Query: `
			(function_definition name: (identifier) @name) @chunk
			(class_definition name: (identifier) @name) @chunk
			(decorated_definition definition: (function_definition name: (identifier) @name)) @chunk
			(decorated_definition definition: (class_definition name: (identifier) @name)) @chunk
		`,
	}

	javascriptSpec = &LanguageSpec{
		Language: javascript.GetLanguage(),
		Query: `
			(function_declaration name: (identifier) @name) @chunk
			(class_declaration name: (identifier) @name) @chunk
			(method_definition name: (property_identifier) @name) @chunk
			(export_statement (function_declaration name: (identifier) @name)) @chunk
			(export_statement (class_declaration name: (identifier) @name)) @chunk
			(lexical_declaration (variable_declarator name: (identifier) @name value: (arrow_function))) @chunk
		`,
	}

	typescriptSpec = &LanguageSpec{
		Language: typescript.GetLanguage(),
		Query:    typescriptQuery,
	}

	tsxSpec = &LanguageSpec{
		Language: tsx.GetLanguage(),
		Query:    typescriptQuery,
	}
)

const typescriptQuery = `
	(function_declaration name: (identifier) @name) @chunk
	(class_declaration name: (type_identifier) @name) @chunk
	(method_definition name: (property_identifier) @name) @chunk
	(export_statement (function_declaration name: (identifier) @name)) @chunk
	(export_statement (class_declaration name: (type_identifier) @name)) @chunk
	(lexical_declaration (variable_declarator name: (identifier) @name value: (arrow_function))) @chunk
	(interface_declaration name: (type_identifier) @name) @chunk
	(type_alias_declaration name: (type_identifier) @name) @chunk
`

func registerTreeSitter(r *Registry, lc *LineChunker) {
	r.Register("python", NewTreeSitterChunker(pythonSpec, lc), "py", "pyi")
	r.Register("javascript", NewTreeSitterChunker(javascriptSpec, lc), "js", "jsx", "mjs", "cjs")
	r.Register("typescript", NewTreeSitterChunker(typescriptSpec, lc), "ts", "mts", "cts")
	r.Register("tsx", NewTreeSitterChunker(tsxSpec, lc), "tsx")
}
