package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/repoindex/internal/embedder"
	"github.com/dshills/repoindex/internal/indexer"
	"github.com/dshills/repoindex/internal/searcher"
	"github.com/dshills/repoindex/internal/statestore"
	"github.com/dshills/repoindex/internal/vectorstore"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	emb := embedder.NewLocalProvider(embedder.Config{}, nil)
	vectors, err := vectorstore.NewChromemStore("", false, nil)
	require.NoError(t, err)
	state, err := statestore.NewFileStore(t.TempDir())
	require.NoError(t, err)

	idx := indexer.New(emb, vectors, state)
	srch := searcher.New(emb, vectors, state, searcher.WithConfig(searcher.Config{CacheSize: 16}))
	return NewServer(idx, srch, "test", nil)
}

func newRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"auth/login.py": "def login(username, password):\n    user = find_user(username)\n    return check_password(user, password)\n",
		"util/math.go":  "package util\n\n// Sum adds numbers.\nfunc Sum(xs []int) int {\n\tt := 0\n\tfor _, x := range xs {\n\t\tt += x\n\t}\n\treturn t\n}\n",
	}
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func call(name string, args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func decode(t *testing.T, res *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "text content")
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func requireCode(t *testing.T, err error, code int) {
	t.Helper()
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code, mcpErr.Message)
}

func TestIndexSearchStatusReset(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	root := newRepo(t)

	res, err := s.handleIndexRepository(ctx, call("index_repository", map[string]interface{}{
		"path": root,
		"name": "demo",
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	out := decode(t, res)
	assert.Equal(t, true, out["success"])
	assert.EqualValues(t, 2, out["files_added"])

	res, err = s.handleSearchCode(ctx, call("search_code", map[string]interface{}{
		"repository": "demo",
		"query":      "login user password",
		"min_score":  0.0,
		"limit":      float64(5),
	}))
	require.NoError(t, err)
	out = decode(t, res)
	results := out["results"].([]interface{})
	require.NotEmpty(t, results)
	assert.Equal(t, "auth/login.py", results[0].(map[string]interface{})["file"])

	res, err = s.handleGetStatus(ctx, call("get_status", map[string]interface{}{"repository": "demo"}))
	require.NoError(t, err)
	out = decode(t, res)
	assert.Equal(t, true, out["indexed"])
	status := out["status"].(map[string]interface{})
	assert.EqualValues(t, 2, status["files"])

	res, err = s.handleGetStatus(ctx, call("get_status", map[string]interface{}{}))
	require.NoError(t, err)
	assert.EqualValues(t, 1, decode(t, res)["count"])

	res, err = s.handleResetIndex(ctx, call("reset_index", map[string]interface{}{"repository": "demo"}))
	require.NoError(t, err)
	assert.Equal(t, true, decode(t, res)["reset"])

	res, err = s.handleGetStatus(ctx, call("get_status", map[string]interface{}{"repository": "demo"}))
	require.NoError(t, err)
	assert.Equal(t, false, decode(t, res)["indexed"])

	_, err = s.handleSearchCode(ctx, call("search_code", map[string]interface{}{"repository": "demo", "query": "login"}))
	requireCode(t, err, ErrorCodeNotIndexed)
}

func TestIndexRepositoryValidation(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing path", map[string]interface{}{}},
		{"relative path", map[string]interface{}{"path": "some/dir"}},
		{"nonexistent path", map[string]interface{}{"path": filepath.Join(t.TempDir(), "nope")}},
		{"bad exclude", map[string]interface{}{"path": t.TempDir(), "exclude": "vendor/**"}},
		{"bad include item", map[string]interface{}{"path": t.TempDir(), "include": []interface{}{"*.go", 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.handleIndexRepository(ctx, call("index_repository", tt.args))
			requireCode(t, err, ErrorCodeInvalidParams)
		})
	}
}

func TestIndexRepositoryExclude(t *testing.T) {
	s := newTestServer(t)
	root := newRepo(t)

	res, err := s.handleIndexRepository(context.Background(), call("index_repository", map[string]interface{}{
		"path":    root,
		"exclude": []interface{}{"util/**"},
	}))
	require.NoError(t, err)
	out := decode(t, res)
	assert.EqualValues(t, 1, out["files_added"])
	assert.Equal(t, filepath.Base(root), out["repository"])
}

func TestSearchCodeValidation(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]interface{}
		code int
	}{
		{"missing repository", map[string]interface{}{"query": "x"}, ErrorCodeInvalidParams},
		{"empty query", map[string]interface{}{"repository": "r", "query": "  "}, ErrorCodeEmptyQuery},
		{"missing query", map[string]interface{}{"repository": "r"}, ErrorCodeEmptyQuery},
		{"limit too large", map[string]interface{}{"repository": "r", "query": "x", "limit": float64(500)}, ErrorCodeInvalidParams},
		{"limit zero", map[string]interface{}{"repository": "r", "query": "x", "limit": float64(0)}, ErrorCodeInvalidParams},
		{"min score out of range", map[string]interface{}{"repository": "r", "query": "x", "min_score": 2.0}, ErrorCodeInvalidParams},
		{"min score wrong type", map[string]interface{}{"repository": "r", "query": "x", "min_score": "high"}, ErrorCodeInvalidParams},
		{"not indexed", map[string]interface{}{"repository": "never", "query": "x"}, ErrorCodeNotIndexed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.handleSearchCode(ctx, call("search_code", tt.args))
			requireCode(t, err, tt.code)
		})
	}
}

func TestResetIndexRequiresRepository(t *testing.T) {
	s := newTestServer(t)
	_, err := s.handleResetIndex(context.Background(), call("reset_index", map[string]interface{}{}))
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestResetIndexNeverIndexed(t *testing.T) {
	s := newTestServer(t)
	res, err := s.handleResetIndex(context.Background(), call("reset_index", map[string]interface{}{"repository": "ghost"}))
	require.NoError(t, err)
	assert.Equal(t, true, decode(t, res)["reset"])
}

func TestReindexInvalidatesSearchCache(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	root := newRepo(t)

	index := func() {
		_, err := s.handleIndexRepository(ctx, call("index_repository", map[string]interface{}{"path": root, "name": "demo"}))
		require.NoError(t, err)
	}
	search := func() []interface{} {
		res, err := s.handleSearchCode(ctx, call("search_code", map[string]interface{}{
			"repository": "demo", "query": "refund invoice payment", "min_score": 0.0,
		}))
		require.NoError(t, err)
		return decode(t, res)["results"].([]interface{})
	}

	index()
	for _, r := range search() {
		assert.NotEqual(t, "billing/refund.py", r.(map[string]interface{})["file"])
	}

	require.NoError(t, os.MkdirAll(filepath.Join(root, "billing"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "billing", "refund.py"),
		[]byte("def refund_invoice(payment):\n    return payment.refund()\n"), 0o644))
	index()

	results := search()
	require.NotEmpty(t, results)
	assert.Equal(t, "billing/refund.py", results[0].(map[string]interface{})["file"])
}

func TestToolDefinitions(t *testing.T) {
	for _, tool := range []mcp.Tool{indexRepositoryTool(), searchCodeTool(), getStatusTool(), resetIndexTool()} {
		assert.NotEmpty(t, tool.Name)
		assert.NotEmpty(t, tool.Description)
		assert.Equal(t, "object", tool.InputSchema.Type)
		for _, req := range tool.InputSchema.Required {
			assert.Contains(t, tool.InputSchema.Properties, req, "%s requires a declared property", tool.Name)
		}
	}
}

func TestMCPErrorMessage(t *testing.T) {
	err := newMCPError(ErrorCodeEmptyQuery, "query cannot be empty", nil)
	assert.Equal(t, "MCP error -32004: query cannot be empty", err.Error())
}
