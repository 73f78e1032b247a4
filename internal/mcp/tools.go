package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/dshills/repoindex/internal/indexer"
	"github.com/dshills/repoindex/internal/searcher"
	"github.com/dshills/repoindex/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeNotIndexed         = -32003 // Repository not indexed
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
)

// maxReportedFailures bounds the failed_files list in tool responses.
const maxReportedFailures = 5

// handleIndexRepository handles the index_repository tool invocation
func (s *Server) handleIndexRepository(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	path := strings.TrimSpace(request.GetString("path", ""))
	if path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if !filepath.IsAbs(path) {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": "path must be absolute",
		})
	}
	include, err := getStringSlice(args, "include")
	if err != nil {
		return nil, err
	}
	exclude, err := getStringSlice(args, "exclude")
	if err != nil {
		return nil, err
	}

	result, err := s.indexer.Index(ctx, indexer.IndexRequest{
		Path:            path,
		Name:            request.GetString("name", ""),
		Force:           request.GetBool("force", false),
		IncludePatterns: include,
		ExcludePatterns: exclude,
	})
	// Indexed content changed even when the run failed part-way.
	s.searcher.InvalidateCache()

	switch {
	case errors.Is(err, indexer.ErrInvalidPath):
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	case errors.Is(err, indexer.ErrIndexInProgress):
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", map[string]interface{}{
			"repository": result.Repository,
		})
	case err != nil && result == nil:
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"success":       result.Success,
		"repository":    result.Repository,
		"collection":    result.Collection,
		"files_added":   result.FilesAdded,
		"files_updated": result.FilesUpdated,
		"files_removed": result.FilesRemoved,
		"files_skipped": result.FilesSkipped,
		"total_chunks":  result.TotalChunks,
		"duration_ms":   result.Duration.Milliseconds(),
	}
	if n := len(result.FailedFiles); n > 0 {
		failed := result.FailedFiles
		if n > maxReportedFailures {
			failed = failed[:maxReportedFailures]
			response["failed_count"] = n
		}
		response["failed_files"] = failed
	}
	if result.Error != "" {
		response["error"] = result.Error
	}

	out := mcp.NewToolResultText(formatJSON(response))
	out.IsError = !result.Success
	return out, nil
}

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repository := strings.TrimSpace(request.GetString("repository", ""))
	if repository == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "repository parameter is required", map[string]interface{}{
			"param":  "repository",
			"reason": "missing or empty",
		})
	}

	query := request.GetString("query", "")
	if strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := request.GetInt("limit", 10)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	req := searcher.SearchRequest{Repository: repository, Query: query, Limit: limit}
	if raw, ok := request.GetArguments()["min_score"]; ok {
		score, ok := raw.(float64)
		if !ok || score < 0 || score > 1 {
			return nil, newMCPError(ErrorCodeInvalidParams, "min_score must be a number between 0 and 1", map[string]interface{}{
				"param": "min_score",
				"value": raw,
			})
		}
		req.MinScore = &score
	}

	result, err := s.searcher.Search(ctx, req)
	switch {
	case errors.Is(err, searcher.ErrNotIndexed):
		return nil, newMCPError(ErrorCodeNotIndexed, "repository not indexed", map[string]interface{}{
			"repository": repository,
			"hint":       "use index_repository first",
		})
	case errors.Is(err, searcher.ErrEmptyQuery):
		return nil, newMCPError(ErrorCodeEmptyQuery, "query cannot be empty", nil)
	case errors.Is(err, searcher.ErrInvalidRequest):
		return nil, newMCPError(ErrorCodeInvalidParams, err.Error(), nil)
	case err != nil:
		s.logger.Warn("search failed", zap.String("repository", repository), zap.Error(err))
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	hits := make([]map[string]interface{}, 0, len(result.Hits))
	for _, h := range result.Hits {
		hit := map[string]interface{}{
			"file":       h.Chunk.RelativePath,
			"start_line": h.Chunk.StartLine,
			"end_line":   h.Chunk.EndLine,
			"language":   h.Chunk.Language,
			"score":      h.Score,
			"content":    h.Chunk.Content,
		}
		if h.Chunk.Name != "" {
			hit["name"] = h.Chunk.Name
		}
		if h.Chunk.Kind != "" {
			hit["kind"] = h.Chunk.Kind
		}
		hits = append(hits, hit)
	}

	response := map[string]interface{}{
		"repository":  result.Repository,
		"query":       result.Query,
		"results":     hits,
		"count":       len(hits),
		"duration_ms": result.Duration.Milliseconds(),
	}
	if result.ModelMismatch {
		response["warning"] = "index was built with a different embedding model; scores are not comparable"
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repository := strings.TrimSpace(request.GetString("repository", ""))

	if repository == "" {
		all, err := s.indexer.List(ctx)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to list repositories", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"repositories": all,
			"count":        len(all),
		})), nil
	}

	status, err := s.indexer.Status(ctx, repository)
	if errors.Is(err, indexer.ErrNotIndexed) {
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"indexed":    false,
			"repository": repository,
			"message":    "Repository not indexed. Use index_repository to index it.",
		})), nil
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"indexed": true,
		"status":  status,
	})), nil
}

// handleResetIndex handles the reset_index tool invocation
func (s *Server) handleResetIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repository := strings.TrimSpace(request.GetString("repository", ""))
	if repository == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "repository parameter is required", map[string]interface{}{
			"param":  "repository",
			"reason": "missing or empty",
		})
	}

	err := s.indexer.Reset(ctx, repository)
	s.searcher.InvalidateCache()
	if errors.Is(err, indexer.ErrIndexInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing in progress", map[string]interface{}{
			"repository": repository,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "reset failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"reset":      true,
		"repository": repository,
		"collection": types.SanitizeName(repository),
	})), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// getStringSlice extracts an optional array-of-strings parameter.
func getStringSlice(args map[string]interface{}, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	invalid := newMCPError(ErrorCodeInvalidParams, key+" must be an array of strings", map[string]interface{}{
		"param": key,
	})

	switch v := raw.(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, invalid
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, invalid
	}
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}
