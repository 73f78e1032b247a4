package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func stringArray(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"description": description,
		"items":       map[string]interface{}{"type": "string"},
	}
}

// indexRepositoryTool returns the tool definition for index_repository
func indexRepositoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_repository",
		Description: "Index a source repository for semantic search. Re-running only re-embeds files whose content changed.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the repository root",
				},
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Repository name used for later searches (defaults to the directory name)",
				},
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, drop the existing index and re-embed every file",
					"default":     false,
				},
				"include": stringArray("Glob patterns of files to index (e.g. 'src/**/*.py'); empty indexes every text file"),
				"exclude": stringArray("Glob patterns of files to skip; exclusion wins over inclusion"),
			},
			Required: []string{"path"},
		},
	}
}

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Description: "Search an indexed repository with a natural language query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"repository": map[string]interface{}{
					"type":        "string",
					"description": "Repository name given at indexing time",
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural language search query",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"min_score": map[string]interface{}{
					"type":        "number",
					"description": "Minimum similarity score (0.0-1.0)",
					"minimum":     0.0,
					"maximum":     1.0,
				},
			},
			Required: []string{"repository", "query"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Show index status for one repository, or list every indexed repository when none is given",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"repository": map[string]interface{}{
					"type":        "string",
					"description": "Repository name; omit to list all",
				},
			},
		},
	}
}

// resetIndexTool returns the tool definition for reset_index
func resetIndexTool() mcp.Tool {
	return mcp.Tool{
		Name:        "reset_index",
		Description: "Delete a repository's index and stored state",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"repository": map[string]interface{}{
					"type":        "string",
					"description": "Repository name to reset",
				},
			},
			Required: []string{"repository"},
		},
	}
}
