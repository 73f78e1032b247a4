// Package mcp implements the Model Context Protocol (MCP) server for repoindex.
//
// The server exposes four tools to AI coding assistants:
//   - index_repository: index (or incrementally re-index) a repository
//   - search_code: natural language search over an indexed repository
//   - get_status: manifest summary for one repository, or all of them
//   - reset_index: drop a repository's collection and manifest
//
// MCP is JSON-RPC 2.0 over stdio. Logs go to stderr because stdout carries
// the protocol.
//
// # Tool: index_repository
//
//	Request:
//	{
//	  "name": "index_repository",
//	  "arguments": {
//	    "path": "/path/to/project",
//	    "name": "project",
//	    "force": false,
//	    "exclude": ["vendor/**"]
//	  }
//	}
//
//	Response:
//	{
//	  "success": true,
//	  "repository": "project",
//	  "collection": "project",
//	  "files_added": 12,
//	  "files_updated": 0,
//	  "files_removed": 0,
//	  "files_skipped": 0,
//	  "total_chunks": 57,
//	  "duration_ms": 840
//	}
//
// A run that aborts part-way is reported with "success": false, the error,
// and the tool result flagged as an error.
//
// # Tool: search_code
//
//	Request:
//	{
//	  "name": "search_code",
//	  "arguments": {
//	    "repository": "project",
//	    "query": "user authentication logic",
//	    "limit": 10,
//	    "min_score": 0.3
//	  }
//	}
//
//	Response:
//	{
//	  "results": [
//	    {
//	      "file": "internal/auth/service.go",
//	      "start_line": 45,
//	      "end_line": 72,
//	      "language": "go",
//	      "kind": "function",
//	      "name": "AuthenticateUser",
//	      "score": 0.81,
//	      "content": "func AuthenticateUser(...) { ... }"
//	    }
//	  ]
//	}
//
// # Error Handling
//
// Handlers return *MCPError values:
//   - -32602: invalid params (missing or malformed arguments, bad path)
//   - -32603: internal error (embedding backend, vector store, state store)
//   - -32002: indexing in progress for that repository
//   - -32003: repository not indexed
//   - -32004: empty query
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "repoindex": {
//	      "command": "/usr/local/bin/repoindex",
//	      "args": ["serve"],
//	      "env": {
//	        "REPOINDEX_EMBEDDING_PROVIDER": "ollama"
//	      }
//	    }
//	  }
//	}
package mcp
