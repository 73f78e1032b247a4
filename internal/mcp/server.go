package mcp

import (
	"context"
	"io"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/repoindex/internal/indexer"
	"github.com/dshills/repoindex/internal/searcher"
)

const (
	// ServerName is the MCP server name
	ServerName = "repoindex"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	logger   *zap.Logger
}

// NewServer creates a new MCP server instance
func NewServer(idx *indexer.Indexer, srch *searcher.Searcher, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		mcp:      server.NewMCPServer(ServerName, version, server.WithToolCapabilities(false)),
		indexer:  idx,
		searcher: srch,
		logger:   logger,
	}
	s.registerTools()
	return s
}

// Serve speaks MCP over in/out (normally stdin/stdout) until ctx is
// cancelled or the input closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))
	s.logger.Info("MCP server ready, listening on stdio")
	return stdio.Listen(ctx, in, out)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(indexRepositoryTool(), s.handleIndexRepository)
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(resetIndexTool(), s.handleResetIndex)
}
