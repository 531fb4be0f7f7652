package mcp

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/cg-ch/cycoach/internal/indexer"
	"github.com/cg-ch/cycoach/internal/memory"
	"github.com/cg-ch/cycoach/internal/searcher"
)

const (
	// ServerName is the MCP server name
	ServerName = "cycoach-memory"
	// DefaultServerVersion is reported when no build version is set
	DefaultServerVersion = "dev"
)

// Options configures the MCP server
type Options struct {
	VaultPath string // Vault ingested when ingest_vault gets no path
	Version   string
	Logger    zerolog.Logger
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp       *server.MCPServer
	engine    *memory.Engine
	indexer   *indexer.Indexer
	searcher  *searcher.Searcher
	vaultPath string
	logger    zerolog.Logger
}

// NewServer creates a new MCP server over an existing engine.
// The indexer and searcher must have been built on the same engine.
func NewServer(engine *memory.Engine, idx *indexer.Indexer, srch *searcher.Searcher, opts Options) (*Server, error) {
	if engine == nil || idx == nil || srch == nil {
		return nil, errors.New("mcp: engine, indexer and searcher are required")
	}
	if opts.Version == "" {
		opts.Version = DefaultServerVersion
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		opts.Version,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		mcp:       mcpServer,
		engine:    engine,
		indexer:   idx,
		searcher:  srch,
		vaultPath: opts.VaultPath,
		logger:    opts.Logger,
	}

	s.registerTools()

	return s, nil
}

// Serve speaks MCP on stdin/stdout until ctx is cancelled or stdin closes
func (s *Server) Serve(ctx context.Context) error {
	return s.Listen(ctx, os.Stdin, os.Stdout)
}

// Listen speaks MCP over the given streams
func (s *Server) Listen(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info().Str("server", ServerName).Msg("MCP server ready, listening on stdio")
	err := server.NewStdioServer(s.mcp).Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(searchMemoryTool(), s.handleSearchMemory)
	s.mcp.AddTool(ingestVaultTool(), s.handleIngestVault)
	s.mcp.AddTool(memoryStatusTool(), s.handleMemoryStatus)
}
