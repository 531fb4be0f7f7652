package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/cg-ch/cycoach/internal/indexer"
	"github.com/cg-ch/cycoach/internal/memory"
	"github.com/cg-ch/cycoach/internal/searcher"
)

// MCP error codes
const (
	ErrorCodeInvalidParams    = -32602 // Invalid method parameters
	ErrorCodeInternalError    = -32603 // Internal JSON-RPC error
	ErrorCodeVaultNotFound    = -32001 // Vault path missing or not a directory
	ErrorCodeIngestInProgress = -32002 // Another ingest is already running
	ErrorCodeEmptyQuery       = -32004 // Query parameter is missing
)

// maxReportedErrors caps per-file errors echoed back to the client
const maxReportedErrors = 5

// handleSearchMemory handles the search_memory tool invocation
func (s *Server) handleSearchMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := arguments(request)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	// A blank query is valid and ranks by embedding alone
	query, ok := args["query"].(string)
	if !ok {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required", map[string]interface{}{
			"param":  "query",
			"reason": "missing or not a string",
		})
	}

	limit := getIntDefault(args, "limit", searcher.DefaultLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	format := getStringDefault(args, "format", FormatJSON)
	if format != FormatJSON && format != FormatContext {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid format", map[string]interface{}{
			"param":   "format",
			"value":   format,
			"allowed": []string{FormatJSON, FormatContext},
		})
	}

	maxChars := getIntDefault(args, "max_chars", searcher.DefaultSnippetChars)
	if maxChars < 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "max_chars must be positive", map[string]interface{}{
			"param": "max_chars",
			"value": maxChars,
		})
	}

	resp, err := s.searcher.Search(ctx, searcher.SearchRequest{Query: query, Limit: limit})
	if err != nil {
		s.logger.Warn().Err(err).Str("query", query).Msg("search_memory failed")
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if format == FormatContext {
		return mcp.NewToolResultText(searcher.FormatContext(resp.Results, maxChars)), nil
	}

	results := make([]map[string]interface{}, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = map[string]interface{}{
			"rank":          r.Rank,
			"path":          r.Path,
			"score":         r.Score,
			"vector_score":  r.VectorScore,
			"lexical_score": r.LexicalScore,
			"source":        r.Source,
			"content":       r.Content,
		}
	}

	response := map[string]interface{}{
		"query":           query,
		"results":         results,
		"total_results":   resp.TotalResults,
		"corpus_size":     resp.CorpusSize,
		"index_empty":     resp.IndexEmpty,
		"skipped_corrupt": resp.SkippedCorrupt,
		"duration_ms":     resp.Duration.Milliseconds(),
	}
	if resp.IndexEmpty {
		response["message"] = "Memory is empty. Use ingest_vault to ingest the vault first."
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIngestVault handles the ingest_vault tool invocation
func (s *Server) handleIngestVault(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := arguments(request)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path := getStringDefault(args, "path", "")
	if path == "" {
		path = s.vaultPath
	} else if err := validatePath(path); err != nil {
		code := ErrorCodeInvalidParams
		if errors.Is(err, ErrPathNotFound) || errors.Is(err, ErrNotDirectory) {
			code = ErrorCodeVaultNotFound
		}
		return nil, newMCPError(code, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	stats, err := s.indexer.Ingest(ctx, path)
	switch {
	case errors.Is(err, memory.ErrIngestInProgress):
		return nil, newMCPError(ErrorCodeIngestInProgress, "an ingest is already running", nil)
	case errors.Is(err, indexer.ErrVaultNotFound):
		return nil, newMCPError(ErrorCodeVaultNotFound, "vault not found", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "ingest failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"vault":         path,
		"scanned":       stats.Scanned,
		"changed":       stats.Changed,
		"skipped":       stats.Skipped,
		"empty":         stats.Empty,
		"touched":       stats.Touched,
		"failed":        stats.Failed,
		"interrupted":   stats.Interrupted,
		"index_rebuilt": stats.IndexRebuilt,
		"duration_ms":   stats.Duration.Milliseconds(),
	}

	if len(stats.ErrorMessages) > 0 {
		errorCount := len(stats.ErrorMessages)
		if errorCount > maxReportedErrors {
			response["errors"] = stats.ErrorMessages[:maxReportedErrors]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleMemoryStatus handles the memory_status tool invocation
func (s *Server) handleMemoryStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.engine.Store().GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	snap := s.engine.Snapshot()
	emb := s.engine.Embedder()

	store := map[string]interface{}{
		"documents":      status.DocumentCount,
		"content_bytes":  status.ContentBytes,
		"revision":       status.Revision,
		"database_mb":    fmt.Sprintf("%.2f", status.DatabaseMB),
		"schema_version": status.SchemaVersion,
	}
	if !status.LastUpdatedAt.IsZero() {
		store["last_updated_at"] = status.LastUpdatedAt.Format(time.RFC3339)
	}

	response := map[string]interface{}{
		"vault": s.vaultPath,
		"store": store,
		"index": map[string]interface{}{
			"documents":          snap.Len(),
			"revision":           snap.Revision,
			"stale":              snap.Revision != status.Revision,
			"corrupt":            len(snap.Corrupt),
			"built_at":           snap.BuiltAt.Format(time.RFC3339),
			"ingest_in_progress": s.engine.IngestInProgress(),
		},
		"embedding": map[string]interface{}{
			"provider":  emb.Provider(),
			"model":     emb.Model(),
			"dimension": emb.Dimension(),
		},
		"health": map[string]interface{}{
			"database_accessible":  status.Health.DatabaseAccessible,
			"embeddings_available": status.Health.EmbeddingsAvailable,
		},
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
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

// arguments returns the tool arguments; absent arguments are an empty map
func arguments(request mcp.CallToolRequest) (map[string]interface{}, bool) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, true
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	return args, ok
}

// validatePath checks that path is an absolute, readable directory
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
