package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/cg-ch/cycoach/internal/searcher"
)

// Tool names
const (
	ToolSearchMemory = "search_memory"
	ToolIngestVault  = "ingest_vault"
	ToolMemoryStatus = "memory_status"
)

// search_memory output formats
const (
	FormatJSON    = "json"
	FormatContext = "context"
)

// searchMemoryTool returns the tool definition for search_memory
func searchMemoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolSearchMemory,
		Description: "Search the coaching memory vault with a natural language query. Ranks notes by semantic similarity and keyword overlap.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "What to look for, e.g. 'how did my knee feel after intervals'",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of notes to return (1-100)",
					"default":     searcher.DefaultLimit,
					"minimum":     1,
					"maximum":     searcher.MaxLimit,
				},
				"format": map[string]interface{}{
					"type":        "string",
					"description": "json for scored results, context for a bulleted block ready to paste into a prompt",
					"enum":        []string{FormatJSON, FormatContext},
					"default":     FormatJSON,
				},
				"max_chars": map[string]interface{}{
					"type":        "integer",
					"description": "Characters of each note to include with format=context",
					"default":     searcher.DefaultSnippetChars,
					"minimum":     1,
				},
			},
			Required: []string{"query"},
		},
	}
}

// ingestVaultTool returns the tool definition for ingest_vault
func ingestVaultTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolIngestVault,
		Description: "Ingest new and modified markdown notes from the vault into memory",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to a vault directory. Defaults to the configured vault.",
				},
			},
		},
	}
}

// memoryStatusTool returns the tool definition for memory_status
func memoryStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolMemoryStatus,
		Description: "Report document count, store size, index freshness and embedding provider",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
