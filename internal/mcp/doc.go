// Package mcp implements the Model Context Protocol (MCP) server for cycoach.
//
// Chat front-ends reach the memory engine through three tools:
//   - search_memory: rank vault notes against a natural language query
//   - ingest_vault: ingest new and modified notes
//   - memory_status: store size, index freshness and embedding provider
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Stdout carries the protocol, so everything else logs to stderr.
//
// # Basic Usage
//
//	cycoach serve
//	cycoach serve --watch --metrics-addr :9090
//
// # Tool: search_memory
//
//	Request:
//	{
//	  "name": "search_memory",
//	  "arguments": {
//	    "query": "how did the knee feel after intervals",
//	    "limit": 3
//	  }
//	}
//
//	Response:
//	{
//	  "query": "how did the knee feel after intervals",
//	  "results": [
//	    {
//	      "rank": 1,
//	      "path": "journal/2024-05-02.md",
//	      "score": 0.81,
//	      "vector_score": 0.73,
//	      "lexical_score": 1,
//	      "source": "hybrid",
//	      "content": "Intervals 6x800. Left knee sore on the last two..."
//	    }
//	  ],
//	  "total_results": 1,
//	  "corpus_size": 214,
//	  "index_empty": false
//	}
//
// With "format": "context" the result is plain text, one "- <snippet>" line
// per note, ready to drop into a prompt.
//
// # Tool: ingest_vault
//
//	Request:
//	{
//	  "name": "ingest_vault",
//	  "arguments": {"path": "/home/me/vault"}
//	}
//
//	Response:
//	{
//	  "vault": "/home/me/vault",
//	  "scanned": 214,
//	  "changed": 3,
//	  "skipped": 211,
//	  "failed": 0,
//	  "index_rebuilt": true
//	}
//
// # Error Handling
//
// Handlers return *MCPError values, which the framework encodes as JSON-RPC
// errors. Codes:
//   - -32602: Invalid params
//   - -32603: Internal error
//   - -32001: Vault not found
//   - -32002: Ingest in progress
//   - -32004: Missing query
package mcp
