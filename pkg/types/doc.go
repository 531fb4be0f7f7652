// Package types provides shared type definitions for the cycoach memory engine.
//
// SearchResult is what search hands to its consumers: the CLI, the MCP tools
// and any chat front-end assembling prompt context.
//
//	result := types.SearchResult{
//	    Rank:         1,
//	    Path:         "journal/2024-05-01.md",
//	    Score:        0.81,
//	    VectorScore:  0.73,
//	    LexicalScore: 1,
//	    Source:       types.SourceHybrid,
//	    Content:      content,
//	}
//
//	if err := result.Validate(); err != nil {
//	    return err
//	}
package types
