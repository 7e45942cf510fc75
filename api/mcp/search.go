package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/mnemo/pkg/recall"
	"github.com/papercomputeco/mnemo/pkg/storage"
	"github.com/papercomputeco/mnemo/pkg/utils"
)

var (
	memorySearchToolName    = "memory_search"
	memorySearchDescription = "Search a user's stored memories. Optionally filter by text and by a time window such as \"today\", \"yesterday\", \"last week\", \"last 3 days\" or \"2024-03-01..2024-03-07\", interpreted in the user's own timezone."
)

const previewLen = 280

// MemorySearchInput represents the input arguments for the memory_search tool.
type MemorySearchInput struct {
	WhatsappNumber string `json:"whatsapp_number" jsonschema:"the user's WhatsApp number with country code"`
	Query          string `json:"query,omitempty" jsonschema:"optional text the memory must contain"`
	Window         string `json:"window,omitempty" jsonschema:"optional time window in the user's timezone"`
	Limit          int    `json:"limit,omitempty" jsonschema:"maximum number of memories to return (default: 10)"`
}

// MemoryResult represents a single matching memory.
type MemoryResult struct {
	ExternalID string    `json:"external_id"`
	Kind       string    `json:"kind"`
	Preview    string    `json:"preview"`
	CreatedAt  time.Time `json:"created_at"`
}

// MemorySearchOutput represents the output of the memory_search tool.
type MemorySearchOutput struct {
	Query       string         `json:"query,omitempty"`
	Timezone    string         `json:"timezone"`
	WindowStart *time.Time     `json:"window_start,omitempty"`
	WindowEnd   *time.Time     `json:"window_end,omitempty"`
	Results     []MemoryResult `json:"results"`
	Count       int            `json:"count"`
}

// handleMemorySearch processes a memory search request.
func (s *Server) handleMemorySearch(ctx context.Context, _ *mcp.CallToolRequest, input MemorySearchInput) (*mcp.CallToolResult, MemorySearchOutput, error) {
	logger := s.config.Logger

	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	logger.Debug("MCP memory search request",
		"query", input.Query,
		"window", input.Window,
		"limit", limit,
	)

	if input.WhatsappNumber == "" {
		return toolError("whatsapp_number is required"), MemorySearchOutput{}, nil
	}

	user, err := s.config.Identity.Lookup(ctx, input.WhatsappNumber)
	if err != nil {
		return toolError(fmt.Sprintf("User lookup failed: %v", err)), MemorySearchOutput{}, nil
	}

	res, err := s.config.Searcher.Search(ctx, recall.Query{
		UserID:     user.ID,
		Text:       input.Query,
		Expression: input.Window,
		Limit:      limit,
	})
	if err != nil {
		logger.Error("memory search failed", "user_id", user.ID, "error", err)
		return toolError(fmt.Sprintf("Memory search failed: %v", err)), MemorySearchOutput{}, nil
	}

	output := buildOutput(input.Query, res)

	// Structured output is also serialized into a text block for clients
	// that only read content.
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return toolError(fmt.Sprintf("Failed to serialize results: %v", err)), MemorySearchOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}

func buildOutput(query string, res *recall.Result) MemorySearchOutput {
	out := MemorySearchOutput{
		Query:    query,
		Timezone: res.Timezone,
		Results:  make([]MemoryResult, 0, len(res.Memories)),
	}
	if res.Window != nil {
		out.WindowStart = &res.Window.Start
		out.WindowEnd = &res.Window.End
	}
	for _, m := range res.Memories {
		out.Results = append(out.Results, memoryResult(m))
	}
	out.Count = len(out.Results)
	return out
}

func memoryResult(m *storage.Memory) MemoryResult {
	return MemoryResult{
		ExternalID: m.ExternalID,
		Kind:       string(m.Kind),
		Preview:    utils.Truncate(m.Content, previewLen),
		CreatedAt:  m.CreatedAt,
	}
}

func toolError(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}
