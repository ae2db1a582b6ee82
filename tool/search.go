package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/util"
	"github.com/hupe1980/agentloop/search"
)

// Searcher is the backend queried by SearchTool.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]search.Result, error)
}

// SearchOptions configure a SearchTool.
type SearchOptions struct {
	Name        string
	Description string
	MaxResults  int
}

// SearchTool answers free-text queries from a Searcher.
type SearchTool struct {
	searcher Searcher
	opts     SearchOptions
}

// NewSearchTool creates a search tool returning at most two results by default.
func NewSearchTool(s Searcher, optFns ...func(o *SearchOptions)) *SearchTool {
	opts := SearchOptions{
		Name:        "search",
		Description: "Search the web for current information. Use it for questions about recent events or facts you do not know.",
		MaxResults:  2,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &SearchTool{searcher: s, opts: opts}
}

// Name implements Tool.
func (t *SearchTool) Name() string { return t.opts.Name }

// Description implements Tool.
func (t *SearchTool) Description() string { return t.opts.Description }

// Parameters implements Tool.
func (t *SearchTool) Parameters() map[string]any {
	return util.ObjectSchema(map[string]util.Property{
		"query": {Type: "string", Description: "Search query"},
	}, "query")
}

type searchResponse struct {
	Query   string          `json:"query"`
	Results []search.Result `json:"results"`
}

// Call implements Tool.
func (t *SearchTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, NewToolError(t.opts.Name, "query must not be empty", CodeValidation)
	}

	results, err := t.searcher.Search(tc.Context(), query, t.opts.MaxResults)
	if err != nil {
		return nil, NewToolError(t.opts.Name, fmt.Sprintf("search failed: %v", err), CodeExecution)
	}

	tc.LogDebug("tool.search.results", "query", query, "count", len(results))

	return searchResponse{Query: query, Results: results}, nil
}
