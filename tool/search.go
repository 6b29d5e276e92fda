package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hupe1980/agentloop/core"
)

// SearchToolName is the registry name of the web search tool.
const SearchToolName = "web_search"

// DefaultSearchEndpoint is the Tavily search API endpoint.
const DefaultSearchEndpoint = "https://api.tavily.com/search"

// MaxSearchResults caps the max_results argument requested by the model.
const MaxSearchResults = 20

// SearchOptions configure NewSearchTool.
type SearchOptions struct {
	APIKey     string
	Endpoint   string
	MaxResults int
	Client     *http.Client
}

// SearchTool queries a Tavily-compatible web search API over HTTP. It is the
// network-bound tool of the default registry.
type SearchTool struct {
	opts SearchOptions
}

// NewSearchTool creates the web_search tool.
func NewSearchTool(optFns ...func(o *SearchOptions)) *SearchTool {
	opts := SearchOptions{
		Endpoint:   DefaultSearchEndpoint,
		MaxResults: 5,
		Client:     &http.Client{Timeout: 30 * time.Second},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &SearchTool{opts: opts}
}

// Name implements Tool.
func (t *SearchTool) Name() string { return SearchToolName }

// Description implements Tool.
func (t *SearchTool) Description() string {
	return "Search the web for current information. Include locations and dates in the query when they matter."
}

// Parameters implements Tool.
func (t *SearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query":       map[string]any{"type": "string", "description": "The search query"},
			"max_results": map[string]any{"type": "integer", "description": "Maximum number of results", "minimum": 1, "maximum": MaxSearchResults},
		},
		"required": []string{"query"},
	}
}

type searchRequest struct {
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
}

// SearchResult is one hit returned by the search API.
type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// SearchResponse is the subset of the API response surfaced to the model.
type SearchResponse struct {
	Query   string         `json:"query"`
	Answer  string         `json:"answer,omitempty"`
	Results []SearchResult `json:"results"`
}

// Call implements Tool.
func (t *SearchTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return nil, &ToolError{Tool: SearchToolName, CallID: toolCtx.CallID(), Code: core.CodeValidation, Message: "query must not be empty"}
	}

	if t.opts.APIKey == "" {
		return nil, &ToolError{Tool: SearchToolName, CallID: toolCtx.CallID(), Code: core.CodeExecution, Message: "search API key is not configured"}
	}

	limit := t.opts.MaxResults
	if n, ok := args["max_results"].(float64); ok && n > 0 {
		limit = int(min(n, MaxSearchResults))
	}

	limit = min(limit, MaxSearchResults)

	payload, err := json.Marshal(searchRequest{Query: query, MaxResults: limit, IncludeAnswer: true})
	if err != nil {
		return nil, fmt.Errorf("web_search: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(toolCtx.Context(), http.MethodPost, t.opts.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("web_search: create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.opts.APIKey)

	resp, err := t.opts.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web_search: call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("web_search: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("web_search: endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out SearchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("web_search: parse response: %w", err)
	}

	if out.Query == "" {
		out.Query = query
	}

	toolCtx.LogDebug("tool.search.done", "results", len(out.Results))

	return out, nil
}

var _ Tool = (*SearchTool)(nil)
