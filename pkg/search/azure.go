// Package search queries Azure Cognitive Search for the voice agent's
// document-lookup tool.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/starshield/voicebridge/internal/httpc"
)

const apiVersion = "2023-11-01"

// snippetLimit keeps function output small enough for the model to ingest.
const snippetLimit = 800

// Result is one document hit, reduced to what the agent can speak aloud.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Client queries one Azure Cognitive Search index.
type Client struct {
	endpoint       string
	index          string
	apiKey         string
	semanticConfig string

	http *http.Client
}

// NewClient creates a search client for the given index.
func NewClient(endpoint, index, apiKey, semanticConfig string) *Client {
	return &Client{
		endpoint:       strings.TrimRight(endpoint, "/"),
		index:          index,
		apiKey:         apiKey,
		semanticConfig: semanticConfig,
		http:           httpc.Client,
	}
}

type searchRequest struct {
	Search                string `json:"search"`
	Top                   int    `json:"top"`
	QueryType             string `json:"queryType,omitempty"`
	SemanticConfiguration string `json:"semanticConfiguration,omitempty"`
	QueryLanguage         string `json:"queryLanguage,omitempty"`
}

// Search runs a query and returns up to topK trimmed results.
func (c *Client) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		topK = 5
	}

	payload := searchRequest{Search: query, Top: topK}
	if c.semanticConfig != "" {
		payload.QueryType = "semantic"
		payload.SemanticConfiguration = c.semanticConfig
		payload.QueryLanguage = "en-us"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("search: encode query: %w", err)
	}

	endpoint := fmt.Sprintf("%s/indexes/%s/docs/search?api-version=%s", c.endpoint, c.index, apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("search: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: query index: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("search: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: Azure Search error: %s", strings.TrimSpace(string(raw)))
	}

	var parsed struct {
		Value []map[string]any `json:"value"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}

	results := make([]Result, 0, len(parsed.Value))
	for _, doc := range parsed.Value {
		results = append(results, Result{
			Title:   docTitle(doc),
			Snippet: docSnippet(doc),
		})
	}
	return results, nil
}

// docTitle picks the first plausible display name the index exposes.
func docTitle(doc map[string]any) string {
	for _, field := range []string{"metadata_storage_name", "title", "name", "id"} {
		if value, ok := doc[field].(string); ok && value != "" {
			return value
		}
	}
	return "Result"
}

// docSnippet picks the first text-bearing field and truncates it.
func docSnippet(doc map[string]any) string {
	for _, field := range []string{"content", "text", "description", "summary"} {
		if value, ok := doc[field].(string); ok && value != "" {
			return truncate(value, snippetLimit)
		}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return ""
	}
	return truncate(string(raw), snippetLimit)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
