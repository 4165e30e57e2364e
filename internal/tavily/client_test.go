package tavily

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"oracle/internal/config"
)

func TestSearchReturnsResults(t *testing.T) {
	var receivedBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&receivedBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
		  "results": [
		    {"title":"AI Safety Overview","url":"https://arxiv.org/abs/1234.5678","content":"Technical content","score":0.9},
		    {"title":"","url":"https://example.com/b","content":"Snippet B","score":0.5},
		    {"title":"No URL","url":"","content":"dropped","score":0.4}
		  ]
		}`))
	}))
	defer server.Close()

	client := NewClient(config.Config{
		TavilyAPIKey:  "tavily-key",
		TavilyBaseURL: server.URL,
	}, server.Client())

	results, err := client.Search(context.Background(), "ai safety", 5, []string{"arxiv.org"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if receivedBody["api_key"] != "tavily-key" {
		t.Fatalf("expected api key in request body, got %v", receivedBody["api_key"])
	}
	if receivedBody["query"] != "ai safety" {
		t.Fatalf("unexpected query: %v", receivedBody["query"])
	}
	if receivedBody["search_depth"] != "advanced" {
		t.Fatalf("unexpected search depth: %v", receivedBody["search_depth"])
	}
	domains, ok := receivedBody["include_domains"].([]any)
	if !ok || len(domains) != 1 || domains[0] != "arxiv.org" {
		t.Fatalf("unexpected include_domains: %v", receivedBody["include_domains"])
	}

	if len(results) != 2 {
		t.Fatalf("expected 2 results after dropping empty url, got %d", len(results))
	}
	if results[0].Title != "AI Safety Overview" || results[0].Score != 0.9 {
		t.Fatalf("unexpected first result: %+v", results[0])
	}
	if results[1].Title != "Untitled" {
		t.Fatalf("expected fallback title, got %+v", results[1])
	}
}

func TestSearchReturnsErrMissingAPIKey(t *testing.T) {
	client := NewClient(config.Config{
		TavilyAPIKey:  "",
		TavilyBaseURL: "https://api.tavily.com",
	}, nil)

	_, err := client.Search(context.Background(), "test", 3, nil)
	if err != ErrMissingAPIKey {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestSearchReturnsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
	}))
	defer server.Close()

	client := NewClient(config.Config{
		TavilyAPIKey:  "tavily-key",
		TavilyBaseURL: server.URL,
	}, server.Client())

	_, err := client.Search(context.Background(), "test", 2, nil)
	if err == nil {
		t.Fatal("expected upstream error")
	}

	var apiErr APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 status, got %d", apiErr.StatusCode)
	}
	if !strings.Contains(err.Error(), "tavily returned 429") {
		t.Fatalf("expected status in error, got %v", err)
	}
}

func TestSearchEmptyQueryReturnsNothing(t *testing.T) {
	client := NewClient(config.Config{
		TavilyAPIKey:  "tavily-key",
		TavilyBaseURL: "https://api.tavily.com",
	}, nil)

	results, err := client.Search(context.Background(), "   ", 3, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if results != nil {
		t.Fatalf("expected no results for empty query, got %v", results)
	}
}
