// Package search defines the web search provider used for adverse-media screening.
package search

import (
	"context"
	"strings"
)

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Provider searches the web. A 429 from the backend surfaces as common.RateLimitError.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// Dedupe drops results whose URL was already seen, keeping first occurrence order.
func Dedupe(results []Result) []Result {
	seen := make(map[string]bool, len(results))
	out := results[:0:0]
	for _, r := range results {
		key := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(r.URL)), "/")
		if key == "" {
			key = strings.ToLower(strings.TrimSpace(r.Title))
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}
