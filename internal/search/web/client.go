// Package web is a search.Provider backed by an HTTP JSON search API.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/packet-underwriter/internal/common"
	"github.com/joseph-ayodele/packet-underwriter/internal/httputil"
	"github.com/joseph-ayodele/packet-underwriter/internal/search"
)

const defaultLimit = 10

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	cfg    Config
	hc     *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, hc *http.Client, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, common.ConfigError("search base URL is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, hc: hc, logger: logger}, nil
}

func (c *Client) Name() string { return "web" }

type searchResponse struct {
	Results []struct {
		Title       string `json:"title"`
		URL         string `json:"url"`
		Snippet     string `json:"snippet"`
		Description string `json:"description"`
	} `json:"results"`
}

// Search calls GET {base}/v1/search?q=...&limit=...
func (c *Client) Search(ctx context.Context, query string, limit int) ([]search.Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	params := url.Values{"q": {query}, "limit": {strconv.Itoa(limit)}}
	headers := map[string]string{}
	if c.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + c.cfg.APIKey
	}

	body, _, err := httputil.SendJSON(ctx, c.hc, httputil.Request{
		Provider: c.Name(),
		Op:       "search",
		Method:   http.MethodGet,
		URL:      c.cfg.BaseURL + "/v1/search?" + params.Encode(),
		Headers:  headers,
	}, c.logger)
	if err != nil {
		return nil, err
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, &common.ProviderError{Provider: c.Name(), Op: "search", Cause: err}
	}
	out := make([]search.Result, 0, len(sr.Results))
	for _, r := range sr.Results {
		snippet := r.Snippet
		if snippet == "" {
			snippet = r.Description
		}
		out = append(out, search.Result{Title: r.Title, URL: r.URL, Snippet: snippet})
	}
	if len(out) > limit {
		out = out[:limit]
	}
	c.logger.Debug("search.ok", "query", query, "results", len(out))
	return out, nil
}
