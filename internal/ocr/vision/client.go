// Package vision is an HTTP client for a vision-OCR service with a per-call page limit.
package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joseph-ayodele/packet-underwriter/internal/common"
	"github.com/joseph-ayodele/packet-underwriter/internal/httputil"
	"github.com/joseph-ayodele/packet-underwriter/internal/ocr"
)

const providerName = "vision"

// codeInvalidPageRange is the error code the service returns for pages past the end.
const codeInvalidPageRange = "invalid_page_range"

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, hc *http.Client, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, common.ConfigError("vision: base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: hc, logger: logger}, nil
}

func (c *Client) Name() string { return providerName }

type imageRequest struct {
	Content  string `json:"content"`
	MimeType string `json:"mime_type"`
}

type pagesRequest struct {
	Content  string `json:"content"`
	MimeType string `json:"mime_type"`
	Pages    []int  `json:"pages"`
}

type token struct {
	Text       string  `json:"text"`
	Confidence float32 `json:"confidence"`
}

type imageResponse struct {
	Text       string  `json:"text"`
	Tokens     []token `json:"tokens"`
	Confidence float32 `json:"confidence"`
}

type pageResponse struct {
	Index      int     `json:"index"`
	Text       string  `json:"text"`
	Tokens     []token `json:"tokens"`
	Confidence float32 `json:"confidence"`
}

type pagesResponse struct {
	Pages      []pageResponse `json:"pages"`
	TotalPages int            `json:"total_pages"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Page    int    `json:"page"`
	} `json:"error"`
}

func (c *Client) RecognizeImage(ctx context.Context, req ocr.ImageRequest) (ocr.ImageResult, error) {
	raw, err := c.send(ctx, "ocr:image", imageRequest{
		Content:  base64.StdEncoding.EncodeToString(req.Content),
		MimeType: req.ContentType,
	}, 0)
	if err != nil {
		return ocr.ImageResult{}, err
	}
	var out imageResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return ocr.ImageResult{}, &common.ProviderError{Provider: providerName, Op: "ocr:image", Cause: fmt.Errorf("decode: %w", err)}
	}
	return ocr.ImageResult{
		Text:       out.Text,
		TokenText:  joinTokens(out.Tokens),
		Confidence: out.Confidence,
	}, nil
}

func (c *Client) RecognizePages(ctx context.Context, req ocr.PagesRequest) (ocr.PagesResult, error) {
	if len(req.Pages) == 0 {
		return ocr.PagesResult{}, nil
	}
	raw, err := c.send(ctx, "ocr:pages", pagesRequest{
		Content:  base64.StdEncoding.EncodeToString(req.Content),
		MimeType: req.ContentType,
		Pages:    req.Pages,
	}, req.Pages[0])
	if err != nil {
		return ocr.PagesResult{}, err
	}
	var out pagesResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return ocr.PagesResult{}, &common.ProviderError{Provider: providerName, Op: "ocr:pages", Cause: fmt.Errorf("decode: %w", err)}
	}
	res := ocr.PagesResult{TotalPages: out.TotalPages}
	for _, p := range out.Pages {
		conf := p.Confidence
		if conf == 0 {
			conf = meanConfidence(p.Tokens)
		}
		res.Pages = append(res.Pages, ocr.PageText{
			Index:      p.Index,
			Text:       p.Text,
			TokenText:  joinTokens(p.Tokens),
			Confidence: conf,
		})
	}
	return res, nil
}

func (c *Client) send(ctx context.Context, op string, body any, firstPage int) ([]byte, error) {
	headers := map[string]string{}
	if c.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + c.cfg.APIKey
	}
	raw, status, err := httputil.SendJSON(ctx, c.http, httputil.Request{
		Provider: providerName,
		Op:       op,
		URL:      c.cfg.BaseURL + "/v1/" + op,
		Body:     body,
		Headers:  headers,
	}, c.logger)
	if err == nil {
		return raw, nil
	}
	if status == http.StatusBadRequest || status == http.StatusNotFound {
		var env errorEnvelope
		if json.Unmarshal(raw, &env) == nil && env.Error.Code == codeInvalidPageRange {
			page := env.Error.Page
			if page == 0 {
				page = firstPage
			}
			return nil, &common.PageBoundaryError{Page: page}
		}
	}
	var pe *common.ProviderError
	if errors.As(err, &pe) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		pe.Op = op + " (timeout)"
	}
	return nil, err
}

func joinTokens(tokens []token) string {
	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if s := strings.TrimSpace(t.Text); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func meanConfidence(tokens []token) float32 {
	if len(tokens) == 0 {
		return 0
	}
	var sum float32
	for _, t := range tokens {
		sum += t.Confidence
	}
	return sum / float32(len(tokens))
}
