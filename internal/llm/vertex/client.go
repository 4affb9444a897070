// Package vertex implements llm.Provider on Vertex AI Gemini models.
package vertex

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/packet-underwriter/internal/common"
	"github.com/joseph-ayodele/packet-underwriter/internal/llm"
)

const providerName = "vertex"

type Config struct {
	Project     string
	Region      string
	Model       string // e.g. gemini-2.5-flash
	Temperature float32
}

type Client struct {
	cfg    Config
	base   *genai.Client
	logger *slog.Logger
}

func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Project == "" {
		return nil, common.ConfigError("vertex: project is required")
	}
	if cfg.Region == "" {
		cfg.Region = "asia-northeast1"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if logger == nil {
		logger = slog.Default()
	}
	base, err := genai.NewClient(ctx, cfg.Project, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &Client{cfg: cfg, base: base, logger: logger}, nil
}

func (c *Client) Close() error { return c.base.Close() }

func (c *Client) Name() string { return providerName }

// Generate builds a model per request; system instruction and response schema
// differ between callers.
func (c *Client) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	start := time.Now()

	model := c.base.GenerativeModel(c.cfg.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(req.System)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](c.cfg.Temperature),
	}
	if req.Schema != nil {
		model.GenerationConfig.ResponseMIMEType = "application/json"
		model.GenerationConfig.ResponseSchema = ToSchema(req.Schema)
	}

	parts := []genai.Part{genai.Text(req.User)}
	for _, img := range req.Images {
		parts = append(parts, genai.Blob{MIMEType: img.MIMEType, Data: img.Data})
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		c.logger.Error("llm.vertex.generate_error", "model", c.cfg.Model, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return llm.Response{}, classify(err)
	}

	out := llm.Response{Text: extractText(resp), Model: c.cfg.Model}
	if resp.UsageMetadata != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	if out.Text == "" {
		return out, &common.ProviderError{Provider: providerName, Op: "generate", Cause: fmt.Errorf("empty response")}
	}
	c.logger.Info("llm.vertex.ok",
		"model", c.cfg.Model,
		"schema", req.SchemaName,
		"tokens", out.Usage.Total(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func classify(err error) error {
	switch status.Code(err) {
	case codes.ResourceExhausted:
		return &common.RateLimitError{Provider: providerName}
	case codes.DeadlineExceeded, codes.Unavailable:
		return &common.ProviderError{Provider: providerName, Op: "generate (transient)", Cause: err}
	default:
		return &common.ProviderError{Provider: providerName, Op: "generate", Cause: err}
	}
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}

// ToSchema converts the JSON-Schema subset used by llm schema builders into a
// genai.Schema. Keywords Gemini does not support (pattern, bounds) are dropped;
// local validation still enforces them.
func ToSchema(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	s := &genai.Schema{}
	switch m["type"] {
	case "object":
		s.Type = genai.TypeObject
	case "array":
		s.Type = genai.TypeArray
	case "string":
		s.Type = genai.TypeString
	case "number":
		s.Type = genai.TypeNumber
	case "integer":
		s.Type = genai.TypeInteger
	case "boolean":
		s.Type = genai.TypeBoolean
	}
	if d, ok := m["description"].(string); ok {
		s.Description = d
	}
	if enum, ok := m["enum"].([]string); ok {
		s.Enum = append([]string(nil), enum...)
	}
	if req, ok := m["required"].([]string); ok {
		s.Required = append([]string(nil), req...)
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = ToSchema(items)
	}
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if pm, ok := props[k].(map[string]any); ok {
				s.Properties[k] = ToSchema(pm)
			}
		}
	}
	return s
}
