package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/joseph-ayodele/packet-underwriter/internal/common"
	"github.com/joseph-ayodele/packet-underwriter/internal/httputil"
	"github.com/joseph-ayodele/packet-underwriter/internal/llm"
)

const providerName = "openai"

func (c *Client) Name() string { return providerName }

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate implements llm.Provider using chat/completions. A schema on the
// request becomes a json_schema response format.
func (c *Client) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	start := time.Now()

	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"messages": []map[string]any{
			{"role": "system", "content": req.System},
			{"role": "user", "content": userContent(req)},
		},
	}
	if req.Schema != nil {
		name := req.SchemaName
		if name == "" {
			name = "output"
		}
		body["response_format"] = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   name,
				"schema": req.Schema,
				"strict": false,
			},
		}
	}

	raw, _, err := httputil.SendJSON(ctx, c.http, httputil.Request{
		Provider: providerName,
		Op:       "chat.completions",
		URL:      strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions",
		Body:     body,
		Headers:  map[string]string{"Authorization": "Bearer " + c.cfg.APIKey},
	}, c.logger)
	if err != nil {
		c.logger.Error("llm.openai.http_error",
			"model", c.cfg.Model, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Response{}, err
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.openai.decode_error", "error", err, "raw_bytes", len(raw))
		return llm.Response{}, &common.ProviderError{Provider: providerName, Op: "chat.completions", Cause: fmt.Errorf("decode response: %w", err)}
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.openai.no_choices", "raw", string(raw))
		return llm.Response{}, &common.ProviderError{Provider: providerName, Op: "chat.completions", Cause: fmt.Errorf("no choices in response")}
	}

	out := llm.Response{
		Text:  strings.TrimSpace(cc.Choices[0].Message.Content),
		Model: cc.Model,
		Usage: llm.Usage{PromptTokens: cc.Usage.PromptTokens, CompletionTokens: cc.Usage.CompletionTokens},
	}
	c.logger.Info("llm.openai.ok",
		"model", out.Model,
		"schema", req.SchemaName,
		"images", len(req.Images),
		"tokens", out.Usage.Total(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// userContent is a plain string, or content parts when images are attached.
func userContent(req llm.Request) any {
	if len(req.Images) == 0 {
		return req.User
	}
	parts := []map[string]any{{"type": "text", "text": req.User}}
	for _, img := range req.Images {
		parts = append(parts, map[string]any{
			"type": "image_url",
			"image_url": map[string]any{
				"url": "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data),
			},
		})
	}
	return parts
}
