package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/packet-underwriter/internal/common"
	"github.com/joseph-ayodele/packet-underwriter/internal/llm"
)

func TestGenerate_SendsSchemaAndReadsUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		rf, ok := body["response_format"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "json_schema", rf["type"])

		w.Write([]byte(`{"model":"gpt-test","choices":[{"message":{"content":"{\"subtype\":\"invoice\",\"amount\":\"100\"}"}}],"usage":{"prompt_tokens":12,"completion_tokens":5}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL}, srv.Client(), nil)
	var out llm.DocumentFields
	resp, notes, err := llm.GenerateTyped(context.Background(), c, llm.Request{
		System:     "sys",
		User:       "user",
		Schema:     llm.BuildFieldsJSONSchema([]string{"invoice", "other"}),
		SchemaName: "invoice_fields",
	}, &out, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, notes)
	assert.Equal(t, "invoice", out.Subtype)
	assert.Equal(t, "100", out.Amount)
	assert.Equal(t, 17, resp.Usage.Total())
	assert.Equal(t, "gpt-test", resp.Model)
}

func TestGenerate_ImagesBecomeContentParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Content json.RawMessage `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		var parts []map[string]any
		require.NoError(t, json.Unmarshal(body.Messages[1].Content, &parts))
		assert.Len(t, parts, 2)
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, srv.Client(), nil)
	resp, err := c.Generate(context.Background(), llm.Request{User: "u", Images: []llm.Image{{MIMEType: "image/png", Data: []byte{1, 2}}}})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
}

func TestGenerate_RateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "20")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, srv.Client(), nil)
	_, err := c.Generate(context.Background(), llm.Request{User: "u"})
	require.Error(t, err)
	assert.True(t, common.IsRateLimited(err))
}

func TestGenerate_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, srv.Client(), nil)
	_, err := c.Generate(context.Background(), llm.Request{User: "u"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrProvider)
}
