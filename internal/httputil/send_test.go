package httputil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/packet-underwriter/internal/common"
)

func TestSendJSON_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	body, status, err := SendJSON(context.Background(), srv.Client(), Request{
		Provider: "test",
		Op:       "ping",
		URL:      srv.URL,
		Body:     map[string]string{"a": "b"},
		Headers:  map[string]string{"Authorization": "Bearer k"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestSendJSON_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "20")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, status, err := SendJSON(context.Background(), srv.Client(), Request{Provider: "test", URL: srv.URL}, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.True(t, common.IsRateLimited(err))
	wait, ok := common.RetryAfterOf(err)
	assert.True(t, ok)
	assert.Equal(t, 20*time.Second, wait)
}

func TestSendJSON_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, _, err := SendJSON(context.Background(), srv.Client(), Request{Provider: "test", Op: "x", URL: srv.URL}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrProvider)
	assert.False(t, common.IsRateLimited(err))
	assert.Contains(t, err.Error(), "status 500")
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Duration(0), ParseRetryAfter("", now))
	assert.Equal(t, 5*time.Second, ParseRetryAfter("5", now))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("-3", now))
	assert.Equal(t, 30*time.Second, ParseRetryAfter(now.Add(30*time.Second).Format(http.TimeFormat), now))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("garbage", now))
}
