package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv.URL + "/v1/"
}

func completion(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
	return string(body)
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := Config{MaxRetries: -1}
	cfg.Normalize()
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, int64(DefaultMaxTokens), cfg.MaxTokens)
	assert.Equal(t, DefaultTemperature, cfg.Temperature)
	assert.Zero(t, cfg.MaxRetries)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
}

func TestCompleteSendsPrompts(t *testing.T) {
	var got map[string]any
	url := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completion("  Договор содержит риски.  "))
	})

	c, err := New(Config{APIKey: "sk-test", BaseURL: url, MaxRetries: -1, Timeout: 5 * time.Second})
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "ты юрист", "проверь договор")
	require.NoError(t, err)
	assert.Equal(t, "Договор содержит риски.", out)

	assert.Equal(t, DefaultModel, got["model"])
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
}

func TestCompleteNoChoices(t *testing.T) {
	url := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`)
	})
	c, err := New(Config{APIKey: "k", BaseURL: url, MaxRetries: -1})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), "s", "u")
	assert.ErrorIs(t, err, ErrNoChoices)
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	url := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After-Ms", "1")
			http.Error(w, `{"error":{"message":"busy"}}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completion("ok"))
	})
	c, err := New(Config{APIKey: "k", BaseURL: url, MaxRetries: 2})
	require.NoError(t, err)
	out, err := c.Complete(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCompleteFailure(t *testing.T) {
	url := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
	})
	c, err := New(Config{APIKey: "k", BaseURL: url, MaxRetries: -1})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), "s", "u")
	assert.Error(t, err)
}
