package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, content string, check func(body map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if check != nil {
			check(body)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "x",
			"object": "chat.completion",
			"choices": []any{
				map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": content}},
			},
			"usage": map[string]any{"total_tokens": 12},
		})
	}))
}

func TestClientCompleteSendsJSONMode(t *testing.T) {
	srv := chatServer(t, `{"ok":true}`, func(body map[string]any) {
		assert.Equal(t, "gpt-test", body["model"])
		rf, _ := body["response_format"].(map[string]any)
		assert.Equal(t, "json_object", rf["type"])
		msgs, _ := body["messages"].([]any)
		assert.Len(t, msgs, 2)
	})
	defer srv.Close()

	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	out, err := c.Complete(context.Background(), Request{Model: "gpt-test", System: "sys", User: "hi", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
}

func TestClientCompleteEmptyContent(t *testing.T) {
	srv := chatServer(t, "   ", nil)
	defer srv.Close()

	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), Request{Model: "gpt-test", User: "hi"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestClientCompleteRequiresModel(t *testing.T) {
	c := NewClient(Config{APIKey: "k"})
	_, err := c.Complete(context.Background(), Request{User: "hi"})
	assert.Error(t, err)
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, ExtractJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":{"b":"}"}}`, ExtractJSON(`noise {"a":{"b":"}"}} trailing`))
	assert.Equal(t, "", ExtractJSON("no json here"))
	assert.Equal(t, "", ExtractJSON(`{"unterminated": 1`))
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Status string `json:"status"`
	}
	require.NoError(t, DecodeJSON(`Sure! {"status":"ok"}`, &v))
	assert.Equal(t, "ok", v.Status)
	assert.Error(t, DecodeJSON("nothing", &v))
}
