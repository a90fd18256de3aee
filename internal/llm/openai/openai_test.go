package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/podcastd/internal/config"
	"github.com/nadzzz/podcastd/internal/llm"
)

type capturedRequest struct {
	Model    string `json:"model"`
	Stream   bool   `json:"stream"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func chatServer(t *testing.T, reply string, got *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(got))

		if got.Stream {
			w.Header().Set("Content-Type", "text/event-stream")
			for _, part := range []string{reply[:len(reply)/2], reply[len(reply)/2:]} {
				chunk := map[string]any{
					"id": "chunk", "object": "chat.completion.chunk", "created": 1, "model": got.Model,
					"choices": []map[string]any{{"index": 0, "delta": map[string]any{"role": "assistant", "content": part}}},
				}
				b, _ := json.Marshal(chunk)
				fmt.Fprintf(w, "data: %s\n\n", b)
			}
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "resp", "object": "chat.completion", "created": 1, "model": got.Model,
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestComplete_Generate(t *testing.T) {
	t.Parallel()

	var got capturedRequest
	srv := chatServer(t, "Title\nTags\nBody", &got)

	client, err := New(context.Background(), llm.Credentials{APIKey: "test-key", BaseURL: srv.URL, Model: "gpt-test"}, false, 5*time.Second)
	require.NoError(t, err)

	text, err := client.Complete(context.Background(), "system prompt", "user message")
	require.NoError(t, err)
	assert.Equal(t, "Title\nTags\nBody", text)

	assert.Equal(t, "gpt-test", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "system prompt", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "user message", got.Messages[1].Content)
}

func TestComplete_Stream(t *testing.T) {
	t.Parallel()

	var got capturedRequest
	srv := chatServer(t, `{"dialogue_lines":[]}`, &got)

	client, err := New(context.Background(), llm.Credentials{APIKey: "test-key", BaseURL: srv.URL, Model: "gpt-test"}, true, 5*time.Second)
	require.NoError(t, err)

	text, err := client.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, `{"dialogue_lines":[]}`, text)
	assert.True(t, got.Stream)
}

func TestComplete_UpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, err := New(context.Background(), llm.Credentials{APIKey: "test-key", BaseURL: srv.URL, Model: "m"}, false, 5*time.Second)
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "sys", "user")
	require.Error(t, err)
}

func TestNew_RequiresKey(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), llm.Credentials{BaseURL: "http://localhost"}, false, time.Second)
	require.Error(t, err)
}

func TestFactory_FillsDefaults(t *testing.T) {
	t.Parallel()

	var got capturedRequest
	srv := chatServer(t, "ok", &got)

	factory := NewFactory(config.LLMConfig{APIKey: "test-key", BaseURL: srv.URL + "/", Model: "default-model", Timeout: 5 * time.Second})
	completer, err := factory(context.Background(), llm.Credentials{})
	require.NoError(t, err)

	text, err := completer.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, "default-model", got.Model)
}
