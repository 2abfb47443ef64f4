package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daoyou-zhang/daoyoucode/internal/ailink/driver"
)

const messageResponse = `{
  "id": "msg_01",
  "type": "message",
  "role": "assistant",
  "model": "claude-3-5-haiku-20241022",
  "content": [{"type": "text", "text": "{\"summary\":\"fine\"}"}],
  "stop_reason": "end_turn",
  "stop_sequence": null,
  "usage": {"input_tokens": 12, "output_tokens": 7}
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Options{BaseURL: server.URL, APIKey: "test-key", HTTPClient: server.Client()})
}

func TestClientSendsMessagesRequest(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))
		require.Equal(t, "claude-3-5-haiku", payload["model"])
		require.EqualValues(t, 500, payload["max_tokens"])
		require.InDelta(t, 0.4, payload["temperature"], 1e-9)

		system, ok := payload["system"].([]any)
		require.True(t, ok)
		require.Len(t, system, 1)

		messages, ok := payload["messages"].([]any)
		require.True(t, ok)
		require.Len(t, messages, 1)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(messageResponse))
	})

	resp, err := client.Complete(context.Background(), &driver.Request{
		Model:       "claude-3-5-haiku",
		System:      "be brief",
		Messages:    []driver.Message{{Role: driver.RoleUser, Content: "hello"}},
		Temperature: driver.Float(0.4),
		MaxTokens:   driver.Int(500),
	})
	require.NoError(t, err)
	require.Equal(t, `{"summary":"fine"}`, resp.Text)
	require.Equal(t, "end_turn", resp.FinishReason)
	require.Equal(t, 19, resp.Usage.TotalTokens)
	require.Equal(t, 12, resp.Usage.PromptTokens)
}

func TestClientDefaultsMaxTokens(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.EqualValues(t, DefaultMaxTokens, payload["max_tokens"])
		_, hasTemp := payload["temperature"]
		require.False(t, hasTemp)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(messageResponse))
	})

	_, err := client.Complete(context.Background(), &driver.Request{
		Model:    "claude-3-5-haiku",
		Messages: []driver.Message{{Role: driver.RoleUser, Content: "hello"}},
	})
	require.NoError(t, err)
}

func TestClientMapsAPIErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	})

	_, err := client.Complete(context.Background(), &driver.Request{
		Model:    "claude-3-opus",
		Messages: []driver.Message{{Role: driver.RoleUser, Content: "hello"}},
	})
	var perr *driver.ProviderError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, "anthropic", perr.Provider)
	require.Equal(t, http.StatusServiceUnavailable, perr.StatusCode)
	require.True(t, perr.Transient())
	require.Contains(t, perr.Message, "Overloaded")
}

func TestBuildParamsValidates(t *testing.T) {
	_, err := buildParams(nil)
	require.Error(t, err)

	_, err = buildParams(&driver.Request{Model: "m"})
	require.ErrorContains(t, err, "messages")

	params, err := buildParams(&driver.Request{
		Model:    "m",
		JSONMode: true,
		Messages: []driver.Message{
			{Role: driver.RoleSystem, Content: "ignored"},
			{Role: driver.RoleUser, Content: "q"},
			{Role: driver.RoleAssistant, Content: "a"},
		},
	})
	require.NoError(t, err)
	require.Len(t, params.Messages, 2)
	require.Len(t, params.System, 1)
	require.Contains(t, params.System[0].Text, "JSON object")
}
