package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(Config{APIKey: "test-key"})
	client.SetBaseURL(server.URL)
	client.SetHTTPClient(server.Client())
	return client
}

func TestConverseReturnsToolUses(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, APIVersion, r.Header.Get("anthropic-version"))

		var req MessagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultModel, req.Model)
		require.Len(t, req.Tools, 1)
		assert.Equal(t, "search_inbox", req.Tools[0].Name)

		resp := MessagesResponse{
			ID:         "msg_01",
			Role:       "assistant",
			StopReason: "tool_use",
			Content: []ContentBlock{
				{Type: "text", Text: "Searching the inbox."},
				{Type: "tool_use", ID: "toolu_01", Name: "search_inbox", Input: json.RawMessage(`{"query":"newsletters"}`)},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})

	tools := []Tool{{Name: "search_inbox", InputSchema: json.RawMessage(`{"type":"object"}`)}}
	transcript := []Message{{Role: "user", Content: []ContentBlock{NewTextBlock("triage my inbox")}}}

	resp, err := client.Converse(context.Background(), "You are an email assistant.", tools, transcript)
	require.NoError(t, err)

	assert.Equal(t, "tool_use", resp.StopReason)
	assert.Equal(t, "Searching the inbox.", resp.TextContent())

	uses := resp.ToolUses()
	require.Len(t, uses, 1)
	assert.Equal(t, "toolu_01", uses[0].ID)
	assert.Equal(t, "search_inbox", uses[0].Name)
}

func TestConverseRetriesOverloaded(t *testing.T) {
	attempts := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(529)
			w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error"}}`))
			return
		}
		resp := MessagesResponse{
			StopReason: "end_turn",
			Content:    []ContentBlock{{Type: "text", Text: "done"}},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})

	transcript := []Message{{Role: "user", Content: []ContentBlock{NewTextBlock("hello")}}}
	resp, err := client.Converse(context.Background(), "", nil, transcript)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, "done", resp.TextContent())
}

func TestConverseDoesNotRetryBadRequest(t *testing.T) {
	attempts := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error"}}`))
	})

	transcript := []Message{{Role: "user", Content: []ContentBlock{NewTextBlock("hello")}}}
	_, err := client.Converse(context.Background(), "", nil, transcript)
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestConverseWithoutAPIKey(t *testing.T) {
	client := NewClient(Config{})
	require.False(t, client.IsConfigured())

	_, err := client.Converse(context.Background(), "", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestTextContentConcatenates(t *testing.T) {
	resp := &MessagesResponse{Content: []ContentBlock{
		{Type: "text", Text: "part one "},
		{Type: "tool_use", ID: "toolu_01", Name: "x"},
		{Type: "text", Text: "part two"},
	}}
	assert.Equal(t, "part one part two", resp.TextContent())
}
