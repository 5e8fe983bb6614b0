package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSDKMessage(t *testing.T) {
	sdkMsg := &sdk.Message{
		ID:         "msg_test_123",
		Model:      "claude-haiku-4-5-20251001",
		StopReason: "end_turn",
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "Hello "},
			{Type: "tool_use"},
			{Type: "text", Text: "world"},
		},
		Usage: sdk.Usage{InputTokens: 100, OutputTokens: 50},
	}

	resp := fromSDKMessage(sdkMsg)
	require.NotNil(t, resp)
	assert.Equal(t, "msg_test_123", resp.ID)
	assert.Equal(t, "claude-haiku-4-5-20251001", resp.Model)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, "Hello world", resp.Text)
	assert.Equal(t, int64(100), resp.Usage.InputTokens)
	assert.Equal(t, int64(50), resp.Usage.OutputTokens)
}

func TestFromSDKMessage_Empty(t *testing.T) {
	resp := fromSDKMessage(&sdk.Message{})
	assert.Empty(t, resp.Text)
}

func TestToSDKMessages(t *testing.T) {
	msgs := toSDKMessages([]Message{
		{Role: "user", Content: "Question"},
		{Role: "assistant", Content: "Answer"},
		{Role: "other", Content: "defaults to user"},
	})
	require.Len(t, msgs, 3)
	assert.Equal(t, sdk.MessageParamRoleUser, msgs[0].Role)
	assert.Equal(t, sdk.MessageParamRoleAssistant, msgs[1].Role)
	assert.Equal(t, sdk.MessageParamRoleUser, msgs[2].Role)
	assert.Empty(t, toSDKMessages(nil))
}

func TestToSDKParams(t *testing.T) {
	temp := 0.3
	p := toSDKParams(MessageRequest{
		Model:       "claude-haiku-4-5-20251001",
		MaxTokens:   512,
		System:      "You are an SDR.",
		Messages:    []Message{{Role: "user", Content: "hi"}},
		Temperature: &temp,
	})
	assert.Equal(t, sdk.Model("claude-haiku-4-5-20251001"), p.Model)
	assert.Equal(t, int64(512), p.MaxTokens)
	require.Len(t, p.System, 1)
	assert.Equal(t, "You are an SDR.", p.System[0].Text)

	p = toSDKParams(MessageRequest{Model: "m", MaxTokens: 1})
	assert.Empty(t, p.System)
}

func sseEvent(name, data string) string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", name, data)
}

func newStreamServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStreamMessage(t *testing.T) {
	body := sseEvent("message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-haiku-4-5-20251001","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":12,"output_tokens":1}}}`) +
		sseEvent("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`) +
		sseEvent("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Subject: Hi"}}`) +
		sseEvent("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"\nBody: Hello"}}`) +
		sseEvent("content_block_stop", `{"type":"content_block_stop","index":0}`) +
		sseEvent("message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":7}}`) +
		sseEvent("message_stop", `{"type":"message_stop"}`)
	srv := newStreamServer(t, body)

	c := NewClient("test-key", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))

	var tokens []string
	resp, err := c.StreamMessage(context.Background(), MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 256,
		Messages:  []Message{{Role: "user", Content: "write"}},
	}, func(s string) { tokens = append(tokens, s) })
	require.NoError(t, err)

	assert.Equal(t, []string{"Subject: Hi", "\nBody: Hello"}, tokens)
	assert.Equal(t, "msg_1", resp.ID)
	assert.Equal(t, "Subject: Hi\nBody: Hello", resp.Text)
	assert.Equal(t, "end_turn", resp.StopReason)
}

func TestStreamMessage_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"bad key"}}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient("bad", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	called := false
	_, err := c.StreamMessage(context.Background(), MessageRequest{Model: "m", MaxTokens: 1, Messages: []Message{{Role: "user", Content: "x"}}}, func(string) { called = true })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: stream message")
	assert.False(t, called)
}

func TestNewClient_ReturnsNonNil(t *testing.T) {
	var c Client = NewClient("test-api-key")
	require.NotNil(t, c)
}

func TestTokenUsage_LogDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		TokenUsage{InputTokens: 1, OutputTokens: 2}.Log("m", "summary")
	})
}
