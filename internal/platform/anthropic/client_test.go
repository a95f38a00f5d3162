package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/yungbote/newsquiz-backend/internal/platform/llm"
	"github.com/yungbote/newsquiz-backend/internal/platform/logger"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	c, err := New(Config{APIKey: "test-key", BaseURL: "http://anthropic.test", Model: "claude-test"},
		logger.Nop(), option.WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func jsonResponse(status int, body any) *http.Response {
	raw, _ := json.Marshal(body)
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

func TestCompleteJoinsTextBlocksAndSendsSystem(t *testing.T) {
	var captured map[string]any
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/v1/messages" {
			t.Fatalf("path: want=/v1/messages got=%s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return jsonResponse(200, map[string]any{
			"id":            "msg_1",
			"type":          "message",
			"role":          "assistant",
			"model":         "claude-test",
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"content": []any{
				map[string]any{"type": "text", "text": "{\"a\":"},
				map[string]any{"type": "text", "text": "1}"},
			},
			"usage": map[string]any{"input_tokens": 1, "output_tokens": 1},
		}), nil
	})

	out, err := c.Complete(context.Background(), llm.Request{System: "sys", Prompt: "p", Format: llm.FormatJSON})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"a":1}` {
		t.Fatalf("content: got=%q", out)
	}
	if captured["model"] != "claude-test" {
		t.Fatalf("model: got=%v", captured["model"])
	}
	sys, ok := captured["system"].([]any)
	if !ok || len(sys) != 1 {
		t.Fatalf("system: got=%v", captured["system"])
	}
}

func TestCompleteClassifiesRateLimit(t *testing.T) {
	c, err := New(Config{APIKey: "k", BaseURL: "http://anthropic.test", Model: "m", MaxRetries: 0},
		logger.Nop(), option.WithHTTPClient(&http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return jsonResponse(429, map[string]any{"type": "error", "error": map[string]any{"type": "rate_limit_error", "message": "slow"}}), nil
		})}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Complete(context.Background(), llm.Request{Prompt: "p"})
	var rl *llm.RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("want RateLimitError got=%v", err)
	}
}
