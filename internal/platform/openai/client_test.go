package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/yungbote/newsquiz-backend/internal/platform/llm"
	"github.com/yungbote/newsquiz-backend/internal/platform/logger"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newTestClient(t *testing.T, maxRetries int, rt roundTripFunc) *Client {
	t.Helper()
	c, err := New(Config{
		APIKey:     "test-key",
		BaseURL:    "http://openai.test",
		Model:      "gpt-test",
		EmbedModel: "embed-test",
		MaxRetries: maxRetries,
	}, logger.Nop(), WithHTTPClient(&http.Client{Transport: rt}), WithRetryBase(time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func jsonResponse(t *testing.T, status int, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

func TestCompleteRequestShape(t *testing.T) {
	var captured chatRequest
	c := newTestClient(t, 0, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("path: want=%q got=%q", "/v1/chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("auth header: got=%q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return jsonResponse(t, 200, map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": " {\"ok\":true} "}}},
		}), nil
	})

	out, err := c.Complete(context.Background(), llm.Request{
		System:      "sys",
		Prompt:      "hello",
		Format:      llm.FormatJSON,
		Temperature: llm.Float(0.3),
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"ok":true}` {
		t.Fatalf("content: got=%q", out)
	}
	if captured.Model != "gpt-test" {
		t.Fatalf("model: want=gpt-test got=%s", captured.Model)
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" {
		t.Fatalf("messages: got=%+v", captured.Messages)
	}
	if captured.ResponseFormat == nil || captured.ResponseFormat.Type != "json_object" {
		t.Fatalf("response format: got=%+v", captured.ResponseFormat)
	}
	if captured.Temperature == nil || *captured.Temperature != 0.3 {
		t.Fatalf("temperature: got=%v", captured.Temperature)
	}
}

func TestCompleteRetriesThenClassifiesRateLimit(t *testing.T) {
	calls := 0
	c := newTestClient(t, 2, func(r *http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(t, 429, map[string]any{"error": "slow down"}), nil
	})
	_, err := c.Complete(context.Background(), llm.Request{Prompt: "x"})
	var rl *llm.RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("want RateLimitError got=%v", err)
	}
	if calls != 3 {
		t.Fatalf("calls: want=3 got=%d", calls)
	}
}

func TestCompleteDropsRejectedTemperature(t *testing.T) {
	calls := 0
	c := newTestClient(t, 0, func(r *http.Request) (*http.Response, error) {
		calls++
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Temperature != nil {
			return jsonResponse(t, 400, map[string]any{"error": "Unsupported parameter: 'temperature'"}), nil
		}
		return jsonResponse(t, 200, map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": "ok"}}},
		}), nil
	})
	if _, err := c.Complete(context.Background(), llm.Request{Prompt: "x", Temperature: llm.Float(0.7)}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls: want=2 got=%d", calls)
	}
	if _, err := c.Complete(context.Background(), llm.Request{Prompt: "y", Temperature: llm.Float(0.7)}); err != nil {
		t.Fatalf("Complete again: %v", err)
	}
	if calls != 3 {
		t.Fatalf("remembered model should skip temperature: calls=%d", calls)
	}
}

func TestEmbedMapsByIndex(t *testing.T) {
	c := newTestClient(t, 0, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(t, 200, map[string]any{
			"data": []any{
				map[string]any{"index": 1, "embedding": []float64{0, 1}},
				map[string]any{"index": 0, "embedding": []float64{1, 0}},
			},
		}), nil
	})
	vecs, err := c.Embed(context.Background(), []string{"a", ""})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Fatalf("unexpected vectors: %v", vecs)
	}
}

func TestEmbedMissingIndicesFailsAfterRetry(t *testing.T) {
	calls := 0
	c := newTestClient(t, 0, func(r *http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(t, 200, map[string]any{
			"data": []any{map[string]any{"index": 0, "embedding": []float64{1}}},
		}), nil
	})
	_, err := c.Embed(context.Background(), []string{"a", "b"})
	if !llm.IsTransient(err) {
		t.Fatalf("want transport error got=%v", err)
	}
	if calls != 2 {
		t.Fatalf("calls: want=2 got=%d", calls)
	}
}
