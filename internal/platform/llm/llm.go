package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/newsquiz-backend/internal/platform/httpx"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Request is one completion call. Empty Model means the gateway default.
type Request struct {
	System      string
	Prompt      string
	Format      Format
	Temperature *float64
	Model       string
	MaxTokens   int
}

// Gateway produces completions from a hosted model.
type Gateway interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Embedder maps texts to vectors, one per input in input order.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

var ErrUnparseable = errors.New("model output is not valid json")

// TransportError is a failed or non-2xx call to a provider.
type TransportError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s transport error (http %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s transport error: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) HTTPStatusCode() int { return e.StatusCode }

// RateLimitError is a provider throttling response.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited: %v", e.Provider, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

func (e *RateLimitError) HTTPStatusCode() int { return http.StatusTooManyRequests }

// Classify wraps a provider error into TransportError or RateLimitError.
// Caller cancellation is returned unchanged.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var te *TransportError
	var re *RateLimitError
	if errors.As(err, &te) || errors.As(err, &re) {
		return err
	}
	var sc httpx.HTTPStatusCoder
	if errors.As(err, &sc) {
		if sc.HTTPStatusCode() == http.StatusTooManyRequests {
			return &RateLimitError{Provider: provider, Err: err}
		}
		return &TransportError{Provider: provider, StatusCode: sc.HTTPStatusCode(), Err: err}
	}
	return &TransportError{Provider: provider, Err: err}
}

// IsTransient reports whether err is a transport or rate-limit failure.
func IsTransient(err error) bool {
	var te *TransportError
	var re *RateLimitError
	return errors.As(err, &te) || errors.As(err, &re)
}

// CleanJSON strips markdown fences and surrounding prose from model output.
func CleanJSON(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```JSON")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := strings.IndexAny(content, "{[")
	if start < 0 {
		return content
	}
	closer := "}"
	if content[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(content, closer)
	if end > start {
		content = content[start : end+1]
	}
	return content
}

// DecodeJSON cleans raw model output and unmarshals it into out.
func DecodeJSON(raw string, out any) error {
	cleaned := CleanJSON(raw)
	if cleaned == "" {
		return ErrUnparseable
	}
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	return nil
}

func Float(v float64) *float64 { return &v }
