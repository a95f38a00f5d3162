package observability

import (
	"context"
	"errors"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	got := parseHeaders(" x-api=1, bad ,y=2,=3")
	if len(got) != 2 || got["x-api"] != "1" || got["y"] != "2" {
		t.Fatalf("unexpected headers: %v", got)
	}
	if parseHeaders("") != nil {
		t.Fatalf("empty headers should be nil")
	}
}

func TestClampRatio(t *testing.T) {
	if clampRatio(0) != 0.1 || clampRatio(2) != 1 || clampRatio(0.5) != 0.5 {
		t.Fatalf("unexpected clamp results")
	}
}

func TestSpansWorkWithoutProvider(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test")
	if ctx == nil {
		t.Fatalf("nil context")
	}
	EndSpan(span, errors.New("boom"))
}
