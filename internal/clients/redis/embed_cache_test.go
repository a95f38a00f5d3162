package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/newsquiz-backend/internal/platform/logger"
)

type countingEmbedder struct {
	calls  int
	inputs []string
}

func (e *countingEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	e.calls++
	e.inputs = append(e.inputs, inputs...)
	out := make([][]float32, len(inputs))
	for i, s := range inputs {
		out[i] = []float32{float32(len(s))}
	}
	return out, nil
}

func TestVectorCodecRoundTrip(t *testing.T) {
	in := []float32{0.25, -1.5, 3}
	out, ok := decodeVector(encodeVector(in))
	if !ok {
		t.Fatalf("decode failed")
	}
	if len(out) != len(in) {
		t.Fatalf("len: want=%d got=%d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("value %d: want=%v got=%v", i, in[i], out[i])
		}
	}
	if _, ok := decodeVector([]byte{1, 2, 3}); ok {
		t.Fatalf("truncated payload should not decode")
	}
}

func TestCacheKeyDependsOnModelAndTrimmedText(t *testing.T) {
	a := cacheKey("emb", "m1", "hello ")
	b := cacheKey("emb", "m1", "hello")
	c := cacheKey("emb", "m2", "hello")
	if a != b {
		t.Fatalf("surrounding whitespace should not change key")
	}
	if a == c {
		t.Fatalf("model must be part of the key")
	}
}

func TestEmbedDegradesWhenRedisIsDown(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()
	inner := &countingEmbedder{}
	cache := NewEmbeddingCache(logger.Nop(), rdb, inner, "m1", Config{TTL: time.Minute, Prefix: "t:"})

	out, err := cache.Embed(context.Background(), []string{"ab", "abc", "ab"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("upstream calls: want=1 got=%d", inner.calls)
	}
	if len(inner.inputs) != 2 {
		t.Fatalf("duplicate texts should be embedded once: got=%v", inner.inputs)
	}
	if len(out) != 3 || out[0][0] != 2 || out[1][0] != 3 || out[2][0] != 2 {
		t.Fatalf("unexpected vectors: %v", out)
	}
}
