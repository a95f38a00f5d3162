package redis

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/newsquiz-backend/internal/platform/llm"
	"github.com/yungbote/newsquiz-backend/internal/platform/logger"
)

// EmbeddingCache is an llm.Embedder that serves repeated texts from Redis.
// Redis failures degrade to the wrapped embedder.
type EmbeddingCache struct {
	log    *logger.Logger
	rdb    goredis.Cmdable
	inner  llm.Embedder
	model  string
	ttl    time.Duration
	prefix string
}

func NewEmbeddingCache(log *logger.Logger, rdb goredis.Cmdable, inner llm.Embedder, model string, cfg Config) *EmbeddingCache {
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = "emb"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &EmbeddingCache{
		log:    log.With("service", "RedisEmbeddingCache"),
		rdb:    rdb,
		inner:  inner,
		model:  model,
		ttl:    ttl,
		prefix: prefix,
	}
}

func (c *EmbeddingCache) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	keys := make([]string, len(inputs))
	for i, s := range inputs {
		keys[i] = cacheKey(c.prefix, c.model, s)
	}

	out := make([][]float32, len(inputs))
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		c.log.Warn("Embedding cache read failed; bypassing", "error", err)
		vals = nil
	}
	for i := range vals {
		if raw, ok := vals[i].(string); ok {
			if vec, ok := decodeVector([]byte(raw)); ok {
				out[i] = vec
			}
		}
	}

	// Unique misses, first index per text.
	missIdx := map[string][]int{}
	var missTexts []string
	for i, vec := range out {
		if vec != nil {
			continue
		}
		if _, seen := missIdx[keys[i]]; !seen {
			missTexts = append(missTexts, inputs[i])
		}
		missIdx[keys[i]] = append(missIdx[keys[i]], i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	fresh, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d inputs", len(fresh), len(missTexts))
	}

	pipe := c.rdb.Pipeline()
	for j, text := range missTexts {
		key := cacheKey(c.prefix, c.model, text)
		for _, i := range missIdx[key] {
			out[i] = fresh[j]
		}
		pipe.Set(ctx, key, encodeVector(fresh[j]), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn("Embedding cache write failed", "error", err, "count", len(missTexts))
	}
	c.log.Debug("Embedding cache", "hits", len(inputs)-countIdx(missIdx), "misses", len(missTexts))
	return out, nil
}

func countIdx(m map[string][]int) int {
	n := 0
	for _, v := range m {
		n += len(v)
	}
	return n
}

func cacheKey(prefix, model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + strings.TrimSpace(text)))
	return prefix + ":" + model + ":" + hex.EncodeToString(sum[:])
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(raw []byte) ([]float32, bool) {
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil, false
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, true
}
