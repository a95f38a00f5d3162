package curation

import (
	"context"
	"fmt"
	"math"

	"github.com/yungbote/newsquiz-backend/internal/domain"
	"github.com/yungbote/newsquiz-backend/internal/platform/llm"
	"github.com/yungbote/newsquiz-backend/internal/platform/logger"
)

const (
	DefaultNoiseCoefficient = 0.2
	minScoreableMembers     = 4
)

// AdaptiveThreshold returns max(base, mean - coef*std) over sims, std being the population deviation.
func AdaptiveThreshold(sims []float64, base, coef float64) float64 {
	if len(sims) == 0 {
		return base
	}
	mean, std := meanStd(sims)
	return math.Max(base, mean-coef*std)
}

// NoiseFilter drops cluster members that sit far from the cluster's centroid.
type NoiseFilter struct {
	log         *logger.Logger
	embedder    llm.Embedder
	coefficient float64
}

// NewNoiseFilter builds a filter. A nil embedder scores members with their stored vectors.
func NewNoiseFilter(log *logger.Logger, embedder llm.Embedder, coefficient float64) *NoiseFilter {
	if log == nil {
		log = logger.Nop()
	}
	if coefficient <= 0 {
		coefficient = DefaultNoiseCoefficient
	}
	return &NoiseFilter{log: log.Component("noise_filter"), embedder: embedder, coefficient: coefficient}
}

func (f *NoiseFilter) Filter(ctx context.Context, members []domain.ArticleRecord, baseThreshold float64) ([]domain.ArticleRecord, error) {
	scoreable := make([]int, 0, len(members))
	texts := make([]string, 0, len(members))
	for i, m := range members {
		if f.embedder != nil {
			if t := m.Text(); t != "" {
				scoreable = append(scoreable, i)
				texts = append(texts, t)
			}
		} else if len(m.Vector) > 0 {
			scoreable = append(scoreable, i)
		}
	}
	if len(scoreable) < minScoreableMembers {
		return members, nil
	}

	vecs := make([][]float32, len(scoreable))
	if f.embedder != nil {
		embs, err := f.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("noise filter: embed %d members: %w", len(texts), err)
		}
		if len(embs) != len(texts) {
			return nil, fmt.Errorf("noise filter: embedder returned %d vectors for %d texts", len(embs), len(texts))
		}
		copy(vecs, embs)
	} else {
		for i, idx := range scoreable {
			vecs[i] = members[idx].Vector
		}
	}

	centroid, ok := meanVector(vecs)
	if !ok {
		return members, nil
	}
	sims := make([]float64, len(vecs))
	for i, v := range vecs {
		sims[i] = cosineSimilarity(v, centroid)
	}
	threshold := AdaptiveThreshold(sims, baseThreshold, f.coefficient)
	kept := selectAbove(members, scoreable, sims, threshold)
	if len(kept) == 0 {
		return members, nil
	}
	f.log.Debug("noise filter applied",
		"members", len(members),
		"kept", len(kept),
		"threshold", threshold,
	)
	return kept, nil
}

// selectAbove keeps scored members whose similarity reaches threshold, in member order.
func selectAbove(members []domain.ArticleRecord, scoreable []int, sims []float64, threshold float64) []domain.ArticleRecord {
	out := make([]domain.ArticleRecord, 0, len(scoreable))
	for i, idx := range scoreable {
		if sims[i] >= threshold {
			out = append(out, members[idx])
		}
	}
	return out
}
