package course

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/newsquiz-backend/internal/domain"
	"github.com/yungbote/newsquiz-backend/internal/modules/curation"
	"github.com/yungbote/newsquiz-backend/internal/platform/llm"
)

// Coherence is the mean pairwise cosine similarity of vecs; 0 for fewer than two.
func Coherence(vecs [][]float32) float64 {
	if len(vecs) < 2 {
		return 0
	}
	var sum float64
	pairs := 0
	for i := 0; i < len(vecs); i++ {
		for j := i + 1; j < len(vecs); j++ {
			sum += curation.CosineSimilarity(vecs[i], vecs[j])
			pairs++
		}
	}
	return sum / float64(pairs)
}

// HeadlineCoherence embeds member headlines and returns their Coherence.
func HeadlineCoherence(ctx context.Context, embedder llm.Embedder, members []domain.ArticleRecord) (float64, error) {
	headlines := make([]string, 0, len(members))
	for _, m := range members {
		if h := strings.TrimSpace(m.Headline); h != "" {
			headlines = append(headlines, h)
		}
	}
	if len(headlines) < 2 || embedder == nil {
		return 0, nil
	}
	vecs, err := embedder.Embed(ctx, headlines)
	if err != nil {
		return 0, fmt.Errorf("headline coherence: %w", err)
	}
	return Coherence(vecs), nil
}
