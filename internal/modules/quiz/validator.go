package quiz

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/newsquiz-backend/internal/domain"
	"github.com/yungbote/newsquiz-backend/internal/modules/curation"
	"github.com/yungbote/newsquiz-backend/internal/platform/llm"
	"github.com/yungbote/newsquiz-backend/internal/platform/logger"
)

const (
	DefaultQuestionThreshold = 0.1
	DefaultAnswerThreshold   = 0.3
	DefaultQuestionWeight    = 0.3
	DefaultAnswerWeight      = 0.7
)

type ValidatorConfig struct {
	QuestionWeight float64 `yaml:"question_weight"`
	AnswerWeight   float64 `yaml:"answer_weight"`
}

// SemanticValidator checks that an item's question and answer are grounded in the source summary.
type SemanticValidator struct {
	log      *logger.Logger
	embedder llm.Embedder
	qWeight  float64
	aWeight  float64
}

func NewSemanticValidator(log *logger.Logger, embedder llm.Embedder, cfg ValidatorConfig) *SemanticValidator {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.QuestionWeight <= 0 && cfg.AnswerWeight <= 0 {
		cfg.QuestionWeight, cfg.AnswerWeight = DefaultQuestionWeight, DefaultAnswerWeight
	}
	return &SemanticValidator{
		log:      log.Component("semantic_validator"),
		embedder: embedder,
		qWeight:  cfg.QuestionWeight,
		aWeight:  cfg.AnswerWeight,
	}
}

// Validate scores one item against the summary. Items without a question or a
// resolvable answer text get VerdictMissingData and nil metrics, without scoring.
func (v *SemanticValidator) Validate(ctx context.Context, item domain.QuizItem, summary string, qThr, aThr float64) (domain.Verdict, *domain.SourceMetrics, error) {
	answer, ok := groundingTexts(item)
	if !ok {
		return domain.VerdictMissingData, nil, nil
	}
	vecs, err := v.embed(ctx, []string{strings.TrimSpace(summary), strings.TrimSpace(item.Question), answer})
	if err != nil {
		return domain.VerdictPending, nil, err
	}
	m := v.score(vecs[1], vecs[2], vecs[0])
	return verdictFor(m, qThr, aThr), &m, nil
}

// ValidateAll annotates every item with metrics and a verdict and partitions them.
// The summary and all item texts are embedded in a single call.
func (v *SemanticValidator) ValidateAll(ctx context.Context, items []domain.QuizItem, summary string, qThr, aThr float64) (accepted, rejected []domain.QuizItem, err error) {
	if len(items) == 0 {
		return nil, nil, nil
	}
	texts := []string{strings.TrimSpace(summary)}
	slots := make([]int, len(items))
	for i, it := range items {
		answer, ok := groundingTexts(it)
		if !ok {
			slots[i] = -1
			continue
		}
		slots[i] = len(texts)
		texts = append(texts, strings.TrimSpace(it.Question), answer)
	}
	var vecs [][]float32
	if len(texts) > 1 {
		vecs, err = v.embed(ctx, texts)
		if err != nil {
			return nil, nil, err
		}
	}
	for i, it := range items {
		if slots[i] < 0 {
			it.Verdict = domain.VerdictMissingData
			it.Metrics = nil
			rejected = append(rejected, it)
			continue
		}
		m := v.score(vecs[slots[i]], vecs[slots[i]+1], vecs[0])
		it.Metrics = &m
		it.Verdict = verdictFor(m, qThr, aThr)
		if it.Verdict == domain.VerdictAccepted {
			accepted = append(accepted, it)
		} else {
			rejected = append(rejected, it)
		}
	}
	v.log.Debug("validated candidates", "accepted", len(accepted), "rejected", len(rejected))
	return accepted, rejected, nil
}

// verdictFor accepts iff both similarities reach their thresholds.
func verdictFor(m domain.SourceMetrics, qThr, aThr float64) domain.Verdict {
	if m.QuestionSimilarity >= qThr && m.AnswerSimilarity >= aThr {
		return domain.VerdictAccepted
	}
	return domain.VerdictInsufficientGrounding
}

func (v *SemanticValidator) score(question, answer, summary []float32) domain.SourceMetrics {
	q := curation.CosineSimilarity(question, summary)
	a := curation.CosineSimilarity(answer, summary)
	return domain.SourceMetrics{
		QuestionSimilarity: q,
		AnswerSimilarity:   a,
		CompositeScore:     v.qWeight*q + v.aWeight*a,
	}
}

func (v *SemanticValidator) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if v.embedder == nil {
		return nil, fmt.Errorf("semantic validator: no embedder configured")
	}
	vecs, err := v.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("semantic validator: embed: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("semantic validator: embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}

func groundingTexts(item domain.QuizItem) (string, bool) {
	if strings.TrimSpace(item.Question) == "" {
		return "", false
	}
	return item.CorrectText()
}
