package quiz

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/yungbote/newsquiz-backend/internal/domain"
)

func mcItem(question, correct string) domain.QuizItem {
	return domain.QuizItem{
		Kind:     domain.ContentMultipleChoice,
		Question: question,
		Options: []domain.Option{
			{Label: "A", Text: correct}, {Label: "B", Text: "w1"}, {Label: "C", Text: "w2"}, {Label: "D", Text: "w3"},
		},
		Answer: domain.AnswerRef{Label: "A"},
	}
}

func TestValidateScoresAndThresholds(t *testing.T) {
	emb := &vectorEmbedder{byText: map[string][]float32{"S": onTopic, "q": onTopic, "good": onTopic}, fallback: offTopic}
	v := NewSemanticValidator(nil, emb, ValidatorConfig{})

	verdict, m, err := v.Validate(context.Background(), mcItem("q", "good"), "S", 0.1, 0.3)
	if err != nil || verdict != domain.VerdictAccepted {
		t.Fatalf("grounded item: verdict=%s err=%v", verdict, err)
	}
	if math.Abs(m.CompositeScore-1) > 1e-9 {
		t.Fatalf("composite: want=1 got=%v", m.CompositeScore)
	}

	verdict, m, err = v.Validate(context.Background(), mcItem("q", "nonsense"), "S", 0.1, 0.3)
	if err != nil || verdict != domain.VerdictInsufficientGrounding {
		t.Fatalf("ungrounded answer: verdict=%s err=%v", verdict, err)
	}
	if math.Abs(m.CompositeScore-0.3) > 1e-9 || m.AnswerSimilarity != 0 {
		t.Fatalf("composite: want=0.3 got=%+v", m)
	}
}

func TestValidateMissingAnswerIsNotScored(t *testing.T) {
	emb := &vectorEmbedder{byText: map[string][]float32{"S": onTopic, "q": onTopic, "good": onTopic}, fallback: offTopic}
	v := NewSemanticValidator(nil, emb, ValidatorConfig{})
	dangling := mcItem("q", "good")
	dangling.Answer.Label = "Z"

	verdict, m, err := v.Validate(context.Background(), dangling, "S", 0.1, 0.3)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if verdict != domain.VerdictMissingData || m != nil {
		t.Fatalf("dangling answer: want=missing_data/nil got=%s/%v", verdict, m)
	}
	if emb.calls != 0 {
		t.Fatalf("embed calls: want=0 got=%d", emb.calls)
	}

	// An off-topic item is scored and told apart from missing data.
	verdict, m, err = v.Validate(context.Background(), mcItem("off", "off"), "S", 0.1, 0.3)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if verdict != domain.VerdictInsufficientGrounding || m == nil {
		t.Fatalf("off-topic item: want=insufficient_grounding with metrics got=%s/%v", verdict, m)
	}
}

func TestValidateAllMissingData(t *testing.T) {
	emb := &vectorEmbedder{byText: map[string][]float32{"S": onTopic, "q": onTopic, "good": onTopic}, fallback: offTopic}
	v := NewSemanticValidator(nil, emb, ValidatorConfig{})
	broken := mcItem("q", "good")
	broken.Answer.Label = ""
	noQuestion := mcItem("", "good")

	acc, rej, err := v.ValidateAll(context.Background(), []domain.QuizItem{mcItem("q", "good"), broken, noQuestion}, "S", 0.1, 0.3)
	if err != nil {
		t.Fatalf("ValidateAll: %v", err)
	}
	if len(acc) != 1 || len(rej) != 2 {
		t.Fatalf("partition: accepted=%d rejected=%d", len(acc), len(rej))
	}
	for _, r := range rej {
		if r.Verdict != domain.VerdictMissingData || r.Metrics != nil {
			t.Fatalf("missing data item: verdict=%s metrics=%v", r.Verdict, r.Metrics)
		}
	}
	if emb.calls != 1 {
		t.Fatalf("embed calls: want=1 got=%d", emb.calls)
	}
}

func TestValidatorCustomWeights(t *testing.T) {
	emb := &vectorEmbedder{byText: map[string][]float32{"S": onTopic, "q": onTopic}, fallback: offTopic}
	v := NewSemanticValidator(nil, emb, ValidatorConfig{QuestionWeight: 0.5, AnswerWeight: 0.5})
	_, m, err := v.Validate(context.Background(), mcItem("q", "off"), "S", 0, 0)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if math.Abs(m.CompositeScore-0.5) > 1e-9 {
		t.Fatalf("composite: want=0.5 got=%v", m.CompositeScore)
	}
}

func TestValidateAllEmbedError(t *testing.T) {
	v := NewSemanticValidator(nil, &vectorEmbedder{err: errors.New("down")}, ValidatorConfig{})
	if _, _, err := v.ValidateAll(context.Background(), []domain.QuizItem{mcItem("q", "a")}, "S", 0.1, 0.3); err == nil {
		t.Fatalf("expected embed error")
	}
}
