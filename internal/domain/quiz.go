package domain

import "strings"

type Tier string

const (
	TierBasic     Tier = "N"
	TierInference Tier = "I"
)

func (t Tier) Valid() bool { return t == TierBasic || t == TierInference }

type ContentType string

const (
	ContentMultipleChoice ContentType = "MULTIPLE_CHOICE"
	ContentOX             ContentType = "OX_QUIZ"
	ContentShortAnswer    ContentType = "SHORT_ANSWER"

	// Ungraded session content. A summary reading item carries the reading
	// passage in Question and its key terms in Answer.Text; a reflection item
	// is an open question with no answer.
	ContentSummaryReading    ContentType = "SUMMARY_READING"
	ContentSessionReflection ContentType = "SESSION_REFLECTION"
)

func (c ContentType) Valid() bool {
	switch c {
	case ContentMultipleChoice, ContentOX, ContentShortAnswer, ContentSummaryReading, ContentSessionReflection:
		return true
	}
	return false
}

// Graded reports whether items of this type have an answer key that can be
// checked against the source.
func (c ContentType) Graded() bool {
	switch c {
	case ContentMultipleChoice, ContentOX, ContentShortAnswer:
		return true
	}
	return false
}

type Verdict string

const (
	VerdictPending               Verdict = "pending"
	VerdictAccepted              Verdict = "accepted"
	VerdictInsufficientGrounding Verdict = "insufficient_grounding"
	VerdictMissingData           Verdict = "missing_data"
	VerdictUnvalidated           Verdict = "unvalidated"
)

// OptionLabels are the fixed multiple-choice slots.
var OptionLabels = []string{"A", "B", "C", "D"}

type Option struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// AnswerRef points at the correct answer. Multiple choice uses Label,
// short answer and OX use Text.
type AnswerRef struct {
	Label string `json:"label,omitempty"`
	Text  string `json:"text,omitempty"`
}

type SourceMetrics struct {
	QuestionSimilarity float64 `json:"questionSimilarity"`
	AnswerSimilarity   float64 `json:"answerSimilarity"`
	CompositeScore     float64 `json:"compositeScore"`
}

type QuizItem struct {
	Kind        ContentType    `json:"contentType"`
	Tier        Tier           `json:"level"`
	Question    string         `json:"question"`
	Options     []Option       `json:"options,omitempty"`
	Answer      AnswerRef      `json:"answer"`
	Explanation string         `json:"explanation,omitempty"`
	Metrics     *SourceMetrics `json:"sourceMetrics,omitempty"`
	Verdict     Verdict        `json:"verdict,omitempty"`
}

// CorrectOptionIndex resolves the multiple-choice answer label to an option index.
func (q QuizItem) CorrectOptionIndex() (int, bool) {
	label := strings.TrimSpace(q.Answer.Label)
	if label == "" {
		return -1, false
	}
	for i, o := range q.Options {
		if strings.EqualFold(strings.TrimSpace(o.Label), label) {
			return i, true
		}
	}
	return -1, false
}

// CorrectText returns the text that stands for the correct answer.
// False means the answer cannot be resolved (missing option, empty text).
func (q QuizItem) CorrectText() (string, bool) {
	var s string
	switch q.Kind {
	case ContentMultipleChoice:
		idx, ok := q.CorrectOptionIndex()
		if !ok {
			return "", false
		}
		s = q.Options[idx].Text
	case ContentOX:
		s = q.Explanation
	default:
		s = q.Answer.Text
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// GenerationBatch is the outcome of one tier of one content type.
type GenerationBatch struct {
	Kind         ContentType
	Tier         Tier
	TargetCount  int
	Accepted     []QuizItem
	AttemptsUsed int
	Rejected     int
	Backfilled   int
}

func (b *GenerationBatch) Complete() bool {
	return b != nil && len(b.Accepted) >= b.TargetCount
}
