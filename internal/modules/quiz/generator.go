package quiz

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/newsquiz-backend/internal/domain"
	"github.com/yungbote/newsquiz-backend/internal/platform/llm"
	"github.com/yungbote/newsquiz-backend/internal/platform/logger"
	"github.com/yungbote/newsquiz-backend/internal/platform/prompts"
)

//go:embed prompts.yaml
var promptsYAML []byte

var promptSet = prompts.MustLoad(promptsYAML)

// OXFallbackAnswer is used when an O/X item carries no usable answer.
const OXFallbackAnswer = "O"

var tierGuidance = map[domain.Tier]struct{ name, guidance string }{
	domain.TierBasic: {
		name:     "basic (N)",
		guidance: "Target beginners: direct fact checks answerable from a single sentence of the summary.",
	},
	domain.TierInference: {
		name: "inference (I)",
		guidance: "Target intermediate readers: ask about causes, key arguments and shifts in meaning. " +
			"Wrong options should be plausible near-misses that differ subtly from the correct one.",
	},
}

// GenerateRequest asks for Count items of one kind and tier.
type GenerateRequest struct {
	Summary     string
	Kind        domain.ContentType
	Tier        domain.Tier
	Count       int
	Exemplars   []domain.QuizItem
	Model       string
	Temperature *float64
}

// ItemGenerator turns a news summary into candidate quiz items through a completion gateway.
type ItemGenerator struct {
	log      *logger.Logger
	gateway  llm.Gateway
	language string
}

func NewItemGenerator(log *logger.Logger, gateway llm.Gateway, language string) *ItemGenerator {
	if log == nil {
		log = logger.Nop()
	}
	if strings.TrimSpace(language) == "" {
		language = "Korean"
	}
	return &ItemGenerator{log: log.Component("item_generator"), gateway: gateway, language: language}
}

// Generate makes one completion call. Gateway failures are returned as classified
// llm errors; unusable output is returned wrapped in domain.ErrGenerationParse.
func (g *ItemGenerator) Generate(ctx context.Context, req GenerateRequest) ([]domain.QuizItem, error) {
	if req.Count <= 0 {
		return nil, nil
	}
	if g.gateway == nil {
		return nil, fmt.Errorf("item generator: no completion gateway configured")
	}
	p, err := g.buildPrompt(req)
	if err != nil {
		return nil, err
	}
	raw, err := g.gateway.Complete(ctx, llm.Request{
		System:      p.System,
		Prompt:      p.User,
		Format:      llm.FormatJSON,
		Temperature: req.Temperature,
		Model:       req.Model,
	})
	if err != nil {
		return nil, err
	}
	items, err := ParseItems(raw, req.Kind, req.Tier)
	if err != nil {
		g.log.Warn("generation output unusable", "kind", req.Kind, "tier", req.Tier, "error", err)
		return nil, err
	}
	g.log.Debug("generated candidates", "kind", req.Kind, "tier", req.Tier, "requested", req.Count, "parsed", len(items))
	return items, nil
}

func (g *ItemGenerator) buildPrompt(req GenerateRequest) (prompts.Prompt, error) {
	name, err := promptName(req.Kind)
	if err != nil {
		return prompts.Prompt{}, err
	}
	tg, ok := tierGuidance[req.Tier]
	if !ok {
		return prompts.Prompt{}, fmt.Errorf("item generator: unknown tier %q", req.Tier)
	}
	exemplars := make([]string, 0, len(req.Exemplars))
	for _, ex := range req.Exemplars {
		if q := strings.TrimSpace(ex.Question); q != "" {
			exemplars = append(exemplars, q)
		}
	}
	return promptSet.Build(name, map[string]any{
		"Language":     g.language,
		"Count":        req.Count,
		"TierName":     tg.name,
		"TierGuidance": tg.guidance,
		"Exemplars":    exemplars,
		"Summary":      strings.TrimSpace(req.Summary),
	})
}

func promptName(kind domain.ContentType) (string, error) {
	switch kind {
	case domain.ContentMultipleChoice:
		return "quiz_multiple_choice", nil
	case domain.ContentOX:
		return "quiz_ox", nil
	case domain.ContentShortAnswer:
		return "quiz_short_answer", nil
	case domain.ContentSummaryReading:
		return "quiz_summary_reading", nil
	case domain.ContentSessionReflection:
		return "quiz_session_reflection", nil
	}
	return "", fmt.Errorf("item generator: unsupported content type %q", kind)
}

type rawAnswer struct {
	Text        string   `json:"text"`
	IsCorrect   flexBool `json:"isCorrect"`
	Explanation string   `json:"explanation"`
}

type rawItem struct {
	Question    string      `json:"question"`
	Answers     []rawAnswer `json:"answers"`
	Options     []string    `json:"options"`
	Answer      string      `json:"answer"`
	Explanation string      `json:"explanation"`
	Summary     string      `json:"summary"`
	Keywords    []string    `json:"keywords"`
}

// flexBool accepts true, "true", "yes" and 1.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.ToLower(strings.TrimSpace(string(data))), `"`)
	*b = flexBool(s == "true" || s == "1" || s == "yes")
	return nil
}

// ParseItems decodes model output into items of the given kind and tier. It accepts a
// bare array or an object wrapping the array under items, quizzes or questions.
// Entries without a question are dropped; summary reading entries may carry the
// passage under summary instead.
func ParseItems(raw string, kind domain.ContentType, tier domain.Tier) ([]domain.QuizItem, error) {
	var rawItems []rawItem
	cleaned := llm.CleanJSON(raw)
	if strings.HasPrefix(cleaned, "[") {
		if err := llm.DecodeJSON(cleaned, &rawItems); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrGenerationParse, err)
		}
	} else {
		var wrapper map[string]json.RawMessage
		if err := llm.DecodeJSON(cleaned, &wrapper); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrGenerationParse, err)
		}
		found := false
		for _, key := range []string{"items", "quizzes", "questions"} {
			if body, ok := wrapper[key]; ok {
				if err := json.Unmarshal(body, &rawItems); err != nil {
					return nil, fmt.Errorf("%w: %s: %v", domain.ErrGenerationParse, key, err)
				}
				found = true
				break
			}
		}
		if !found {
			_, hasQuestion := wrapper["question"]
			_, hasSummary := wrapper["summary"]
			if !hasQuestion && !(hasSummary && kind == domain.ContentSummaryReading) {
				return nil, fmt.Errorf("%w: no item list in object", domain.ErrGenerationParse)
			}
			var single rawItem
			if err := json.Unmarshal([]byte(cleaned), &single); err != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrGenerationParse, err)
			}
			rawItems = []rawItem{single}
		}
	}

	out := make([]domain.QuizItem, 0, len(rawItems))
	for _, ri := range rawItems {
		q := strings.TrimSpace(ri.Question)
		if q == "" && kind == domain.ContentSummaryReading {
			q = strings.TrimSpace(ri.Summary)
		}
		if q == "" {
			continue
		}
		item := domain.QuizItem{Kind: kind, Tier: tier, Question: q, Verdict: domain.VerdictPending}
		switch kind {
		case domain.ContentMultipleChoice:
			fillMultipleChoice(&item, ri)
		case domain.ContentOX:
			fillOX(&item, ri)
		case domain.ContentSummaryReading:
			fillSummaryReading(&item, ri)
		case domain.ContentSessionReflection:
			item.Explanation = strings.TrimSpace(ri.Explanation)
		default:
			fillShortAnswer(&item, ri)
		}
		out = append(out, item)
	}
	return out, nil
}

func fillMultipleChoice(item *domain.QuizItem, ri rawItem) {
	item.Explanation = strings.TrimSpace(ri.Explanation)
	if len(ri.Answers) > 0 {
		for i, a := range ri.Answers {
			label := optionLabel(i)
			item.Options = append(item.Options, domain.Option{Label: label, Text: strings.TrimSpace(a.Text)})
			if bool(a.IsCorrect) && item.Answer.Label == "" {
				item.Answer.Label = label
				if e := strings.TrimSpace(a.Explanation); e != "" {
					item.Explanation = e
				}
			}
		}
		return
	}
	for i, text := range ri.Options {
		item.Options = append(item.Options, domain.Option{Label: optionLabel(i), Text: strings.TrimSpace(text)})
	}
	ans := strings.TrimSpace(ri.Answer)
	for _, o := range item.Options {
		if strings.EqualFold(o.Label, ans) || (ans != "" && o.Text == ans) {
			item.Answer.Label = o.Label
			break
		}
	}
}

func fillOX(item *domain.QuizItem, ri rawItem) {
	ans := strings.ToUpper(strings.TrimSpace(ri.Answer))
	item.Explanation = strings.TrimSpace(ri.Explanation)
	if ans != "O" && ans != "X" {
		ans = ""
		for _, a := range ri.Answers {
			t := strings.ToUpper(strings.TrimSpace(a.Text))
			if bool(a.IsCorrect) && (t == "O" || t == "X") {
				ans = t
				if item.Explanation == "" {
					item.Explanation = strings.TrimSpace(a.Explanation)
				}
				break
			}
		}
	}
	if ans == "" {
		ans = OXFallbackAnswer
	}
	item.Answer.Text = ans
	item.Options = []domain.Option{{Label: "O", Text: "O"}, {Label: "X", Text: "X"}}
}

func fillShortAnswer(item *domain.QuizItem, ri rawItem) {
	item.Explanation = strings.TrimSpace(ri.Explanation)
	item.Answer.Text = strings.TrimSpace(ri.Answer)
	if item.Answer.Text != "" {
		return
	}
	for _, a := range ri.Answers {
		if strings.TrimSpace(a.Text) == "" {
			continue
		}
		if bool(a.IsCorrect) || len(ri.Answers) == 1 {
			item.Answer.Text = strings.TrimSpace(a.Text)
			if item.Explanation == "" {
				item.Explanation = strings.TrimSpace(a.Explanation)
			}
			return
		}
	}
}

func fillSummaryReading(item *domain.QuizItem, ri rawItem) {
	terms := make([]string, 0, len(ri.Keywords))
	for _, k := range ri.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			terms = append(terms, k)
		}
	}
	item.Answer.Text = strings.Join(terms, ", ")
	if item.Answer.Text == "" {
		item.Answer.Text = strings.TrimSpace(ri.Answer)
	}
}

func optionLabel(i int) string {
	if i < len(domain.OptionLabels) {
		return domain.OptionLabels[i]
	}
	return string(rune('A' + i))
}

// isParseFailure reports whether err came from unusable model output.
func isParseFailure(err error) bool {
	return errors.Is(err, domain.ErrGenerationParse) || errors.Is(err, llm.ErrUnparseable)
}
