package course

import (
	"context"
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/yungbote/newsquiz-backend/internal/domain"
	"github.com/yungbote/newsquiz-backend/internal/platform/llm"
	"github.com/yungbote/newsquiz-backend/internal/platform/logger"
	"github.com/yungbote/newsquiz-backend/internal/platform/prompts"
)

//go:embed prompts.yaml
var promptsYAML []byte

var promptSet = prompts.MustLoad(promptsYAML)

const (
	FallbackDescription = "Course metadata could not be generated; default description."
	maxPromptHeadlines  = 12
	maxHeadlineRunes    = 60
)

// DefaultSubTopics lists subtopic candidates offered to the model per topic.
var DefaultSubTopics = map[string]string{
	"politics": "presidential office, national assembly, parties, north korea, defense, diplomacy, law",
	"economy":  "finance, securities, industry, small business, real estate, prices, trade",
	"society":  "incidents, education, labor, environment, healthcare, welfare, law",
	"world":    "united states, china, japan, europe, middle east, asia, international",
}

var headlineNoise = regexp.MustCompile(`["'\[\]():;]`)

// MetadataWriter names and describes a course from its headlines.
type MetadataWriter struct {
	log         *logger.Logger
	gateway     llm.Gateway
	model       string
	language    string
	subTopics   map[string]string
	temperature *float64
}

func NewMetadataWriter(log *logger.Logger, gateway llm.Gateway, model, language string, subTopics map[string]string) *MetadataWriter {
	if log == nil {
		log = logger.Nop()
	}
	if strings.TrimSpace(language) == "" {
		language = "Korean"
	}
	if subTopics == nil {
		subTopics = DefaultSubTopics
	}
	return &MetadataWriter{
		log:         log.Component("course_metadata"),
		gateway:     gateway,
		model:       model,
		language:    language,
		subTopics:   subTopics,
		temperature: llm.Float(0.3),
	}
}

// Describe never fails: gateway or parse errors yield FallbackMetadata.
func (w *MetadataWriter) Describe(ctx context.Context, topic string, cand domain.CourseCandidate) domain.CourseMetadata {
	fallback := FallbackMetadata(topic, cand.TopicLabel)
	if w.gateway == nil {
		return fallback
	}
	p, err := promptSet.Build("course_metadata", map[string]any{
		"Language":  w.language,
		"Topic":     topic,
		"SubTopics": w.subTopics[strings.ToLower(strings.TrimSpace(topic))],
		"Headlines": PromptHeadlines(cand.Members),
	})
	if err != nil {
		w.log.Error("build metadata prompt", "error", err)
		return fallback
	}
	raw, err := w.gateway.Complete(ctx, llm.Request{
		System:      p.System,
		Prompt:      p.User,
		Format:      llm.FormatJSON,
		Temperature: w.temperature,
		Model:       w.model,
	})
	if err != nil {
		w.log.Warn("course metadata call failed, using fallback", "topic", topic, "label", cand.TopicLabel, "error", err)
		return fallback
	}
	var obj map[string]any
	if err := llm.DecodeJSON(raw, &obj); err != nil {
		w.log.Warn("course metadata unparseable, using fallback", "topic", topic, "label", cand.TopicLabel, "error", err)
		return fallback
	}
	meta := domain.CourseMetadata{
		CourseName:        stringField(obj, "courseName"),
		CourseDescription: stringField(obj, "courseDescription"),
		SubTopic:          stringField(obj, "subTopic"),
		SubTags:           ParseTags(obj),
	}
	if meta.CourseName == "" {
		meta.CourseName = fallback.CourseName
	}
	return meta
}

// FallbackMetadata is used when the model cannot name a course.
func FallbackMetadata(topic string, label int) domain.CourseMetadata {
	return domain.CourseMetadata{
		CourseName:        fmt.Sprintf("%s_Cluster_%d", topic, label),
		CourseDescription: FallbackDescription,
		SubTags:           []string{},
		Fallback:          true,
	}
}

// PromptHeadlines joins up to 12 cleaned headlines of at most 60 characters.
func PromptHeadlines(members []domain.ArticleRecord) string {
	parts := make([]string, 0, maxPromptHeadlines)
	for _, m := range members {
		if len(parts) == maxPromptHeadlines {
			break
		}
		h := headlineNoise.ReplaceAllString(m.Headline, "")
		if r := []rune(h); len(r) > maxHeadlineRunes {
			h = string(r[:maxHeadlineRunes])
		}
		if h = strings.TrimSpace(h); h != "" {
			parts = append(parts, h)
		}
	}
	return strings.Join(parts, " / ")
}

// ParseTags collects every field whose key mentions "tag", splits on commas and
// whitespace and dedupes.
func ParseTags(obj map[string]any) []string {
	var raw []string
	for k, v := range obj {
		if !strings.Contains(strings.ToLower(k), "tag") {
			continue
		}
		switch t := v.(type) {
		case string:
			raw = append(raw, t)
		case []any:
			for _, x := range t {
				if s, ok := x.(string); ok {
					raw = append(raw, s)
				}
			}
		}
	}
	sort.Strings(raw)
	out := []string{}
	seen := map[string]bool{}
	for _, s := range raw {
		for _, tok := range strings.Fields(strings.ReplaceAll(s, ",", " ")) {
			if !seen[tok] {
				seen[tok] = true
				out = append(out, tok)
			}
		}
	}
	return out
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return strings.TrimSpace(s)
}
