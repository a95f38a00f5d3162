package course

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/newsquiz-backend/internal/domain"
)

// StepOrders fixes where each content type sits inside a level.
var StepOrders = map[domain.Tier]map[domain.ContentType]int{
	domain.TierBasic: {
		domain.ContentSummaryReading: 1,
		domain.ContentOX:             4,
		domain.ContentMultipleChoice: 5,
	},
	domain.TierInference: {
		domain.ContentSummaryReading:    1,
		domain.ContentMultipleChoice:    2,
		domain.ContentShortAnswer:       3,
		domain.ContentSessionReflection: 4,
	},
}

var levelOrder = []domain.Tier{domain.TierBasic, domain.TierInference}

var courseNamespace = uuid.MustParse("6f0b7c1e-4a53-5b8e-9a1d-2f4c3e5d6a7b")

// CourseID derives a stable id from the topic and member ids, so re-running the
// same cluster replaces the stored package.
func CourseID(topic string, members []domain.ArticleRecord) string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return uuid.NewSHA1(courseNamespace, []byte(topic+"\x00"+strings.Join(ids, "\x00"))).String()
}

// SessionContent is one article with the batches generated for it.
type SessionContent struct {
	Article domain.ArticleRecord
	Batches []*domain.GenerationBatch
}

type AssembleInput struct {
	CourseID  string
	Topic     string
	Metadata  domain.CourseMetadata
	Coherence float64
	Sessions  []SessionContent
}

// Assemble builds the course document. Sessions are numbered from 1 in input order.
// The package is publishable only when every session has batches and all are complete.
func Assemble(in AssembleInput) domain.CoursePackage {
	pkg := domain.CoursePackage{
		CourseID:          in.CourseID,
		Topic:             in.Topic,
		SubTopic:          in.Metadata.SubTopic,
		SubTags:           append([]string{}, in.Metadata.SubTags...),
		CourseName:        in.Metadata.CourseName,
		CourseDescription: in.Metadata.CourseDescription,
		Coherence:         in.Coherence,
		Sessions:          make([]domain.Session, 0, len(in.Sessions)),
		Publishable:       len(in.Sessions) > 0,
		Educational:       true,
	}
	for i, sc := range in.Sessions {
		a := sc.Article
		s := domain.Session{
			SessionID:   i + 1,
			Headline:    a.Headline,
			Summary:     a.Summary,
			Publisher:   a.Publisher,
			PublishedAt: a.PublishedAt,
			SourceURL:   a.SourceURL,
		}
		if len(sc.Batches) == 0 {
			pkg.Publishable = false
		}
		s.Quizzes = groupLevels(sc.Batches)
		for _, b := range sc.Batches {
			if !b.Complete() {
				pkg.Publishable = false
			}
		}
		pkg.Sessions = append(pkg.Sessions, s)
	}
	return pkg
}

func groupLevels(batches []*domain.GenerationBatch) []domain.QuizLevel {
	byLevel := map[domain.Tier][]domain.Step{}
	for _, b := range batches {
		if b == nil {
			continue
		}
		byLevel[b.Tier] = append(byLevel[b.Tier], domain.Step{
			StepOrder:   StepOrder(b.Tier, b.Kind),
			ContentType: b.Kind,
			Contents:    append([]domain.QuizItem{}, b.Accepted...),
			Complete:    b.Complete(),
		})
	}
	out := make([]domain.QuizLevel, 0, len(byLevel))
	for _, tier := range levelOrder {
		steps, ok := byLevel[tier]
		if !ok {
			continue
		}
		sort.SliceStable(steps, func(i, j int) bool { return steps[i].StepOrder < steps[j].StepOrder })
		out = append(out, domain.QuizLevel{Level: tier, Steps: steps})
	}
	return out
}

// StepOrder returns the configured position, or 0 for an unmapped pair.
func StepOrder(tier domain.Tier, kind domain.ContentType) int {
	return StepOrders[tier][kind]
}
