package course

import (
	"context"
	"strings"

	"github.com/yungbote/newsquiz-backend/internal/domain"
	"github.com/yungbote/newsquiz-backend/internal/platform/llm"
	"github.com/yungbote/newsquiz-backend/internal/platform/logger"
)

const (
	DefaultRefineBatchSize = 8
	reasonCallFailed       = "review call failed (kept)"
	reasonUnparseable      = "review output unparseable (kept)"
	reasonNotReviewed      = "not reviewed (kept)"
)

// Refiner asks the model whether each course is worth studying.
type Refiner struct {
	log       *logger.Logger
	gateway   llm.Gateway
	model     string
	batchSize int
}

func NewRefiner(log *logger.Logger, gateway llm.Gateway, model string, batchSize int) *Refiner {
	if log == nil {
		log = logger.Nop()
	}
	if batchSize <= 0 {
		batchSize = DefaultRefineBatchSize
	}
	return &Refiner{log: log.Component("course_refiner"), gateway: gateway, model: model, batchSize: batchSize}
}

// refineVerdict refers to its course by the 1-based position in the prompt list.
// CourseName is only used when Index is absent and the name is unique in the batch.
type refineVerdict struct {
	Index         *int   `json:"index"`
	CourseName    string `json:"courseName"`
	IsEducational *bool  `json:"is_educational"`
	Reason        string `json:"reason"`
}

// FilterEducational returns a copy of pkgs with Educational and RefineReason set.
// Courses the model could not judge are kept as educational.
func (r *Refiner) FilterEducational(ctx context.Context, pkgs []domain.CoursePackage) []domain.CoursePackage {
	out := make([]domain.CoursePackage, len(pkgs))
	copy(out, pkgs)
	for i := range out {
		out[i].Educational = true
		out[i].RefineReason = reasonNotReviewed
	}
	if r.gateway == nil {
		return out
	}
	for start := 0; start < len(out); start += r.batchSize {
		end := start + r.batchSize
		if end > len(out) {
			end = len(out)
		}
		r.reviewBatch(ctx, out[start:end])
	}
	return out
}

func (r *Refiner) reviewBatch(ctx context.Context, batch []domain.CoursePackage) {
	names := make([]string, len(batch))
	for i, p := range batch {
		names[i] = p.CourseName
	}
	p, err := promptSet.Build("course_refine", map[string]any{"Names": names})
	if err != nil {
		r.log.Error("build refine prompt", "error", err)
		return
	}
	raw, err := r.gateway.Complete(ctx, llm.Request{
		System:      p.System,
		Prompt:      p.User,
		Format:      llm.FormatJSON,
		Temperature: llm.Float(0.2),
		Model:       r.model,
	})
	if err != nil {
		r.log.Warn("refine call failed, keeping batch", "courses", len(batch), "error", err)
		setReason(batch, reasonCallFailed)
		return
	}
	verdicts, err := decodeVerdicts(raw)
	if err != nil {
		r.log.Warn("refine output unparseable, keeping batch", "courses", len(batch), "error", err)
		setReason(batch, reasonUnparseable)
		return
	}
	for _, v := range verdicts {
		i, ok := verdictPosition(v, names)
		if !ok || v.IsEducational == nil {
			continue
		}
		batch[i].Educational = *v.IsEducational
		batch[i].RefineReason = strings.TrimSpace(v.Reason)
	}
}

func verdictPosition(v refineVerdict, names []string) (int, bool) {
	if v.Index != nil {
		i := *v.Index - 1
		return i, i >= 0 && i < len(names)
	}
	name := strings.TrimSpace(v.CourseName)
	pos := -1
	for i, n := range names {
		if strings.TrimSpace(n) != name {
			continue
		}
		if pos >= 0 {
			return -1, false
		}
		pos = i
	}
	return pos, pos >= 0
}

func decodeVerdicts(raw string) ([]refineVerdict, error) {
	cleaned := llm.CleanJSON(raw)
	if strings.HasPrefix(cleaned, "[") {
		var list []refineVerdict
		err := llm.DecodeJSON(cleaned, &list)
		return list, err
	}
	var wrapped struct {
		Results []refineVerdict `json:"results"`
		refineVerdict
	}
	if err := llm.DecodeJSON(cleaned, &wrapped); err != nil {
		return nil, err
	}
	if len(wrapped.Results) == 0 && (wrapped.CourseName != "" || wrapped.Index != nil) {
		return []refineVerdict{wrapped.refineVerdict}, nil
	}
	return wrapped.Results, nil
}

func setReason(batch []domain.CoursePackage, reason string) {
	for i := range batch {
		batch[i].RefineReason = reason
	}
}
