package quiz

import (
	"context"
	"fmt"

	"github.com/yungbote/newsquiz-backend/internal/domain"
	"github.com/yungbote/newsquiz-backend/internal/observability"
	"github.com/yungbote/newsquiz-backend/internal/platform/llm"
	"github.com/yungbote/newsquiz-backend/internal/platform/logger"

	"go.opentelemetry.io/otel/attribute"
)

// backfillAttempts bounds the backfill stage: one call plus one retry on transient errors.
const backfillAttempts = 2

// TierSpec configures generation for one content type at one tier.
type TierSpec struct {
	Kind              domain.ContentType `yaml:"kind"`
	Tier              domain.Tier        `yaml:"tier"`
	Target            int                `yaml:"target"`
	QuestionThreshold float64            `yaml:"question_threshold"`
	AnswerThreshold   float64            `yaml:"answer_threshold"`
	Validate          *bool              `yaml:"validate"`
	Model             string             `yaml:"model"`
	BackfillModel     string             `yaml:"backfill_model"`
	Temperature       *float64           `yaml:"temperature"`
}

// validate reports whether candidates go through the semantic validator.
// Ungraded content has no answer key and is never validated.
func (s TierSpec) validate() bool {
	return s.Kind.Graded() && (s.Validate == nil || *s.Validate)
}

func (s TierSpec) withDefaults() TierSpec {
	if s.QuestionThreshold == 0 {
		s.QuestionThreshold = DefaultQuestionThreshold
	}
	if s.AnswerThreshold == 0 {
		s.AnswerThreshold = DefaultAnswerThreshold
	}
	if s.BackfillModel == "" {
		s.BackfillModel = s.Model
	}
	return s
}

// DefaultTierSpecs is the standard session layout: a reading passage per level,
// Basic OX and multiple choice, Inference multiple choice and short answer (five
// items each), and one Inference reflection question.
func DefaultTierSpecs() []TierSpec {
	noValidate := false
	return []TierSpec{
		{Kind: domain.ContentSummaryReading, Tier: domain.TierBasic, Target: 1, Validate: &noValidate, Temperature: llm.Float(0.2)},
		{Kind: domain.ContentOX, Tier: domain.TierBasic, Target: 5, Temperature: llm.Float(0)},
		{Kind: domain.ContentMultipleChoice, Tier: domain.TierBasic, Target: 5, Temperature: llm.Float(0.3)},
		{Kind: domain.ContentSummaryReading, Tier: domain.TierInference, Target: 1, Validate: &noValidate, Temperature: llm.Float(0.2)},
		{Kind: domain.ContentMultipleChoice, Tier: domain.TierInference, Target: 5},
		{Kind: domain.ContentShortAnswer, Tier: domain.TierInference, Target: 5, Temperature: llm.Float(0.3)},
		{Kind: domain.ContentSessionReflection, Tier: domain.TierInference, Target: 1, Validate: &noValidate, Temperature: llm.Float(0.3)},
	}
}

type TierRequest struct {
	Summary     string
	Kind        domain.ContentType
	Tier        domain.Tier
	TargetCount int
	Exemplars   []domain.QuizItem
}

// Orchestrator runs generate, validate and backfill for one tier of one content type.
type Orchestrator struct {
	log       *logger.Logger
	generator *ItemGenerator
	validator *SemanticValidator
	specs     map[specKey]TierSpec
}

type specKey struct {
	kind domain.ContentType
	tier domain.Tier
}

func NewOrchestrator(log *logger.Logger, generator *ItemGenerator, validator *SemanticValidator, specs []TierSpec) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	m := make(map[specKey]TierSpec, len(specs))
	for _, s := range specs {
		m[specKey{s.Kind, s.Tier}] = s.withDefaults()
	}
	return &Orchestrator{log: log.Component("quiz_orchestrator"), generator: generator, validator: validator, specs: m}
}

func (o *Orchestrator) spec(kind domain.ContentType, tier domain.Tier) TierSpec {
	if s, ok := o.specs[specKey{kind, tier}]; ok {
		return s
	}
	return TierSpec{Kind: kind, Tier: tier}.withDefaults()
}

// GenerateTier returns at most TargetCount items. When fewer are available the
// batch is still returned, together with domain.ErrPartialBatch.
func (o *Orchestrator) GenerateTier(ctx context.Context, req TierRequest) (batch *domain.GenerationBatch, err error) {
	ctx, span := observability.StartSpan(ctx, "quiz.generate_tier",
		attribute.String("quiz.kind", string(req.Kind)),
		attribute.String("quiz.tier", string(req.Tier)),
		attribute.Int("quiz.target", req.TargetCount),
	)
	defer func() { observability.EndSpan(span, err) }()

	spec := o.spec(req.Kind, req.Tier)
	batch = &domain.GenerationBatch{Kind: req.Kind, Tier: req.Tier, TargetCount: req.TargetCount}
	if req.TargetCount <= 0 {
		return batch, nil
	}
	log := o.log.With("kind", req.Kind, "tier", req.Tier, "target", req.TargetCount)

	// Generate
	batch.AttemptsUsed++
	candidates, genErr := o.generator.Generate(ctx, GenerateRequest{
		Summary:     req.Summary,
		Kind:        req.Kind,
		Tier:        req.Tier,
		Count:       req.TargetCount,
		Exemplars:   contextExemplars(req),
		Model:       spec.Model,
		Temperature: spec.Temperature,
	})
	if genErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return batch, ctxErr
		}
		log.Warn("generation failed, continuing with no candidates", "error", genErr, "parse_failure", isParseFailure(genErr))
		candidates = nil
	}

	// Validate
	accepted := o.validateCandidates(ctx, log, spec, req.Summary, candidates, batch)
	if len(accepted) > req.TargetCount {
		accepted = accepted[:req.TargetCount]
	}

	// Backfill
	if shortfall := req.TargetCount - len(accepted); shortfall > 0 {
		exemplars := make([]domain.QuizItem, 0, len(req.Exemplars)+len(accepted))
		exemplars = append(exemplars, req.Exemplars...)
		exemplars = append(exemplars, accepted...)
		extra, bfErr := o.backfill(ctx, log, spec, req, shortfall, exemplars, batch)
		if bfErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				batch.Accepted = accepted
				return batch, ctxErr
			}
			log.Warn("backfill failed", "shortfall", shortfall, "error", bfErr)
		}
		batch.Backfilled = len(extra)
		accepted = append(accepted, extra...)
	}

	if len(accepted) > req.TargetCount {
		accepted = accepted[:req.TargetCount]
	}
	batch.Accepted = accepted
	log.Info("tier generation finished",
		"accepted", len(batch.Accepted),
		"rejected", batch.Rejected,
		"backfilled", batch.Backfilled,
		"attempts", batch.AttemptsUsed,
	)
	if !batch.Complete() {
		return batch, fmt.Errorf("%s/%s: %d of %d items: %w", req.Kind, req.Tier, len(batch.Accepted), req.TargetCount, domain.ErrPartialBatch)
	}
	return batch, nil
}

// contextExemplars are the items shown on the first call. Graded kinds only see
// exemplars on backfill; ungraded content is written from them.
func contextExemplars(req TierRequest) []domain.QuizItem {
	if req.Kind.Graded() {
		return nil
	}
	return req.Exemplars
}

func (o *Orchestrator) validateCandidates(ctx context.Context, log *logger.Logger, spec TierSpec, summary string, candidates []domain.QuizItem, batch *domain.GenerationBatch) []domain.QuizItem {
	if len(candidates) == 0 {
		return nil
	}
	if !spec.validate() || o.validator == nil {
		out := make([]domain.QuizItem, len(candidates))
		for i, c := range candidates {
			c.Verdict = domain.VerdictUnvalidated
			out[i] = c
		}
		return out
	}
	accepted, rejected, err := o.validator.ValidateAll(ctx, candidates, summary, spec.QuestionThreshold, spec.AnswerThreshold)
	if err != nil {
		log.Warn("validation unavailable, rejecting candidates", "candidates", len(candidates), "error", err)
		batch.Rejected = len(candidates)
		return nil
	}
	batch.Rejected = len(rejected)
	return accepted
}

// backfill asks once for exactly shortfall items, retrying a single time on transient
// gateway errors. Parse failures are not retried. Backfilled items are not validated.
func (o *Orchestrator) backfill(ctx context.Context, log *logger.Logger, spec TierSpec, req TierRequest, shortfall int, exemplars []domain.QuizItem, batch *domain.GenerationBatch) ([]domain.QuizItem, error) {
	var (
		items []domain.QuizItem
		err   error
	)
	for attempt := 1; attempt <= backfillAttempts; attempt++ {
		batch.AttemptsUsed++
		items, err = o.generator.Generate(ctx, GenerateRequest{
			Summary:     req.Summary,
			Kind:        req.Kind,
			Tier:        req.Tier,
			Count:       shortfall,
			Exemplars:   exemplars,
			Model:       spec.BackfillModel,
			Temperature: spec.Temperature,
		})
		if err == nil || !llm.IsTransient(err) || ctx.Err() != nil {
			break
		}
		log.Warn("backfill transient failure", "attempt", attempt, "error", err)
	}
	if err != nil {
		return nil, err
	}
	if len(items) > shortfall {
		items = items[:shortfall]
	}
	for i := range items {
		items[i].Verdict = domain.VerdictUnvalidated
		items[i].Metrics = nil
	}
	return items, nil
}
