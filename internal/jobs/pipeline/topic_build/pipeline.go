package topic_build

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/newsquiz-backend/internal/domain"
	"github.com/yungbote/newsquiz-backend/internal/modules/course"
	"github.com/yungbote/newsquiz-backend/internal/modules/curation"
	"github.com/yungbote/newsquiz-backend/internal/modules/quiz"
	"github.com/yungbote/newsquiz-backend/internal/observability"
)

// Run builds and stores every course for one topic. Clustering-stage shortfalls
// end the run as skipped with a nil error.
func (p *Pipeline) Run(ctx context.Context, runID uuid.UUID, topic string) (res *Result, err error) {
	topic = strings.TrimSpace(topic)
	ctx, span := observability.StartSpan(ctx, "topic_build.run", attribute.String("topic", topic))
	defer func() { observability.EndSpan(span, err) }()

	res = &Result{RunID: runID.String(), Topic: topic}
	log := p.log.With("topic", topic, "run_id", res.RunID)
	if topic == "" {
		res.Status = StatusFailed
		return res, fmt.Errorf("topic_build: empty topic")
	}

	records, ref, err := p.collect(ctx, topic)
	if err != nil {
		res.Status = StatusFailed
		return res, err
	}
	res.Collection = ref.Name
	res.Records = len(records)

	valid := validDocs(records)
	res.ValidDocs = len(valid)
	log.Info("records collected", "collection", ref.Name, "records", len(records), "valid", len(valid))

	candidates, err := p.curate(ctx, valid)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientData) || errors.Is(err, domain.ErrNoViableClusters) {
			res.Status = StatusSkipped
			res.SkipReason = err.Error()
			log.Warn("topic skipped", "reason", err)
			return res, nil
		}
		res.Status = StatusFailed
		return res, err
	}
	res.Clusters = len(candidates)

	var runs []generationRecord
	pkgs := make([]domain.CoursePackage, 0, len(candidates))
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			res.Status = StatusFailed
			return res, err
		}
		pkg, courseRuns, err := p.buildCourse(ctx, topic, cand)
		if err != nil {
			res.Status = StatusFailed
			return res, err
		}
		pkgs = append(pkgs, pkg)
		runs = append(runs, courseRuns...)
	}

	if p.deps.Refiner != nil {
		pkgs = p.deps.Refiner.FilterEducational(ctx, pkgs)
	}
	for i := range pkgs {
		if !pkgs[i].Educational {
			pkgs[i].Publishable = false
			res.NonEducational++
		}
		if pkgs[i].Publishable {
			res.Publishable++
		}
	}
	for _, r := range runs {
		if !r.batch.Complete() {
			res.PartialBatches++
		}
	}

	if err := p.persist(ctx, runID, topic, pkgs, runs); err != nil {
		res.Status = StatusFailed
		return res, err
	}
	res.Courses = len(pkgs)
	res.Packages = pkgs
	res.Status = StatusSucceeded
	log.Info("topic built",
		"courses", res.Courses,
		"publishable", res.Publishable,
		"non_educational", res.NonEducational,
		"partial_batches", res.PartialBatches,
	)
	return res, nil
}

func (p *Pipeline) collect(ctx context.Context, topic string) ([]domain.ArticleRecord, domain.CollectionRef, error) {
	if p.deps.Store == nil {
		return nil, domain.CollectionRef{}, fmt.Errorf("topic_build: no article store configured")
	}
	refs, err := p.deps.Store.ListCollections(ctx, topic)
	if err != nil {
		return nil, domain.CollectionRef{}, fmt.Errorf("list collections for %q: %w", topic, err)
	}
	ref := p.deps.Store.DefaultCollection(topic)
	if len(refs) > 0 {
		ref = refs[0]
	}
	records, err := p.deps.Store.GetRecordsFiltered(ctx, ref, p.cfg.RecordLimit, publisherFilter(p.cfg.Publishers))
	if err != nil {
		return nil, ref, fmt.Errorf("fetch records from %q: %w", ref.Name, err)
	}
	return records, ref, nil
}

// publisherFilter restricts records to an allowlist; an empty list means no filter.
func publisherFilter(publishers []string) map[string]any {
	clean := make([]string, 0, len(publishers))
	for _, pub := range publishers {
		if s := strings.TrimSpace(pub); s != "" {
			clean = append(clean, s)
		}
	}
	if len(clean) == 0 {
		return nil
	}
	return map[string]any{"publisher": map[string]any{"$in": clean}}
}

func validDocs(records []domain.ArticleRecord) []domain.ArticleRecord {
	out := make([]domain.ArticleRecord, 0, len(records))
	for _, r := range records {
		if r.HasSummary() {
			out = append(out, r)
		}
	}
	return out
}

func (p *Pipeline) curate(ctx context.Context, valid []domain.ArticleRecord) (_ []domain.CourseCandidate, err error) {
	ctx, span := observability.StartSpan(ctx, "topic_build.curate", attribute.Int("valid_docs", len(valid)))
	defer func() { observability.EndSpan(span, err) }()

	if p.deps.Engine == nil {
		return nil, fmt.Errorf("topic_build: no cluster engine configured")
	}
	clusters, err := p.deps.Engine.Cluster(ctx, valid, p.cfg.K)
	if err != nil {
		return nil, err
	}
	if p.deps.Noise != nil {
		for i := range clusters {
			kept, ferr := p.deps.Noise.Filter(ctx, clusters[i].Members, p.cfg.NoiseBaseThreshold)
			if ferr != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				p.log.Warn("noise filter failed, keeping cluster unfiltered", "label", clusters[i].Label, "error", ferr)
				continue
			}
			clusters[i].Members = kept
		}
	}
	return curation.Curate(clusters, curation.MinClusterSize(len(valid), p.cfg.K), p.cfg.MaxCourseSize)
}

// generationRecord ties a batch to the course and session it was generated for.
type generationRecord struct {
	courseID  string
	sessionID int
	batch     *domain.GenerationBatch
	err       error
}

func (p *Pipeline) buildCourse(ctx context.Context, topic string, cand domain.CourseCandidate) (domain.CoursePackage, []generationRecord, error) {
	courseID := course.CourseID(topic, cand.Members)
	meta := course.FallbackMetadata(topic, cand.TopicLabel)
	if p.deps.Metadata != nil {
		meta = p.deps.Metadata.Describe(ctx, topic, cand)
	}
	coherence, err := course.HeadlineCoherence(ctx, p.deps.Embedder, cand.Members)
	if err != nil {
		p.log.Warn("coherence unavailable", "course_id", courseID, "error", err)
	}

	var runs []generationRecord
	sessions := make([]course.SessionContent, 0, len(cand.Members))
	for i, article := range cand.Members {
		batches, sessionRuns, err := p.generateSession(ctx, courseID, i+1, article)
		if err != nil {
			return domain.CoursePackage{}, nil, err
		}
		sessions = append(sessions, course.SessionContent{Article: article, Batches: batches})
		runs = append(runs, sessionRuns...)
	}
	return course.Assemble(course.AssembleInput{
		CourseID:  courseID,
		Topic:     topic,
		Metadata:  meta,
		Coherence: coherence,
		Sessions:  sessions,
	}), runs, nil
}

// generateSession runs every configured tier in order, Basic before Inference, and
// balances all multiple-choice answers of the session together. Graded items
// accepted at Basic seed the same kind at Inference; a reflection sees every
// graded item accepted so far at its own level.
func (p *Pipeline) generateSession(ctx context.Context, courseID string, sessionID int, article domain.ArticleRecord) ([]*domain.GenerationBatch, []generationRecord, error) {
	if p.deps.Orchestrator == nil {
		return nil, nil, nil
	}
	var (
		batches   []*domain.GenerationBatch
		runs      []generationRecord
		exemplars = map[domain.ContentType][]domain.QuizItem{}
		graded    = map[domain.Tier][]domain.QuizItem{}
	)
	for _, tier := range []domain.Tier{domain.TierBasic, domain.TierInference} {
		for _, spec := range p.cfg.Tiers {
			if spec.Tier != tier {
				continue
			}
			batch, err := p.deps.Orchestrator.GenerateTier(ctx, quiz.TierRequest{
				Summary:     article.Summary,
				Kind:        spec.Kind,
				Tier:        spec.Tier,
				TargetCount: spec.Target,
				Exemplars:   sessionExemplars(spec, exemplars, graded),
			})
			if err != nil && !errors.Is(err, domain.ErrPartialBatch) {
				return nil, nil, fmt.Errorf("session %d %s/%s: %w", sessionID, spec.Kind, spec.Tier, err)
			}
			if tier == domain.TierBasic {
				exemplars[spec.Kind] = append(exemplars[spec.Kind], batch.Accepted...)
			}
			if spec.Kind.Graded() {
				graded[tier] = append(graded[tier], batch.Accepted...)
			}
			batches = append(batches, batch)
			runs = append(runs, generationRecord{courseID: courseID, sessionID: sessionID, batch: batch, err: err})
		}
	}
	p.balanceSession(batches)
	return batches, runs, nil
}

func sessionExemplars(spec quiz.TierSpec, byKind map[domain.ContentType][]domain.QuizItem, graded map[domain.Tier][]domain.QuizItem) []domain.QuizItem {
	if spec.Kind == domain.ContentSessionReflection {
		return graded[spec.Tier]
	}
	return byKind[spec.Kind]
}

func (p *Pipeline) balanceSession(batches []*domain.GenerationBatch) {
	if p.deps.Balancer == nil {
		return
	}
	var all []domain.QuizItem
	for _, b := range batches {
		if b.Kind == domain.ContentMultipleChoice {
			all = append(all, b.Accepted...)
		}
	}
	balanced := p.deps.Balancer.Balance(all)
	n := 0
	for _, b := range batches {
		if b.Kind != domain.ContentMultipleChoice {
			continue
		}
		copy(b.Accepted, balanced[n:n+len(b.Accepted)])
		n += len(b.Accepted)
	}
}
