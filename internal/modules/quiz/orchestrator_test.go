package quiz

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/yungbote/newsquiz-backend/internal/domain"
	"github.com/yungbote/newsquiz-backend/internal/platform/llm"
)

func groundedEmbedder() *vectorEmbedder {
	return &vectorEmbedder{
		byText: map[string][]float32{
			"S":     onTopic,
			"q1":    onTopic,
			"q2":    onTopic,
			"q3":    onTopic,
			"q4":    onTopic,
			"q5":    onTopic,
			"good1": onTopic,
			"good2": onTopic,
			"good3": onTopic,
		},
		fallback: offTopic,
	}
}

func newTestOrchestrator(gw *fakeGateway, emb *vectorEmbedder) *Orchestrator {
	return NewOrchestrator(nil, NewItemGenerator(nil, gw, ""), NewSemanticValidator(nil, emb, ValidatorConfig{}), DefaultTierSpecs())
}

func mcRequest() TierRequest {
	return TierRequest{Summary: "S", Kind: domain.ContentMultipleChoice, Tier: domain.TierBasic, TargetCount: 5}
}

func TestGenerateTierBackfillsShortfallOnce(t *testing.T) {
	gw := &fakeGateway{replies: []gatewayReply{
		{body: mcJSON(mcSpec{"q1", "good1"}, mcSpec{"q2", "good2"}, mcSpec{"q3", "good3"}, mcSpec{"q4", "bad"}, mcSpec{"q5", "bad"})},
		{body: mcJSON(mcSpec{"b1", "x"}, mcSpec{"b2", "y"})},
	}}
	batch, err := newTestOrchestrator(gw, groundedEmbedder()).GenerateTier(context.Background(), mcRequest())
	if err != nil {
		t.Fatalf("GenerateTier: %v", err)
	}
	if len(batch.Accepted) != 5 || batch.AttemptsUsed != 2 || batch.Backfilled != 2 || batch.Rejected != 2 {
		t.Fatalf("batch: accepted=%d attempts=%d backfilled=%d rejected=%d", len(batch.Accepted), batch.AttemptsUsed, batch.Backfilled, batch.Rejected)
	}
	if len(gw.requests) != 2 || !strings.Contains(gw.requests[1].Prompt, "Write 2 multiple-choice") {
		t.Fatalf("backfill request should ask for 2 items: %d requests", len(gw.requests))
	}
	if !strings.Contains(gw.requests[1].Prompt, "q1") {
		t.Fatalf("backfill prompt should list accepted items as exemplars")
	}
	for i, it := range batch.Accepted {
		want := domain.VerdictAccepted
		if i >= 3 {
			want = domain.VerdictUnvalidated
		}
		if it.Verdict != want {
			t.Fatalf("item %d verdict: want=%s got=%s", i, want, it.Verdict)
		}
	}
	if batch.Accepted[0].Metrics == nil || batch.Accepted[0].Metrics.CompositeScore < 0.99 {
		t.Fatalf("accepted item should carry metrics: %+v", batch.Accepted[0].Metrics)
	}
}

func TestGenerateTierNoBackfillWhenTargetMet(t *testing.T) {
	gw := &fakeGateway{replies: []gatewayReply{
		{body: mcJSON(mcSpec{"q1", "good1"}, mcSpec{"q2", "good2"}, mcSpec{"q3", "good3"}, mcSpec{"q4", "good1"}, mcSpec{"q5", "good2"}, mcSpec{"q1", "good3"})},
	}}
	batch, err := newTestOrchestrator(gw, groundedEmbedder()).GenerateTier(context.Background(), mcRequest())
	if err != nil {
		t.Fatalf("GenerateTier: %v", err)
	}
	if len(batch.Accepted) != 5 || batch.AttemptsUsed != 1 || batch.Backfilled != 0 {
		t.Fatalf("batch: accepted=%d attempts=%d backfilled=%d", len(batch.Accepted), batch.AttemptsUsed, batch.Backfilled)
	}
}

func TestGenerateTierTransportFailureBackfillsWholeTarget(t *testing.T) {
	gw := &fakeGateway{replies: []gatewayReply{
		{err: &llm.TransportError{Provider: "fake", StatusCode: 502, Err: errors.New("bad gateway")}},
		{body: mcJSON(mcSpec{"b1", "x"}, mcSpec{"b2", "x"}, mcSpec{"b3", "x"}, mcSpec{"b4", "x"}, mcSpec{"b5", "x"}, mcSpec{"b6", "x"})},
	}}
	batch, err := newTestOrchestrator(gw, groundedEmbedder()).GenerateTier(context.Background(), mcRequest())
	if err != nil {
		t.Fatalf("GenerateTier: %v", err)
	}
	if len(batch.Accepted) != 5 || batch.Backfilled != 5 || batch.AttemptsUsed != 2 {
		t.Fatalf("batch: accepted=%d backfilled=%d attempts=%d", len(batch.Accepted), batch.Backfilled, batch.AttemptsUsed)
	}
	if !strings.Contains(gw.requests[1].Prompt, "Write 5 multiple-choice") {
		t.Fatalf("backfill should ask for the whole target")
	}
}

func TestGenerateTierPartialAfterTransientRetry(t *testing.T) {
	rl := &llm.RateLimitError{Provider: "fake", Err: errors.New("slow down")}
	gw := &fakeGateway{replies: []gatewayReply{
		{body: "not json at all"},
		{err: rl},
		{err: rl},
	}}
	batch, err := newTestOrchestrator(gw, groundedEmbedder()).GenerateTier(context.Background(), mcRequest())
	if !errors.Is(err, domain.ErrPartialBatch) {
		t.Fatalf("err: want ErrPartialBatch got=%v", err)
	}
	if batch == nil || len(batch.Accepted) != 0 || batch.AttemptsUsed != 3 {
		t.Fatalf("batch: %+v", batch)
	}
}

func TestGenerateTierParseFailureNotRetried(t *testing.T) {
	gw := &fakeGateway{replies: []gatewayReply{
		{body: mcJSON(mcSpec{"q1", "good1"}, mcSpec{"q2", "good2"})},
		{body: "garbage"},
		{body: mcJSON(mcSpec{"never", "x"})},
	}}
	batch, err := newTestOrchestrator(gw, groundedEmbedder()).GenerateTier(context.Background(), mcRequest())
	if !errors.Is(err, domain.ErrPartialBatch) {
		t.Fatalf("err: want ErrPartialBatch got=%v", err)
	}
	if len(batch.Accepted) != 2 || batch.AttemptsUsed != 2 {
		t.Fatalf("batch: accepted=%d attempts=%d", len(batch.Accepted), batch.AttemptsUsed)
	}
}

func TestGenerateTierTruncatesBackfillToShortfall(t *testing.T) {
	gw := &fakeGateway{replies: []gatewayReply{
		{body: mcJSON(mcSpec{"q1", "good1"}, mcSpec{"q2", "good2"}, mcSpec{"q3", "good3"})},
		{body: mcJSON(mcSpec{"b1", "x"}, mcSpec{"b2", "x"}, mcSpec{"b3", "x"}, mcSpec{"b4", "x"})},
	}}
	batch, err := newTestOrchestrator(gw, groundedEmbedder()).GenerateTier(context.Background(), mcRequest())
	if err != nil {
		t.Fatalf("GenerateTier: %v", err)
	}
	if len(batch.Accepted) != 5 || batch.Backfilled != 2 {
		t.Fatalf("batch: accepted=%d backfilled=%d", len(batch.Accepted), batch.Backfilled)
	}
}

func TestGenerateTierValidationDisabled(t *testing.T) {
	off := false
	specs := []TierSpec{{Kind: domain.ContentOX, Tier: domain.TierBasic, Target: 2, Validate: &off}}
	gw := &fakeGateway{replies: []gatewayReply{
		{body: `{"items":[{"question":"a","answer":"O","explanation":"x"},{"question":"b","answer":"X","explanation":"y"}]}`},
	}}
	emb := groundedEmbedder()
	o := NewOrchestrator(nil, NewItemGenerator(nil, gw, ""), NewSemanticValidator(nil, emb, ValidatorConfig{}), specs)
	batch, err := o.GenerateTier(context.Background(), TierRequest{Summary: "S", Kind: domain.ContentOX, Tier: domain.TierBasic, TargetCount: 2})
	if err != nil {
		t.Fatalf("GenerateTier: %v", err)
	}
	if emb.calls != 0 || batch.Accepted[0].Verdict != domain.VerdictUnvalidated {
		t.Fatalf("validation should be skipped: calls=%d verdict=%s", emb.calls, batch.Accepted[0].Verdict)
	}
}

func TestGenerateTierUngradedSkipsValidationAndSeesExemplars(t *testing.T) {
	gw := &fakeGateway{replies: []gatewayReply{{body: `{"items":[{"question":"What drove the decision?"}]}`}}}
	emb := groundedEmbedder()
	batch, err := newTestOrchestrator(gw, emb).GenerateTier(context.Background(), TierRequest{
		Summary:     "S",
		Kind:        domain.ContentSessionReflection,
		Tier:        domain.TierInference,
		TargetCount: 1,
		Exemplars:   []domain.QuizItem{{Question: "earlier quiz"}},
	})
	if err != nil {
		t.Fatalf("GenerateTier: %v", err)
	}
	if emb.calls != 0 {
		t.Fatalf("embed calls: want=0 got=%d", emb.calls)
	}
	if len(batch.Accepted) != 1 || batch.Accepted[0].Verdict != domain.VerdictUnvalidated {
		t.Fatalf("batch: %+v", batch.Accepted)
	}
	if len(gw.requests) != 1 || !strings.Contains(gw.requests[0].Prompt, "1. earlier quiz") {
		t.Fatalf("first request should list the session quizzes")
	}
}

func TestTierSpecForcesUngradedUnvalidated(t *testing.T) {
	on := true
	if (TierSpec{Kind: domain.ContentSummaryReading, Validate: &on}).validate() {
		t.Fatalf("summary reading must not be validated")
	}
	if !(TierSpec{Kind: domain.ContentShortAnswer}).validate() {
		t.Fatalf("short answer validates by default")
	}
}

func TestGenerateTierZeroTarget(t *testing.T) {
	gw := &fakeGateway{}
	batch, err := newTestOrchestrator(gw, groundedEmbedder()).GenerateTier(context.Background(), TierRequest{Kind: domain.ContentOX, Tier: domain.TierBasic})
	if err != nil || batch.AttemptsUsed != 0 || len(gw.requests) != 0 {
		t.Fatalf("zero target: err=%v attempts=%d requests=%d", err, batch.AttemptsUsed, len(gw.requests))
	}
}
