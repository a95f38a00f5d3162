package runner

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/newsquiz-backend/internal/jobs/pipeline/topic_build"
	"github.com/yungbote/newsquiz-backend/internal/platform/logger"
)

// TopicPipeline is the unit of work run once per topic.
type TopicPipeline interface {
	Run(ctx context.Context, runID uuid.UUID, topic string) (*topic_build.Result, error)
}

type TopicReport struct {
	Topic    string
	Result   *topic_build.Result
	Err      error
	Duration time.Duration
}

type Report struct {
	RunID  uuid.UUID
	Topics []TopicReport
}

// Failed counts topics that ended with an error.
func (r Report) Failed() int {
	n := 0
	for _, t := range r.Topics {
		if t.Err != nil {
			n++
		}
	}
	return n
}

type Runner struct {
	log         *logger.Logger
	pipeline    TopicPipeline
	concurrency int
}

func New(baseLog *logger.Logger, pipeline TopicPipeline, concurrency int) *Runner {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Runner{log: baseLog.With("component", "runner"), pipeline: pipeline, concurrency: concurrency}
}

// Run processes topics in parallel up to the configured concurrency. A failing or
// panicking topic is recorded in the report and never cancels the others.
func (r *Runner) Run(ctx context.Context, topics []string) Report {
	report := Report{RunID: uuid.New(), Topics: make([]TopicReport, len(topics))}
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)
	for i, topic := range topics {
		i, topic := i, topic
		g.Go(func() error {
			tr := r.runOne(ctx, report.RunID, topic)
			mu.Lock()
			report.Topics[i] = tr
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	r.log.Info("run finished", "run_id", report.RunID, "topics", len(topics), "failed", report.Failed())
	return report
}

func (r *Runner) runOne(ctx context.Context, runID uuid.UUID, topic string) (tr TopicReport) {
	start := time.Now()
	tr.Topic = topic
	defer func() {
		if rec := recover(); rec != nil {
			tr.Err = fmt.Errorf("topic %q panicked: %v", topic, rec)
			r.log.Error("topic panicked", "topic", topic, "panic", rec, "stack", string(debug.Stack()))
		}
		tr.Duration = time.Since(start)
	}()
	if err := ctx.Err(); err != nil {
		tr.Err = err
		return tr
	}
	res, err := r.pipeline.Run(ctx, runID, topic)
	tr.Result, tr.Err = res, err
	if err != nil {
		r.log.Error("topic failed", "topic", topic, "error", err)
	}
	return tr
}
