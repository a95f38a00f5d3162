package topic_build

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/newsquiz-backend/internal/domain"
	"github.com/yungbote/newsquiz-backend/internal/pkg/dbctx"
	"github.com/yungbote/newsquiz-backend/internal/types"
)

// persist writes generation audit rows and course packages in one transaction.
func (p *Pipeline) persist(ctx context.Context, runID uuid.UUID, topic string, pkgs []domain.CoursePackage, runs []generationRecord) error {
	if p.deps.Repos == nil || p.deps.DB == nil {
		p.log.Debug("no database configured, skipping persistence", "topic", topic)
		return nil
	}
	rows := generationRows(runID, topic, runs)
	return p.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := p.deps.Repos.GenerationRuns.Create(dbc, rows); err != nil {
			return fmt.Errorf("persist generation runs: %w", err)
		}
		if _, err := p.deps.Repos.CoursePackages.Upsert(dbc, runID, pkgs); err != nil {
			return fmt.Errorf("persist course packages: %w", err)
		}
		return nil
	})
}

func generationRows(runID uuid.UUID, topic string, runs []generationRecord) []*types.GenerationRun {
	now := time.Now().UTC()
	rows := make([]*types.GenerationRun, 0, len(runs))
	for _, r := range runs {
		b := r.batch
		status := types.GenerationStatusComplete
		switch {
		case b == nil || (len(b.Accepted) == 0 && b.TargetCount > 0):
			status = types.GenerationStatusFailed
		case !b.Complete():
			status = types.GenerationStatusPartial
		}
		row := &types.GenerationRun{
			ID:        uuid.New(),
			RunID:     runID,
			Topic:     topic,
			CourseID:  r.courseID,
			SessionID: r.sessionID,
			Status:    status,
			CreatedAt: now,
		}
		if b != nil {
			row.ContentType = string(b.Kind)
			row.Tier = string(b.Tier)
			row.TargetCount = b.TargetCount
			row.Accepted = len(b.Accepted)
			row.Rejected = b.Rejected
			row.Backfilled = b.Backfilled
			row.AttemptsUsed = b.AttemptsUsed
			row.Metadata = verdictSummary(b)
		}
		if r.err != nil {
			row.Error = r.err.Error()
		}
		rows = append(rows, row)
	}
	return rows
}

func verdictSummary(b *domain.GenerationBatch) datatypes.JSON {
	counts := map[string]int{}
	for _, it := range b.Accepted {
		counts[string(it.Verdict)]++
	}
	raw, err := json.Marshal(map[string]any{"verdicts": counts})
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
