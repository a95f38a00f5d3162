package courses

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/newsquiz-backend/internal/pkg/dbctx"
	"github.com/yungbote/newsquiz-backend/internal/platform/logger"
	"github.com/yungbote/newsquiz-backend/internal/types"
)

type GenerationRunRepo interface {
	Create(dbc dbctx.Context, runs []*types.GenerationRun) ([]*types.GenerationRun, error)
	ListByRun(dbc dbctx.Context, runID uuid.UUID) ([]*types.GenerationRun, error)
	CountByStatus(dbc dbctx.Context, runID uuid.UUID) (map[string]int, error)
}

type generationRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGenerationRunRepo(db *gorm.DB, baseLog *logger.Logger) GenerationRunRepo {
	return &generationRunRepo{db: db, log: baseLog.With("repo", "GenerationRunRepo")}
}

func (r *generationRunRepo) Create(dbc dbctx.Context, runs []*types.GenerationRun) ([]*types.GenerationRun, error) {
	if len(runs) == 0 {
		return []*types.GenerationRun{}, nil
	}
	for _, run := range runs {
		if run.ID == uuid.Nil {
			run.ID = uuid.New()
		}
	}
	if err := dbc.Conn(r.db).Create(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *generationRunRepo) ListByRun(dbc dbctx.Context, runID uuid.UUID) ([]*types.GenerationRun, error) {
	var out []*types.GenerationRun
	if runID == uuid.Nil {
		return out, nil
	}
	err := dbc.Conn(r.db).
		Where("run_id = ?", runID).
		Order("course_id ASC, session_id ASC, tier ASC, content_type ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *generationRunRepo) CountByStatus(dbc dbctx.Context, runID uuid.UUID) (map[string]int, error) {
	type row struct {
		Status string
		N      int
	}
	var rows []row
	err := dbc.Conn(r.db).Model(&types.GenerationRun{}).
		Select("status, COUNT(*) AS n").
		Where("run_id = ?", runID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, rw := range rows {
		out[rw.Status] = rw.N
	}
	return out, nil
}
