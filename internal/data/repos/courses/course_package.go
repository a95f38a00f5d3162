package courses

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/newsquiz-backend/internal/domain"
	"github.com/yungbote/newsquiz-backend/internal/pkg/dbctx"
	"github.com/yungbote/newsquiz-backend/internal/platform/logger"
	"github.com/yungbote/newsquiz-backend/internal/types"
)

type CoursePackageRepo interface {
	Upsert(dbc dbctx.Context, runID uuid.UUID, pkgs []domain.CoursePackage) ([]*types.CoursePackageRecord, error)
	GetByCourseID(dbc dbctx.Context, courseID string) (*types.CoursePackageRecord, error)
	ListByTopic(dbc dbctx.Context, topic string, publishableOnly bool) ([]*types.CoursePackageRecord, error)
	Decode(rec *types.CoursePackageRecord) (*domain.CoursePackage, error)
}

type coursePackageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCoursePackageRepo(db *gorm.DB, baseLog *logger.Logger) CoursePackageRepo {
	return &coursePackageRepo{db: db, log: baseLog.With("repo", "CoursePackageRepo")}
}

// Upsert writes packages keyed by course id; a rerun replaces the stored payload.
func (r *coursePackageRepo) Upsert(dbc dbctx.Context, runID uuid.UUID, pkgs []domain.CoursePackage) ([]*types.CoursePackageRecord, error) {
	if len(pkgs) == 0 {
		return []*types.CoursePackageRecord{}, nil
	}
	now := time.Now().UTC()
	rows := make([]*types.CoursePackageRecord, 0, len(pkgs))
	for _, p := range pkgs {
		payload, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode course %s: %w", p.CourseID, err)
		}
		rows = append(rows, &types.CoursePackageRecord{
			ID:          uuid.New(),
			RunID:       runID,
			Topic:       p.Topic,
			CourseID:    p.CourseID,
			CourseName:  p.CourseName,
			Sessions:    len(p.Sessions),
			Coherence:   p.Coherence,
			Publishable: p.Publishable,
			Educational: p.Educational,
			Payload:     datatypes.JSON(payload),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	err := dbc.Conn(r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "course_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"run_id", "topic", "course_name", "sessions", "coherence",
			"publishable", "educational", "payload", "updated_at",
		}),
	}).Create(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *coursePackageRepo) GetByCourseID(dbc dbctx.Context, courseID string) (*types.CoursePackageRecord, error) {
	if courseID == "" {
		return nil, nil
	}
	var rec types.CoursePackageRecord
	err := dbc.Conn(r.db).Where("course_id = ?", courseID).Limit(1).Find(&rec).Error
	if err != nil {
		return nil, err
	}
	if rec.ID == uuid.Nil {
		return nil, nil
	}
	return &rec, nil
}

func (r *coursePackageRepo) ListByTopic(dbc dbctx.Context, topic string, publishableOnly bool) ([]*types.CoursePackageRecord, error) {
	var out []*types.CoursePackageRecord
	q := dbc.Conn(r.db).Where("topic = ?", topic)
	if publishableOnly {
		q = q.Where("publishable = ?", true)
	}
	if err := q.Order("course_id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *coursePackageRepo) Decode(rec *types.CoursePackageRecord) (*domain.CoursePackage, error) {
	if rec == nil {
		return nil, nil
	}
	var p domain.CoursePackage
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode course %s: %w", rec.CourseID, err)
	}
	return &p, nil
}
