package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	GenerationStatusComplete = "complete"
	GenerationStatusPartial  = "partial"
	GenerationStatusFailed   = "failed"
)

// GenerationRun audits one tier of one content type for one session.
type GenerationRun struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RunID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"run_id"`
	Topic        string         `gorm:"column:topic;not null;index" json:"topic"`
	CourseID     string         `gorm:"column:course_id;not null;index" json:"course_id"`
	SessionID    int            `gorm:"column:session_id;not null" json:"session_id"`
	ContentType  string         `gorm:"column:content_type;not null" json:"content_type"`
	Tier         string         `gorm:"column:tier;not null" json:"tier"`
	TargetCount  int            `gorm:"column:target_count;not null" json:"target_count"`
	Accepted     int            `gorm:"column:accepted;not null" json:"accepted"`
	Rejected     int            `gorm:"column:rejected;not null" json:"rejected"`
	Backfilled   int            `gorm:"column:backfilled;not null" json:"backfilled"`
	AttemptsUsed int            `gorm:"column:attempts_used;not null" json:"attempts_used"`
	Status       string         `gorm:"column:status;not null;index" json:"status"` // complete|partial|failed
	Error        string         `gorm:"column:error" json:"error"`
	Metadata     datatypes.JSON `gorm:"column:metadata" json:"metadata"`
	CreatedAt    time.Time      `gorm:"not null;index" json:"created_at"`
}

func (GenerationRun) TableName() string { return "generation_run" }
