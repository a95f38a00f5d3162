package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// CoursePackageRecord stores an assembled course document.
type CoursePackageRecord struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RunID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"run_id"`
	Topic       string         `gorm:"column:topic;not null;index" json:"topic"`
	CourseID    string         `gorm:"column:course_id;not null;uniqueIndex" json:"course_id"`
	CourseName  string         `gorm:"column:course_name;not null" json:"course_name"`
	Sessions    int            `gorm:"column:sessions;not null" json:"sessions"`
	Coherence   float64        `gorm:"column:coherence" json:"coherence"`
	Publishable bool           `gorm:"column:publishable;not null;index" json:"publishable"`
	Educational bool           `gorm:"column:educational;not null" json:"educational"`
	Payload     datatypes.JSON `gorm:"column:payload" json:"payload"`
	CreatedAt   time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (CoursePackageRecord) TableName() string { return "course_package" }
