package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/newsquiz-backend/internal/data/repos/courses"
	"github.com/yungbote/newsquiz-backend/internal/platform/logger"
)

type CoursePackageRepo = courses.CoursePackageRepo
type GenerationRunRepo = courses.GenerationRunRepo

type Repos struct {
	CoursePackages CoursePackageRepo
	GenerationRuns GenerationRunRepo
}

func New(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		CoursePackages: courses.NewCoursePackageRepo(db, log),
		GenerationRuns: courses.NewGenerationRunRepo(db, log),
	}
}
