package topic_build

import (
	"context"

	"gorm.io/gorm"

	"github.com/yungbote/newsquiz-backend/internal/data/repos"
	"github.com/yungbote/newsquiz-backend/internal/domain"
	"github.com/yungbote/newsquiz-backend/internal/modules/course"
	"github.com/yungbote/newsquiz-backend/internal/modules/curation"
	"github.com/yungbote/newsquiz-backend/internal/modules/quiz"
	"github.com/yungbote/newsquiz-backend/internal/platform/llm"
	"github.com/yungbote/newsquiz-backend/internal/platform/logger"
)

// ArticleStore is the read side of the embedding store.
type ArticleStore interface {
	ListCollections(ctx context.Context, topic string) ([]domain.CollectionRef, error)
	DefaultCollection(topic string) domain.CollectionRef
	GetRecordsFiltered(ctx context.Context, ref domain.CollectionRef, limit int, filter map[string]any) ([]domain.ArticleRecord, error)
}

type Config struct {
	K                  int             `yaml:"k"`
	RecordLimit        int             `yaml:"record_limit"`
	NoiseBaseThreshold float64         `yaml:"noise_base_threshold"`
	MaxCourseSize      int             `yaml:"max_course_size"`
	Publishers         []string        `yaml:"publishers"`
	Tiers              []quiz.TierSpec `yaml:"tiers"`
}

func DefaultConfig() Config {
	return Config{
		K:                  7,
		RecordLimit:        5000,
		NoiseBaseThreshold: 0.5,
		MaxCourseSize:      7,
		Tiers:              quiz.DefaultTierSpecs(),
	}
}

// Deps are the collaborators of one pipeline. DB and Repos may be nil, in which
// case nothing is persisted.
type Deps struct {
	Store        ArticleStore
	Engine       *curation.ClusterEngine
	Noise        *curation.NoiseFilter
	Orchestrator *quiz.Orchestrator
	Balancer     *quiz.AnswerBalancer
	Metadata     *course.MetadataWriter
	Refiner      *course.Refiner
	Embedder     llm.Embedder
	DB           *gorm.DB
	Repos        *repos.Repos
}

type Pipeline struct {
	log  *logger.Logger
	cfg  Config
	deps Deps
}

func New(baseLog *logger.Logger, cfg Config, deps Deps) *Pipeline {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	def := DefaultConfig()
	if cfg.K <= 0 {
		cfg.K = def.K
	}
	if cfg.RecordLimit <= 0 {
		cfg.RecordLimit = def.RecordLimit
	}
	if cfg.MaxCourseSize <= 0 {
		cfg.MaxCourseSize = def.MaxCourseSize
	}
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = def.Tiers
	}
	return &Pipeline{log: baseLog.With("job", "topic_build"), cfg: cfg, deps: deps}
}

func (p *Pipeline) Type() string { return "topic_build" }

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Result summarises one topic run.
type Result struct {
	RunID          string
	Topic          string
	Collection     string
	Status         Status
	SkipReason     string
	Records        int
	ValidDocs      int
	Clusters       int
	Courses        int
	Publishable    int
	NonEducational int
	PartialBatches int
	Packages       []domain.CoursePackage
}
