package app

import (
	"context"
	"fmt"
	"math/rand"

	"gorm.io/gorm"

	"github.com/yungbote/newsquiz-backend/internal/clients/redis"
	"github.com/yungbote/newsquiz-backend/internal/data/db"
	"github.com/yungbote/newsquiz-backend/internal/data/repos"
	"github.com/yungbote/newsquiz-backend/internal/jobs/pipeline/topic_build"
	"github.com/yungbote/newsquiz-backend/internal/jobs/runner"
	"github.com/yungbote/newsquiz-backend/internal/modules/course"
	"github.com/yungbote/newsquiz-backend/internal/modules/curation"
	"github.com/yungbote/newsquiz-backend/internal/modules/quiz"
	"github.com/yungbote/newsquiz-backend/internal/observability"
	"github.com/yungbote/newsquiz-backend/internal/platform/anthropic"
	"github.com/yungbote/newsquiz-backend/internal/platform/llm"
	"github.com/yungbote/newsquiz-backend/internal/platform/logger"
	"github.com/yungbote/newsquiz-backend/internal/platform/openai"
	"github.com/yungbote/newsquiz-backend/internal/platform/qdrant"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *gorm.DB
	Repos    repos.Repos
	Pipeline *topic_build.Pipeline
	Runner   *runner.Runner
	closers  []func(context.Context) error
}

// New wires every collaborator from cfg. On error, anything already opened is closed.
func New(ctx context.Context, log *logger.Logger, cfg Config) (a *App, err error) {
	a = &App{Log: log, Cfg: cfg}
	defer func() {
		if err != nil {
			a.Close(ctx)
			a = nil
		}
	}()

	a.closers = append(a.closers, observability.InitOTel(ctx, log, cfg.Otel))

	dbs, err := db.Open(cfg.DB, log)
	if err != nil {
		return a, fmt.Errorf("init db: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return dbs.Close() })
	if err := dbs.AutoMigrateAll(); err != nil {
		return a, fmt.Errorf("db automigrate: %w", err)
	}
	a.DB = dbs.DB()
	a.Repos = repos.New(a.DB, log)

	store, err := qdrant.NewRecordStore(log, cfg.Qdrant)
	if err != nil {
		return a, fmt.Errorf("init qdrant: %w", err)
	}
	if err := store.Ping(ctx); err != nil {
		log.Warn("qdrant ping failed (continuing)", "url", cfg.Qdrant.URL, "error", err)
	}

	oa, err := openai.New(cfg.OpenAI, log)
	if err != nil {
		return a, fmt.Errorf("init openai: %w", err)
	}
	embedder := a.wireEmbedder(ctx, oa)
	gateway, err := wireGateway(cfg, log, oa)
	if err != nil {
		return a, err
	}

	generator := quiz.NewItemGenerator(log, gateway, cfg.Language)
	validator := quiz.NewSemanticValidator(log, embedder, cfg.Validator)
	reposet := a.Repos
	a.Pipeline = topic_build.New(log, cfg.Pipeline, topic_build.Deps{
		Store:        store,
		Engine:       curation.NewClusterEngine(log, cfg.Clustering),
		Noise:        curation.NewNoiseFilter(log, embedder, cfg.NoiseCoefficient),
		Orchestrator: quiz.NewOrchestrator(log, generator, validator, cfg.Pipeline.Tiers),
		Balancer:     quiz.NewAnswerBalancer(rand.New(rand.NewSource(cfg.BalancerSeed))),
		Metadata:     course.NewMetadataWriter(log, gateway, cfg.MetadataModel, cfg.Language, cfg.SubTopics),
		Refiner:      course.NewRefiner(log, gateway, cfg.RefineModel, cfg.RefineBatchSize),
		Embedder:     embedder,
		DB:           a.DB,
		Repos:        &reposet,
	})
	a.Runner = runner.New(log, a.Pipeline, cfg.Concurrency)
	log.Info("app wired",
		"provider", cfg.Provider,
		"topics", cfg.Topics,
		"concurrency", cfg.Concurrency,
		"db_driver", cfg.DB.Driver,
		"embed_cache", cfg.Redis.Addr != "",
	)
	return a, nil
}

// wireEmbedder puts the Redis cache in front of OpenAI when REDIS_ADDR is set.
// An unreachable Redis degrades to uncached embeddings.
func (a *App) wireEmbedder(ctx context.Context, oa *openai.Client) llm.Embedder {
	if a.Cfg.Redis.Addr == "" {
		return oa
	}
	rdb, err := redis.NewClient(ctx, a.Cfg.Redis)
	if err != nil {
		a.Log.Warn("redis unavailable, embeddings uncached", "addr", a.Cfg.Redis.Addr, "error", err)
		return oa
	}
	a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })
	return redis.NewEmbeddingCache(a.Log, rdb, oa, oa.EmbedModel(), a.Cfg.Redis)
}

func wireGateway(cfg Config, log *logger.Logger, oa *openai.Client) (llm.Gateway, error) {
	if cfg.Provider != ProviderAnthropic {
		return oa, nil
	}
	ac, err := anthropic.New(cfg.Anthropic, log)
	if err != nil {
		return nil, fmt.Errorf("init anthropic: %w", err)
	}
	return ac, nil
}

// Run processes every configured topic once.
func (a *App) Run(ctx context.Context) runner.Report {
	return a.Runner.Run(ctx, a.Cfg.Topics)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil && a.Log != nil {
			a.Log.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
	if a.Log != nil {
		a.Log.Sync()
	}
}
