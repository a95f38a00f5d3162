package app

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/newsquiz-backend/internal/clients/redis"
	"github.com/yungbote/newsquiz-backend/internal/data/db"
	"github.com/yungbote/newsquiz-backend/internal/domain"
	"github.com/yungbote/newsquiz-backend/internal/jobs/pipeline/topic_build"
	"github.com/yungbote/newsquiz-backend/internal/modules/course"
	"github.com/yungbote/newsquiz-backend/internal/modules/curation"
	"github.com/yungbote/newsquiz-backend/internal/modules/quiz"
	"github.com/yungbote/newsquiz-backend/internal/observability"
	"github.com/yungbote/newsquiz-backend/internal/platform/anthropic"
	"github.com/yungbote/newsquiz-backend/internal/platform/envutil"
	"github.com/yungbote/newsquiz-backend/internal/platform/openai"
	"github.com/yungbote/newsquiz-backend/internal/platform/qdrant"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

type Config struct {
	Topics           []string                 `yaml:"topics"`
	Concurrency      int                      `yaml:"concurrency"`
	Language         string                   `yaml:"language"`
	Provider         string                   `yaml:"provider"` // openai|anthropic, used for completions
	MetadataModel    string                   `yaml:"metadata_model"`
	RefineModel      string                   `yaml:"refine_model"`
	RefineBatchSize  int                      `yaml:"refine_batch_size"`
	BalancerSeed     int64                    `yaml:"balancer_seed"`
	NoiseCoefficient float64                  `yaml:"noise_coefficient"`
	SubTopics        map[string]string        `yaml:"sub_topics"`
	Clustering       curation.EngineConfig    `yaml:"clustering"`
	Validator        quiz.ValidatorConfig     `yaml:"validator"`
	Pipeline         topic_build.Config       `yaml:"pipeline"`
	OpenAI           openai.Config            `yaml:"openai"`
	Anthropic        anthropic.Config         `yaml:"anthropic"`
	Qdrant           qdrant.Config            `yaml:"qdrant"`
	Redis            redis.Config             `yaml:"redis"` // empty addr disables the embedding cache
	DB               db.Config                `yaml:"db"`
	Otel             observability.OtelConfig `yaml:"otel"`
}

// DefaultTopics are the news sections processed when nothing else is configured.
var DefaultTopics = []string{"politics", "economy", "society", "world"}

func DefaultConfig() Config {
	return Config{
		Topics:           append([]string(nil), DefaultTopics...),
		Concurrency:      2,
		Language:         "Korean",
		Provider:         ProviderOpenAI,
		RefineBatchSize:  8,
		BalancerSeed:     42,
		NoiseCoefficient: curation.DefaultNoiseCoefficient,
		SubTopics:        copySubTopics(course.DefaultSubTopics),
		Clustering:       curation.DefaultEngineConfig(),
		Validator: quiz.ValidatorConfig{
			QuestionWeight: quiz.DefaultQuestionWeight,
			AnswerWeight:   quiz.DefaultAnswerWeight,
		},
		Pipeline:  topic_build.DefaultConfig(),
		OpenAI:    openai.ConfigFromEnv(),
		Anthropic: anthropic.ConfigFromEnv(),
		Qdrant:    qdrant.DefaultConfig(),
		Redis:     redis.Config{DB: 0, Prefix: "newsquiz:embed:"},
		DB:        db.Config{Driver: "sqlite"},
		Otel:      observability.OtelConfig{ServiceName: "newsquiz", SampleRatio: 0.1},
	}
}

// LoadConfig layers defaults, the YAML file at path (optional), then environment
// overrides, and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decodeYAML(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg = ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(raw []byte, cfg *Config) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

// ApplyEnv overlays environment variables. Secrets only ever come from here.
func ApplyEnv(cfg Config) Config {
	cfg.Topics = envutil.List("PIPELINE_TOPICS", cfg.Topics)
	cfg.Concurrency = envutil.Int("PIPELINE_CONCURRENCY", cfg.Concurrency)
	cfg.Language = envutil.String("QUIZ_LANGUAGE", cfg.Language)
	cfg.Provider = strings.ToLower(envutil.String("LLM_PROVIDER", cfg.Provider))
	cfg.MetadataModel = envutil.String("COURSE_METADATA_MODEL", cfg.MetadataModel)
	cfg.RefineModel = envutil.String("COURSE_REFINE_MODEL", cfg.RefineModel)
	cfg.RefineBatchSize = envutil.Int("COURSE_REFINE_BATCH_SIZE", cfg.RefineBatchSize)
	cfg.BalancerSeed = int64(envutil.Int("QUIZ_BALANCER_SEED", int(cfg.BalancerSeed)))
	cfg.NoiseCoefficient = envutil.Float("NOISE_COEFFICIENT", cfg.NoiseCoefficient)

	cfg.Clustering.Seed = int64(envutil.Int("CLUSTER_SEED", int(cfg.Clustering.Seed)))
	cfg.Clustering.NInit = envutil.Int("CLUSTER_N_INIT", cfg.Clustering.NInit)
	cfg.Clustering.MaxIter = envutil.Int("CLUSTER_MAX_ITER", cfg.Clustering.MaxIter)
	cfg.Clustering.MinFactor = envutil.Int("CLUSTER_MIN_FACTOR", cfg.Clustering.MinFactor)

	cfg.Validator.QuestionWeight = envutil.Float("VALIDATOR_QUESTION_WEIGHT", cfg.Validator.QuestionWeight)
	cfg.Validator.AnswerWeight = envutil.Float("VALIDATOR_ANSWER_WEIGHT", cfg.Validator.AnswerWeight)

	cfg.Pipeline.K = envutil.Int("PIPELINE_K", cfg.Pipeline.K)
	cfg.Pipeline.RecordLimit = envutil.Int("PIPELINE_RECORD_LIMIT", cfg.Pipeline.RecordLimit)
	cfg.Pipeline.NoiseBaseThreshold = envutil.Float("NOISE_BASE_THRESHOLD", cfg.Pipeline.NoiseBaseThreshold)
	cfg.Pipeline.MaxCourseSize = envutil.Int("MAX_COURSE_SIZE", cfg.Pipeline.MaxCourseSize)
	cfg.Pipeline.Publishers = envutil.List("PIPELINE_PUBLISHERS", cfg.Pipeline.Publishers)

	cfg.OpenAI.APIKey = envutil.String("OPENAI_API_KEY", cfg.OpenAI.APIKey)
	cfg.Anthropic.APIKey = envutil.String("ANTHROPIC_API_KEY", cfg.Anthropic.APIKey)
	cfg.Qdrant = qdrant.ApplyEnv(cfg.Qdrant)
	cfg.Redis = redis.ApplyEnv(cfg.Redis)
	cfg.DB.Driver = envutil.String("DB_DRIVER", cfg.DB.Driver)
	cfg.DB.DSN = envutil.String("DB_DSN", cfg.DB.DSN)
	cfg.Otel = observability.ApplyEnv(cfg.Otel)
	return cfg
}

func (c Config) Validate() error {
	var errs []error
	topics := 0
	for _, t := range c.Topics {
		if strings.TrimSpace(t) != "" {
			topics++
		}
	}
	if topics == 0 {
		errs = append(errs, errors.New("at least one topic is required"))
	}
	if c.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("concurrency must be positive, got %d", c.Concurrency))
	}
	switch c.Provider {
	case ProviderOpenAI:
	case ProviderAnthropic:
		if strings.TrimSpace(c.Anthropic.APIKey) == "" {
			errs = append(errs, errors.New("ANTHROPIC_API_KEY is required for provider anthropic"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.Provider))
	}
	// Embeddings always go through OpenAI.
	if strings.TrimSpace(c.OpenAI.APIKey) == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.Pipeline.K <= 0 {
		errs = append(errs, fmt.Errorf("k must be positive, got %d", c.Pipeline.K))
	}
	if c.Pipeline.MaxCourseSize < curation.MinClusterFloor {
		errs = append(errs, fmt.Errorf("max course size must be at least %d, got %d", curation.MinClusterFloor, c.Pipeline.MaxCourseSize))
	}
	if c.NoiseCoefficient < 0 {
		errs = append(errs, fmt.Errorf("noise coefficient must be non-negative, got %v", c.NoiseCoefficient))
	}
	if c.Validator.QuestionWeight < 0 || c.Validator.AnswerWeight < 0 {
		errs = append(errs, errors.New("validator weights must be non-negative"))
	}
	for i, spec := range c.Pipeline.Tiers {
		if err := validateTier(spec); err != nil {
			errs = append(errs, fmt.Errorf("tiers[%d]: %w", i, err))
		}
	}
	if err := qdrant.ValidateConfig(c.Qdrant); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(strings.TrimSpace(c.DB.Driver)) {
	case "", "sqlite", "postgres", "postgresql":
	default:
		errs = append(errs, fmt.Errorf("unsupported db driver %q", c.DB.Driver))
	}
	return errors.Join(errs...)
}

func validateTier(spec quiz.TierSpec) error {
	if !spec.Kind.Valid() {
		return fmt.Errorf("unknown content type %q", spec.Kind)
	}
	if !spec.Kind.Graded() && spec.Validate != nil && *spec.Validate {
		return fmt.Errorf("content type %s has no answer key and cannot be validated", spec.Kind)
	}
	switch spec.Tier {
	case domain.TierBasic, domain.TierInference:
	default:
		return fmt.Errorf("unknown tier %q", spec.Tier)
	}
	if spec.Target < 0 {
		return fmt.Errorf("target must be non-negative, got %d", spec.Target)
	}
	if spec.QuestionThreshold < -1 || spec.QuestionThreshold > 1 || spec.AnswerThreshold < -1 || spec.AnswerThreshold > 1 {
		return errors.New("thresholds must lie in [-1, 1]")
	}
	return nil
}

func copySubTopics(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
