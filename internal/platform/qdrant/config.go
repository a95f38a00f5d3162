package qdrant

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/newsquiz-backend/internal/platform/envutil"
)

type Config struct {
	URL       string        `yaml:"url"`
	APIKey    string        `yaml:"-"`
	VectorDim int           `yaml:"vector_dim"` // 0 disables the dimension check
	PageSize  int           `yaml:"page_size"`  // scroll page size
	Timeout   time.Duration `yaml:"timeout"`
	Suffix    string        `yaml:"suffix"` // default collection is <topic><suffix>
}

type ConfigErrorCode string

const (
	ConfigErrorMissingURL       ConfigErrorCode = "missing_url"
	ConfigErrorInvalidURL       ConfigErrorCode = "invalid_url"
	ConfigErrorInvalidVectorDim ConfigErrorCode = "invalid_vector_dim"
	ConfigErrorInvalidPageSize  ConfigErrorCode = "invalid_page_size"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid qdrant config"
	}
	switch e.Code {
	case ConfigErrorMissingURL:
		return "QDRANT_URL is required"
	case ConfigErrorInvalidURL:
		return fmt.Sprintf("invalid QDRANT_URL=%q; expected absolute URL like http://qdrant:6333", e.Value)
	case ConfigErrorInvalidVectorDim:
		return fmt.Sprintf("invalid QDRANT_VECTOR_DIM=%q; expected non-negative integer", e.Value)
	case ConfigErrorInvalidPageSize:
		return fmt.Sprintf("invalid QDRANT_PAGE_SIZE=%q; expected positive integer", e.Value)
	default:
		return "invalid qdrant config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func DefaultConfig() Config {
	return Config{
		URL:      "http://localhost:6333",
		PageSize: 256,
		Timeout:  15 * time.Second,
		Suffix:   "_news",
	}
}

// ApplyEnv overlays QDRANT_* variables onto cfg.
func ApplyEnv(cfg Config) Config {
	cfg.URL = envutil.String("QDRANT_URL", cfg.URL)
	cfg.APIKey = envutil.String("QDRANT_API_KEY", cfg.APIKey)
	cfg.VectorDim = envutil.Int("QDRANT_VECTOR_DIM", cfg.VectorDim)
	cfg.PageSize = envutil.Int("QDRANT_PAGE_SIZE", cfg.PageSize)
	cfg.Timeout = envutil.Duration("QDRANT_TIMEOUT", cfg.Timeout)
	cfg.Suffix = envutil.String("QDRANT_COLLECTION_SUFFIX", cfg.Suffix)
	return cfg
}

func ValidateConfig(cfg Config) error {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return &ConfigError{Code: ConfigErrorMissingURL}
	}
	parsed, err := url.Parse(raw)
	if err != nil || strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
		return &ConfigError{Code: ConfigErrorInvalidURL, Value: cfg.URL, Cause: err}
	}
	if cfg.VectorDim < 0 {
		return &ConfigError{Code: ConfigErrorInvalidVectorDim, Value: strconv.Itoa(cfg.VectorDim)}
	}
	if cfg.PageSize <= 0 {
		return &ConfigError{Code: ConfigErrorInvalidPageSize, Value: strconv.Itoa(cfg.PageSize)}
	}
	return nil
}
