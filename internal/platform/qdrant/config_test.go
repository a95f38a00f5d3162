package qdrant

import (
	"errors"
	"testing"
)

func TestApplyEnvOverridesDefaults(t *testing.T) {
	t.Setenv("QDRANT_URL", "http://qdrant:6333")
	t.Setenv("QDRANT_VECTOR_DIM", "1536")
	t.Setenv("QDRANT_PAGE_SIZE", "64")

	cfg := ApplyEnv(DefaultConfig())
	if cfg.URL != "http://qdrant:6333" {
		t.Fatalf("URL: want=%q got=%q", "http://qdrant:6333", cfg.URL)
	}
	if cfg.VectorDim != 1536 {
		t.Fatalf("VectorDim: want=1536 got=%d", cfg.VectorDim)
	}
	if cfg.PageSize != 64 {
		t.Fatalf("PageSize: want=64 got=%d", cfg.PageSize)
	}
	if cfg.Suffix != "_news" {
		t.Fatalf("Suffix: want=_news got=%q", cfg.Suffix)
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("ValidateConfig: %v", err)
	}
}

func TestValidateConfigErrors(t *testing.T) {
	cases := []struct {
		cfg  Config
		code ConfigErrorCode
	}{
		{Config{PageSize: 1}, ConfigErrorMissingURL},
		{Config{URL: "qdrant:6333", PageSize: 1}, ConfigErrorInvalidURL},
		{Config{URL: "http://q:6333", VectorDim: -1, PageSize: 1}, ConfigErrorInvalidVectorDim},
		{Config{URL: "http://q:6333"}, ConfigErrorInvalidPageSize},
	}
	for _, tc := range cases {
		err := ValidateConfig(tc.cfg)
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("expected *ConfigError for %+v, got=%T", tc.cfg, err)
		}
		if cfgErr.Code != tc.code {
			t.Fatalf("code: want=%q got=%q", tc.code, cfgErr.Code)
		}
	}
}
