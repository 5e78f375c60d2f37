package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Recording source
	if c.Source.BaseURL == "" {
		errs = append(errs, "SOURCE_BASE_URL is required")
	}
	if c.Source.PageSize < 1 || c.Source.PageSize > 100 {
		errs = append(errs, fmt.Sprintf("SOURCE_PAGE_SIZE must be 1–100, got %d", c.Source.PageSize))
	}

	// Pipeline policy
	if c.Pipeline.QualityThreshold < 0 || c.Pipeline.QualityThreshold > 10 {
		errs = append(errs, fmt.Sprintf("PIPELINE_QUALITY_THRESHOLD must be 0–10, got %g", c.Pipeline.QualityThreshold))
	}
	if c.Pipeline.Workers < 1 {
		errs = append(errs, fmt.Sprintf("PIPELINE_WORKERS must be at least 1, got %d", c.Pipeline.Workers))
	}
	if c.Pipeline.MarkerTTL <= 0 {
		errs = append(errs, "PIPELINE_MARKER_TTL must be positive")
	}
	if c.Pipeline.DedupSimilarity < 0 || c.Pipeline.DedupSimilarity > 1 {
		errs = append(errs, fmt.Sprintf("PIPELINE_DEDUP_SIMILARITY must be 0–1, got %g", c.Pipeline.DedupSimilarity))
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	// OpenAI key: warn only, extraction falls back to empty insights without it
	if c.OpenAI.APIKey == "" {
		slog.Warn("OPENAI_API_KEY is empty — extraction will fail and recordings will be marked processed without memories")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
