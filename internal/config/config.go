package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server   ServerConfig
	DB       DBConfig
	Redis    RedisConfig
	NATS     NATSConfig
	Source   SourceConfig
	OpenAI   OpenAIConfig
	Pipeline PipelineConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	CORSAllowedOrigins []string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32

	MigrationsPath string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL string
}

// SourceConfig configures the external recording capture source. The source
// rate-limits its list endpoint, so page size and inter-page delay are tunable.
type SourceConfig struct {
	BaseURL   string
	APIKey    string
	PageSize  int
	PageDelay time.Duration
	Retries   int
}

type OpenAIConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	Timeout        time.Duration
}

// PipelineConfig holds ingestion policy knobs. The quality threshold and the
// marker TTL are operational policy rather than contract, so they live in
// config instead of constants.
type PipelineConfig struct {
	QualityThreshold    float64
	MarkerTTL           time.Duration
	PendingTTL          time.Duration
	SummaryTTL          time.Duration
	Workers             int
	SyncInterval        time.Duration
	SyncWindow          time.Duration
	DedupSimilarity     float64
	SyncRateLimitPerMin int
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:               k.String("server.host"),
			Port:               k.Int("server.port"),
			CORSAllowedOrigins: splitCSV(k.String("server.cors.origins")),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),

			MigrationsPath: k.String("db.migrations.path"),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		Source: SourceConfig{
			BaseURL:  k.String("source.base.url"),
			APIKey:   k.String("source.api.key"),
			PageSize: k.Int("source.page.size"),
			Retries:  k.Int("source.retries"),
		},
		OpenAI: OpenAIConfig{
			APIKey:         k.String("openai.api.key"),
			Model:          k.String("openai.model"),
			EmbeddingModel: k.String("openai.embedding.model"),
		},
		Pipeline: PipelineConfig{
			QualityThreshold:    k.Float64("pipeline.quality.threshold"),
			Workers:             k.Int("pipeline.workers"),
			DedupSimilarity:     k.Float64("pipeline.dedup.similarity"),
			SyncRateLimitPerMin: k.Int("pipeline.sync.ratelimit"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "recall"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "recall"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.DB.MigrationsPath == "" {
		cfg.DB.MigrationsPath = "migrations"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.Source.PageSize == 0 {
		cfg.Source.PageSize = 25
	}
	if cfg.Source.Retries == 0 {
		cfg.Source.Retries = 3
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.OpenAI.EmbeddingModel == "" {
		cfg.OpenAI.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.Pipeline.QualityThreshold == 0 {
		cfg.Pipeline.QualityThreshold = 5
	}
	if cfg.Pipeline.Workers == 0 {
		cfg.Pipeline.Workers = 4
	}
	if cfg.Pipeline.DedupSimilarity == 0 {
		cfg.Pipeline.DedupSimilarity = 0.92
	}
	if cfg.Pipeline.SyncRateLimitPerMin == 0 {
		cfg.Pipeline.SyncRateLimitPerMin = 10
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"source.page.delay", "500ms", &cfg.Source.PageDelay},
		{"openai.timeout", "60s", &cfg.OpenAI.Timeout},
		{"pipeline.marker.ttl", "720h", &cfg.Pipeline.MarkerTTL},
		{"pipeline.pending.ttl", "5m", &cfg.Pipeline.PendingTTL},
		{"pipeline.summary.ttl", "24h", &cfg.Pipeline.SummaryTTL},
		{"pipeline.sync.interval", "15m", &cfg.Pipeline.SyncInterval},
		{"pipeline.sync.window", "24h", &cfg.Pipeline.SyncWindow},
	}
	for _, d := range durations {
		raw := k.String(d.key)
		if raw == "" {
			raw = d.def
		}
		dur, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", d.key, err)
		}
		*d.dst = dur
	}

	return cfg, nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
