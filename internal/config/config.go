package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JustinTDCT/CineSync/internal/logging"
	"github.com/JustinTDCT/CineSync/internal/sources"
)

// SourceCodes lists the catalogs the pipeline knows how to read.
var SourceCodes = []string{"ophim", "kkphim"}

// Source holds the per-catalog endpoint settings.
type Source struct {
	Code       string
	BaseURL    string
	ListPath   string
	DetailPath string
	PeoplePath string
}

// Configured reports whether base URL, list path and detail path are set.
func (s Source) Configured() bool {
	return s.BaseURL != "" && s.ListPath != "" && s.DetailPath != ""
}

type Config struct {
	// Storage
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Server
	Port int

	// Logging
	Log logging.Options

	// Crawling
	HTTPTimeout         time.Duration
	DiscoverConcurrency int
	DetailConcurrency   int
	SyncConcurrency     int
	JobMaxAttempts      int
	JobBackoffBase      time.Duration
	DiscoverSchedule    string
	PeopleEnrichment    bool
	Sources             []Source

	// Search
	SearchNotifier string
	SearchRedisKey string
}

// Load reads configuration from the environment and an optional .env file
// in the working directory.
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom is Load with the .env lookup rooted at dir.
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(dir)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read .env: %w", err)
		}
	}

	v.SetDefault("PORT", 8080)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("LOG_MAX_SIZE_MB", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 5)
	v.SetDefault("LOG_MAX_AGE_DAYS", 28)
	v.SetDefault("HTTP_TIMEOUT", "15s")
	v.SetDefault("DISCOVER_CONCURRENCY", 2)
	v.SetDefault("DETAIL_CONCURRENCY", 5)
	v.SetDefault("SYNC_CONCURRENCY", 5)
	v.SetDefault("JOB_MAX_ATTEMPTS", 3)
	v.SetDefault("JOB_BACKOFF_BASE", "5s")
	v.SetDefault("DISCOVER_SCHEDULE", "@every 10m")
	v.SetDefault("SEARCH_NOTIFIER", "sql")
	v.SetDefault("SEARCH_REDIS_KEY", "cinesync:search:movies")
	v.SetDefault("PEOPLE_ENRICHMENT", false)

	cfg := &Config{
		DatabaseURL:   v.GetString("DATABASE_URL"),
		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),

		Port: v.GetInt("PORT"),

		Log: logging.Options{
			Level:      v.GetString("LOG_LEVEL"),
			Format:     v.GetString("LOG_FORMAT"),
			File:       v.GetString("LOG_FILE"),
			MaxSizeMB:  v.GetInt("LOG_MAX_SIZE_MB"),
			MaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
			MaxAgeDays: v.GetInt("LOG_MAX_AGE_DAYS"),
		},

		HTTPTimeout:         v.GetDuration("HTTP_TIMEOUT"),
		DiscoverConcurrency: v.GetInt("DISCOVER_CONCURRENCY"),
		DetailConcurrency:   v.GetInt("DETAIL_CONCURRENCY"),
		SyncConcurrency:     v.GetInt("SYNC_CONCURRENCY"),
		JobMaxAttempts:      v.GetInt("JOB_MAX_ATTEMPTS"),
		JobBackoffBase:      v.GetDuration("JOB_BACKOFF_BASE"),
		DiscoverSchedule:    v.GetString("DISCOVER_SCHEDULE"),
		PeopleEnrichment:    v.GetBool("PEOPLE_ENRICHMENT"),

		SearchNotifier: strings.ToLower(v.GetString("SEARCH_NOTIFIER")),
		SearchRedisKey: v.GetString("SEARCH_REDIS_KEY"),
	}
	for _, code := range SourceCodes {
		prefix := strings.ToUpper(code) + "_"
		cfg.Sources = append(cfg.Sources, Source{
			Code:       code,
			BaseURL:    strings.TrimSpace(v.GetString(prefix + "BASE_URL")),
			ListPath:   strings.TrimSpace(v.GetString(prefix + "LIST_PATH")),
			DetailPath: strings.TrimSpace(v.GetString(prefix + "DETAIL_PATH")),
			PeoplePath: strings.TrimSpace(v.GetString(prefix + "PEOPLE_PATH")),
		})
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	if c.JobMaxAttempts < 1 {
		return fmt.Errorf("JOB_MAX_ATTEMPTS must be at least 1")
	}
	if c.JobBackoffBase <= 0 {
		return fmt.Errorf("JOB_BACKOFF_BASE must be positive")
	}
	switch c.SearchNotifier {
	case "sql", "redis", "none":
	default:
		return fmt.Errorf("SEARCH_NOTIFIER: unsupported value %q", c.SearchNotifier)
	}
	return nil
}

// SourceConfigs returns crawler settings for every fully configured source.
// An unset people path falls back to the shared credits endpoint.
func (c *Config) SourceConfigs() []sources.Config {
	var out []sources.Config
	for _, s := range c.Sources {
		if !s.Configured() {
			continue
		}
		people := s.PeoplePath
		if people == "" {
			people = sources.DefaultPeoplePath
		}
		out = append(out, sources.Config{
			Code:       s.Code,
			BaseURL:    s.BaseURL,
			ListPath:   s.ListPath,
			DetailPath: s.DetailPath,
			PeoplePath: people,
		})
	}
	return out
}
