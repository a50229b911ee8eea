package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinTDCT/CineSync/internal/sources"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/cinesync")

	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 15*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 3, cfg.JobMaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.JobBackoffBase)
	assert.Equal(t, "@every 10m", cfg.DiscoverSchedule)
	assert.Equal(t, "sql", cfg.SearchNotifier)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.PeopleEnrichment)
	assert.Len(t, cfg.Sources, 2)
	assert.Empty(t, cfg.SourceConfigs())
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := LoadFrom(t.TempDir())
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestLoadValidates(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/cinesync")

	for key, value := range map[string]string{
		"SEARCH_NOTIFIER":  "kafka",
		"JOB_MAX_ATTEMPTS": "0",
		"HTTP_TIMEOUT":     "0s",
	} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := LoadFrom(t.TempDir())
			assert.ErrorContains(t, err, key)
		})
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	dir := t.TempDir()
	env := "DATABASE_URL=postgres://db/cinesync\n" +
		"OPHIM_BASE_URL=https://ophim1.com\n" +
		"OPHIM_LIST_PATH=/danh-sach/phim-moi-cap-nhat?page={page}\n" +
		"OPHIM_DETAIL_PATH=/phim/{slug}\n" +
		"KKPHIM_BASE_URL=https://phimapi.com\n" +
		"KKPHIM_LIST_PATH=/danh-sach/phim-moi-cap-nhat?page={page}\n" +
		"PEOPLE_ENRICHMENT=true\n" +
		"SEARCH_NOTIFIER=Redis\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600))

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, "postgres://db/cinesync", cfg.DatabaseURL)
	assert.True(t, cfg.PeopleEnrichment)
	assert.Equal(t, "redis", cfg.SearchNotifier)

	// kkphim has no detail path, so only ophim is usable.
	assert.Equal(t, []sources.Config{{
		Code:       "ophim",
		BaseURL:    "https://ophim1.com",
		ListPath:   "/danh-sach/phim-moi-cap-nhat?page={page}",
		DetailPath: "/phim/{slug}",
		PeoplePath: sources.DefaultPeoplePath,
	}}, cfg.SourceConfigs())
}

func TestEnvironmentOverridesDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DATABASE_URL=from-file\nPORT=9000\n"), 0o600))
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PORT", "9100")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.DatabaseURL)
	assert.Equal(t, 9100, cfg.Port)
}
