package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdirForTest(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, time.Hour, cfg.Rollover.Interval)
	assert.Empty(t, cfg.School.DefaultSlots)
	assert.Equal(t, "./exports", cfg.Export.Dir)
	assert.Equal(t, 15*time.Minute, cfg.Export.URLTTL)
	assert.Equal(t, cfg.JWT.Secret, cfg.Export.URLSecret)
}

func TestLoadFromEnvironment(t *testing.T) {
	chdirForTest(t, t.TempDir())
	t.Setenv("STORAGE_DRIVER", "Postgres")
	t.Setenv("DB_DRIVER", "pgx")
	t.Setenv("DEFAULT_TIME_SLOTS", "08:00-08:45, 09:00-09:45")
	t.Setenv("STATS_CACHE_TTL", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoragePostgres, cfg.Storage.Driver)
	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, []string{"08:00-08:45", "09:00-09:45"}, cfg.School.DefaultSlots)
	assert.Equal(t, 5*time.Minute, cfg.Stats.CacheTTL)
}

func TestSchoolLocationFallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, SchoolConfig{TimeZone: "Mars/Olympus"}.Location())
	assert.Equal(t, time.UTC, SchoolConfig{}.Location())
}

// chdirForTest mirrors testing.T.Chdir (Go 1.24+): it changes the working
// directory and restores it when the test finishes.
func chdirForTest(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		require.NoError(t, os.Chdir(prev))
	})
}
