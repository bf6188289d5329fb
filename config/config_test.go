package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Recompute.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Recompute.InitialBackoff)
	assert.Equal(t, "reports:regenerate", cfg.Publication.ReportQueue)
	assert.Len(t, cfg.Publication.ChartCategories, 5)
	assert.Equal(t, 5432, cfg.Database.Port)
}

func TestLoadFile_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"server": {"port": 9090}, "recompute": {"max_attempts": 5}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("RECOMPUTE_MAX_ATTEMPTS", "7")
	t.Setenv("CHART_CATEGORIES", "liquidity, leverage")
	t.Setenv("RECOMPUTE_MAX_BACKOFF", "3s")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 7, cfg.Recompute.MaxAttempts, "env wins over file")
	assert.Equal(t, 3*time.Second, cfg.Recompute.MaxBackoff)
	assert.Equal(t, []string{"liquidity", "leverage"}, cfg.Publication.ChartCategories)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5433, User: "fin", Password: "p@ss", Database: "ratios", SSLMode: "disable"}
	assert.Equal(t, "postgres://fin:p%40ss@db:5433/ratios?sslmode=disable", c.DSN())

	c.URL = "postgres://override"
	assert.Equal(t, "postgres://override", c.DSN())
}

func TestServerConfig_Origins(t *testing.T) {
	s := ServerConfig{AllowedOrigins: "http://a, http://b,,"}
	assert.Equal(t, []string{"http://a", "http://b"}, s.Origins())
}
