package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("should apply defaults when only the secret is set", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("JWT_SECRET", "0123456789abcdef")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, ":8080", cfg.HTTPAddr)
		assert.Equal(t, 5432, cfg.DBPort)
		assert.Equal(t, 5, cfg.PostReportThreshold)
		assert.Equal(t, 24*time.Hour, cfg.PostTTL)
		assert.Equal(t, 10*time.Minute, cfg.SweepInterval)
		assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	})

	t.Run("should read overrides from the environment", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("JWT_SECRET", "0123456789abcdef")
		t.Setenv("DB_HOST", "db.internal")
		t.Setenv("DB_PORT", "6543")
		t.Setenv("POST_REPORT_THRESHOLD", "3")
		t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "db.internal", cfg.DBHost)
		assert.Equal(t, 6543, cfg.DBPort)
		assert.Equal(t, 3, cfg.PostReportThreshold)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
		assert.Contains(t, cfg.ConnString(), "host=db.internal port=6543")
	})

	t.Run("should reject a missing secret", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("JWT_SECRET", "")

		_, err := Load()
		assert.Error(t, err)
	})
}
