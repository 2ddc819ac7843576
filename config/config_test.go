package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "fixed")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 4*time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, int64(5*1024*1024), cfg.MaxUploadBytes)
	assert.Equal(t, 30*time.Second, cfg.AnalysisTimeout)
	assert.True(t, cfg.UseChurchDateIndex)
	assert.True(t, cfg.CookieSecure)
	assert.Nil(t, cfg.AllowedOrigins)
	assert.Equal(t, "fixed", cfg.JWTSecret)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ACCESS_TOKEN_TTL", "90m")
	t.Setenv("USE_CHURCH_DATE_INDEX", "false")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.org, ,https://b.example.org")
	t.Setenv("EXPORT_LIMIT", "250")
	t.Setenv("ANALYSIS_RATE_PER_SEC", "2.5")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 90*time.Minute, cfg.AccessTokenTTL)
	assert.False(t, cfg.UseChurchDateIndex)
	assert.Equal(t, []string{"https://a.example.org", "https://b.example.org"}, cfg.AllowedOrigins)
	assert.Equal(t, 250, cfg.ExportLimit)
	assert.Equal(t, 2.5, cfg.AnalysisRatePerSec)
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL", "four hours")
	t.Setenv("EXPORT_LIMIT", "many")
	t.Setenv("JWT_SECRET", "")

	cfg := Load()

	assert.Equal(t, 4*time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 10000, cfg.ExportLimit)
	assert.Len(t, cfg.JWTSecret, 64)
}
