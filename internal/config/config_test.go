package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log_level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, CacheTypeMemory, cfg.Cache.Type)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "./reports", cfg.Export.OutputDir)
	assert.Equal(t, []string{"csv", "json", "html"}, cfg.Export.Formats)
	assert.Equal(t, 20, cfg.Export.MaxWorkers)
	assert.InDelta(t, 10.0, cfg.Export.RateLimit, 0.0001)
	assert.Equal(t, 50, cfg.Export.BatchSize)
	assert.True(t, cfg.Export.Analyze)
	assert.Equal(t, "0 3 * * *", cfg.Export.Schedule)
	assert.Equal(t, -50, cfg.Analysis.MinScoreThreshold)
	assert.Equal(t, 20, cfg.Analysis.CandidateLimit)
	assert.Equal(t, 30, cfg.Analysis.TrendDays)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.BaseDelay)
	assert.InDelta(t, 2.0, cfg.Retry.Multiplier, 0.0001)
	assert.NotEmpty(t, cfg.Database.Path)
	assert.Empty(t, cfg.EnabledServices())
	assert.Error(t, cfg.RequireService())
}

func TestLoadSanitizesServices(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
radarr:
  enabled: true
  url: " http://radarr:7878/ "
  api_key: " secret "
export:
  formats: [CSV, json]
`))
	require.NoError(t, err)

	assert.Equal(t, "http://radarr:7878", cfg.Radarr.URL)
	assert.Equal(t, "secret", cfg.Radarr.APIKey)
	assert.Equal(t, []string{"csv", "json"}, cfg.Export.Formats)
	assert.Equal(t, []string{"radarr"}, cfg.EnabledServices())
	assert.NoError(t, cfg.RequireService())
	assert.Same(t, cfg.Radarr, cfg.Service("radarr"))
	assert.Nil(t, cfg.Service("lidarr"))
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ARRSCORE_SONARR_ENABLED", "true")
	t.Setenv("ARRSCORE_SONARR_URL", "http://sonarr:8989/")
	t.Setenv("ARRSCORE_SONARR_API_KEY", "abc")

	cfg, err := Load(writeConfig(t, "log_level: info\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Sonarr.Enabled)
	assert.Equal(t, "http://sonarr:8989", cfg.Sonarr.URL)
	assert.Equal(t, "abc", cfg.Sonarr.APIKey)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "enabled service without url",
			content: "radarr:\n  enabled: true\n  api_key: x\n",
			wantErr: "radarr URL is required",
		},
		{
			name:    "enabled service without api key",
			content: "sonarr:\n  enabled: true\n  url: http://sonarr\n",
			wantErr: "sonarr API key is required",
		},
		{
			name:    "invalid cache type",
			content: "cache:\n  type: disk\n",
			wantErr: "invalid cache type",
		},
		{
			name:    "redis without url",
			content: "cache:\n  type: redis\n",
			wantErr: "redis URL is required",
		},
		{
			name:    "zero workers",
			content: "export:\n  max_workers: 0\n",
			wantErr: "max_workers",
		},
		{
			name:    "unknown format",
			content: "export:\n  formats: [pdf]\n",
			wantErr: "invalid export format",
		},
		{
			name:    "short schedule",
			content: "export:\n  schedule: \"0 3 * *\"\n",
			wantErr: "5 cron fields",
		},
		{
			name:    "zero retry attempts",
			content: "retry:\n  max_attempts: 0\n",
			wantErr: "max_attempts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestURLSanitize(t *testing.T) {
	assert.Equal(t, "http://host", urlSanitize(" http://host/ "))
	assert.Equal(t, "http://host/api", urlSanitize("http://host/api"))
}
