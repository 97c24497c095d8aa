package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 180*time.Second, cfg.Timeout)
	assert.Equal(t, 1, cfg.Concurrency)
	assert.Equal(t, 2, cfg.Retries)
	assert.True(t, cfg.PersistSummary)
	assert.False(t, cfg.RunDir)
}

func TestLoad_LayersFileThenEnv(t *testing.T) {
	// --- Arrange ---
	path := filepath.Join(t.TempDir(), "promptgrid.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
endpoint: http://gpu-box:7860
concurrency: 3
timeout: 90s
fail_fast: true
mirror:
  enabled: true
  endpoint: minio:9000
  access_key: key
  secret_key: secret
  bucket: renders
`), 0o600))
	env := lookupFrom(map[string]string{
		"PROMPTGRID_CONCURRENCY":  "4",
		"PROMPTGRID_MIN_INTERVAL": "250ms",
		"PROMPTGRID_VAR_width":    "1024",
	})

	// --- Act ---
	cfg, err := Load(path, env)

	// --- Assert ---
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://gpu-box:7860", cfg.Endpoint)
	assert.Equal(t, 4, cfg.Concurrency, "env beats file")
	assert.Equal(t, 90*time.Second, cfg.Timeout)
	assert.Equal(t, 250*time.Millisecond, cfg.MinInterval)
	assert.True(t, cfg.FailFast)
	assert.Equal(t, 2, cfg.Retries, "default kept")
	assert.Equal(t, "renders", cfg.Mirror.Bucket)
	assert.Equal(t, "us-east-1", cfg.Mirror.Region)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("concurency: 2\n"), 0o600))

	testCases := []struct {
		name    string
		path    string
		env     map[string]string
		wantErr string
	}{
		{name: "missing explicit file", path: filepath.Join(dir, "nope.yaml"), wantErr: "failed to read config file"},
		{name: "unknown key", path: unknown, wantErr: "field concurency not found"},
		{name: "bad env duration", env: map[string]string{"PROMPTGRID_TIMEOUT": "soon"}, wantErr: "parse PROMPTGRID_TIMEOUT"},
		{name: "bad env bool", env: map[string]string{"PROMPTGRID_FAIL_FAST": "maybe"}, wantErr: "parse PROMPTGRID_FAIL_FAST"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(tc.path, lookupFrom(tc.env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	// --- Arrange ---
	cfg := Default()
	cfg.Endpoint = "not a url"
	cfg.Concurrency = 0
	cfg.LogLevel = "loud"
	cfg.BackoffMax = time.Millisecond
	cfg.Mirror.Enabled = true

	// --- Act ---
	err := cfg.Validate()

	// --- Assert ---
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "endpoint: must be a URL")
	assert.Contains(t, msg, "concurrency: must be at least 1")
	assert.Contains(t, msg, `log_level: must be one of [debug info warn error], got "loud"`)
	assert.Contains(t, msg, "backoff_max: must not be less than BackoffInitial")
	assert.Contains(t, msg, "mirror.bucket: is required")
}
