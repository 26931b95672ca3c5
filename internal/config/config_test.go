package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "competitor_intel.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Batch.MaxConcurrentEntities)
	assert.Equal(t, []string{"perplexity", "gemini", "anthropic"}, cfg.Search.Order)
	assert.Equal(t, "sonar-pro", cfg.Perplexity.Model)
	assert.Equal(t, "KnowledgeChunk", cfg.Weaviate.Class)
	assert.Equal(t, []string{"salesforce", "notion", "file"}, cfg.Providers.Order)
	assert.Equal(t, 60, cfg.Providers.PerMinute)
	assert.Equal(t, 2000, cfg.Discovery.InterCallDelayMs)
	assert.Equal(t, 1000, cfg.Verify.InterCallDelayMs)
	assert.Equal(t, "pairwise", cfg.Reconcile.Policy)
	assert.Equal(t, "competitor-refresh", cfg.Temporal.TaskQueue)
	assert.Equal(t, "https://login.salesforce.com", cfg.Salesforce.LoginURL)
	assert.InDelta(t, 3.0, cfg.Notion.RequestsPerSecond, 0.001)
	assert.Equal(t, 24, cfg.Monitoring.LookbackWindowHours)
	assert.Empty(t, cfg.Monitoring.WebhookURL)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/intel
log:
  level: debug
  format: console
batch:
  max_concurrent_entities: 8
discovery:
  inter_call_delay_ms: 250
reconcile:
  policy: merged
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/intel", cfg.Store.DatabaseURL)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 8, cfg.Batch.MaxConcurrentEntities)
	assert.Equal(t, 250, cfg.Discovery.InterCallDelayMs)
	assert.Equal(t, "merged", cfg.Reconcile.Policy)
	// Defaults still apply for unset values.
	assert.Equal(t, 1000, cfg.Verify.InterCallDelayMs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log:\n  level: debug\n"), 0o644))

	t.Setenv("INTEL_LOG_LEVEL", "warn")
	t.Setenv("INTEL_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("INTEL_PERPLEXITY_KEY=pplx-from-dotenv\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("INTEL_PERPLEXITY_KEY") }) //nolint:errcheck

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "pplx-from-dotenv", cfg.Perplexity.Key)
	assert.True(t, cfg.HasSearchEngine())
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func validConfig() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "intel.db"
	cfg.Batch.MaxConcurrentEntities = 3
	cfg.Server.Port = 8080
	cfg.Reconcile.Policy = "pairwise"
	cfg.Temporal.HostPort = "localhost:7233"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		command string
		wantErr []string
	}{
		{name: "discover ok", command: "discover"},
		{name: "serve ok", command: "serve"},
		{
			name:    "verify needs search engine",
			command: "verify",
			wantErr: []string{"search engine key"},
		},
		{
			name:    "verify with gemini",
			command: "verify",
			mutate:  func(c *Config) { c.Gemini.Key = "g" },
		},
		{
			name:    "postgres without url",
			command: "discover",
			mutate:  func(c *Config) { c.Store.Driver = "postgres"; c.Store.DatabaseURL = "" },
			wantErr: []string{"store.database_url is required"},
		},
		{
			name:    "unknown driver",
			command: "discover",
			mutate:  func(c *Config) { c.Store.Driver = "mysql" },
			wantErr: []string{`unknown store.driver "mysql"`},
		},
		{
			name:    "aggregates problems",
			command: "serve",
			mutate: func(c *Config) {
				c.Server.Port = 0
				c.Batch.MaxConcurrentEntities = 0
				c.Notion.Token = "ntn"
				c.Reconcile.Policy = "loudest"
			},
			wantErr: []string{
				"server.port must be > 0",
				"max_concurrent_entities must be between 1 and 20",
				"notion.competitor_db is required",
				`unknown reconcile.policy "loudest"`,
			},
		},
		{
			name:    "monitoring needs lookback",
			command: "serve",
			mutate: func(c *Config) {
				c.Monitoring.WebhookURL = "https://hooks.example/alerts"
				c.Monitoring.LookbackWindowHours = 0
			},
			wantErr: []string{"monitoring.lookback_window_hours must be > 0"},
		},
		{
			name:    "worker needs temporal",
			command: "worker",
			mutate:  func(c *Config) { c.Anthropic.Key = "a"; c.Temporal.HostPort = "" },
			wantErr: []string{"temporal.host_port is required"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate(tt.command)
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "invalid", Format: "json"}))
}
