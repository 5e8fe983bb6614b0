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
	assert.Equal(t, "prospect.db", cfg.Store.Path)
	assert.Equal(t, "memory", cfg.Retrieval.Backend)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, "ollama", cfg.Inference.Provider)
	assert.True(t, cfg.Inference.RequireLLM)
	assert.True(t, cfg.Inference.RequireEmbeddings)
	assert.Equal(t, "http://127.0.0.1:11434", cfg.Ollama.BaseURL)
	assert.Equal(t, "qwen3:0.6b", cfg.Ollama.Model)
	assert.Equal(t, "nomic-embed-text", cfg.Ollama.EmbedModel)
	assert.True(t, cfg.Search.Online)
	assert.Equal(t, "https://s.jina.ai", cfg.Jina.SearchBaseURL)
	assert.Equal(t, 168, cfg.Pipeline.FactTTLHours)
	assert.Equal(t, 2, cfg.Pipeline.HitsPerQuery)
	assert.InDelta(t, 0.5, cfg.Pipeline.MinFitScore, 0.001)
	assert.Equal(t, []string{"SaaS", "FinTech", "E-commerce", "Healthcare Tech"}, cfg.Pipeline.HighValueIndustries)
	assert.InDelta(t, 0.3, cfg.Pipeline.Weights.IndustryHigh, 0.001)
	assert.InDelta(t, 0.05, cfg.Pipeline.Weights.SizeSmall, 0.001)
	assert.Equal(t, 7, cfg.Compliance.MinDaysBetweenTouches)
	assert.Equal(t, []int{2, 3, 5}, cfg.Outreach.SlotDays)
	assert.Equal(t, 14, cfg.Outreach.SlotHour)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/prospect
retrieval:
  backend: chromem
  chromem_path: ./vectors
log:
  level: debug
  format: console
pipeline:
  min_fit_score: 0.4
  weights:
    industry_high: 0.5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "chromem", cfg.Retrieval.Backend)
	assert.Equal(t, "./vectors", cfg.Retrieval.ChromemPath)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.InDelta(t, 0.4, cfg.Pipeline.MinFitScore, 0.001)
	assert.InDelta(t, 0.5, cfg.Pipeline.Weights.IndustryHigh, 0.001)
	// Defaults still apply for unset values
	assert.InDelta(t, 0.1, cfg.Pipeline.Weights.IndustryOther, 0.001)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log:\n  level: debug\n"), 0o644))

	t.Setenv("PROSPECT_LOG_LEVEL", "warn")
	t.Setenv("PROSPECT_SERVER_PORT", "3000")
	t.Setenv("PROSPECT_SEARCH_ONLINE", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.False(t, cfg.Search.Online)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	chdirTemp(t)
	path := filepath.Join(t.TempDir(), "prospect.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  path: other.db\nserver:\n  port: 9090\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "other.db", cfg.Store.Path)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
}

func TestLoadFile_Missing(t *testing.T) {
	chdirTemp(t)
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "invalid", Format: "json"}))
}

// validDefaults returns a Config that passes validation for every mode.
func validDefaults(t *testing.T) *Config {
	t.Helper()
	chdirTemp(t)
	cfg, err := Load()
	require.NoError(t, err)
	cfg.Search.Online = false
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validDefaults(t)
	for _, mode := range []string{"run", "serve", "seed", "admin"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidate_UnknownMode(t *testing.T) {
	cfg := validDefaults(t)
	err := cfg.Validate("unknown")
	assert.ErrorContains(t, err, "unknown mode")
}

func TestValidate_Store(t *testing.T) {
	cfg := validDefaults(t)
	cfg.Store.Driver = "postgres"
	assert.ErrorContains(t, cfg.Validate("admin"), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/p"
	assert.NoError(t, cfg.Validate("admin"))

	cfg.Store.Driver = "mysql"
	assert.ErrorContains(t, cfg.Validate("admin"), "store.driver must be")
}

func TestValidate_RetrievalFallsBackToStoreURL(t *testing.T) {
	cfg := validDefaults(t)
	cfg.Retrieval.Backend = "postgres"
	assert.ErrorContains(t, cfg.Validate("seed"), "retrieval.database_url")

	cfg.Store.DatabaseURL = "postgres://localhost/main"
	assert.NoError(t, cfg.Validate("seed"))
	assert.Equal(t, "postgres://localhost/main", cfg.RetrievalURL())

	cfg.Retrieval.DatabaseURL = "postgres://localhost/vectors"
	assert.Equal(t, "postgres://localhost/vectors", cfg.RetrievalURL())
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validDefaults(t)
	cfg.Search.Online = true
	cfg.Inference.Provider = "anthropic"
	cfg.Seed.Source = "notion"

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
	assert.Contains(t, err.Error(), "jina.key is required")
	assert.Contains(t, err.Error(), "notion.token is required")
	assert.Contains(t, err.Error(), "notion.company_db is required")
}

func TestValidate_Pipeline(t *testing.T) {
	cfg := validDefaults(t)

	cfg.Pipeline.MinFitScore = 1.5
	assert.ErrorContains(t, cfg.Validate("run"), "min_fit_score")
	cfg.Pipeline.MinFitScore = 0.5

	cfg.Pipeline.Weights.PainEach = -0.1
	assert.ErrorContains(t, cfg.Validate("run"), "weights values must be >= 0")
	cfg.Pipeline.Weights.PainEach = 0.1

	cfg.Compliance.MinDaysBetweenTouches = -1
	assert.ErrorContains(t, cfg.Validate("run"), "min_days_between_touches")
	cfg.Compliance.MinDaysBetweenTouches = 0

	cfg.Salesforce.Enabled = true
	assert.ErrorContains(t, cfg.Validate("run"), "salesforce.client_id")

	cfg.Salesforce.Enabled = false
	assert.NoError(t, cfg.Validate("run"))
}

func TestValidate_ServePort(t *testing.T) {
	cfg := validDefaults(t)
	cfg.Server.Port = 0
	assert.ErrorContains(t, cfg.Validate("serve"), "server.port must be > 0")
	assert.NoError(t, cfg.Validate("run"))
}
