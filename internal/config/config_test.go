package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/copper-cli/internal/model"
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
	assert.Equal(t, "copper.db", cfg.Store.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Ingest.MaxAttempts)
	assert.Equal(t, 5, cfg.Ingest.RetryDelaySecs)
	assert.Equal(t, 5, cfg.Ingest.CooldownSecs)
	assert.Equal(t, 52, cfg.Ingest.BackfillWeeks)
	assert.InDelta(t, 30000, cfg.Ingest.MinPrice, 0.001)
	assert.Equal(t, "Asia/Shanghai", cfg.Ingest.Timezone)
	assert.True(t, cfg.Ingest.SkipExisting)
	assert.Equal(t, "sonar-pro", cfg.Perplexity.Model)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.HaikuModel)
	assert.Equal(t, "CRON_TZ=Asia/Shanghai 0 30 10 * * *", cfg.Schedule.Cron)
	assert.Equal(t, 4, cfg.Monitoring.StaleAfterDays)
	assert.Equal(t, model.DefaultMaterials(), cfg.Materials)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: csv
  path: data/copper.csv
log:
  level: debug
  format: console
ingest:
  max_attempts: 5
materials:
  - id: sh
    name: 电解铜
    region: 上海
    spec: "#1电解铜"
    unit: 元/吨
    active: true
  - id: gd
    name: 电解铜
    region: 广东
    spec: "#1电解铜"
    active: false
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "csv", cfg.Store.Driver)
	assert.Equal(t, "data/copper.csv", cfg.Store.Path)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 5, cfg.Ingest.MaxAttempts)
	// Defaults still apply for unset values
	assert.Equal(t, 5, cfg.Ingest.CooldownSecs)
	require.Len(t, cfg.Materials, 2)
	assert.Equal(t, "上海", cfg.Materials[0].Region)
	assert.True(t, cfg.Materials[0].Active)
	assert.False(t, cfg.Materials[1].Active)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("COPPER_STORE_DRIVER", "postgres")
	t.Setenv("COPPER_LOG_LEVEL", "warn")
	t.Setenv("COPPER_INGEST_MAX_ATTEMPTS", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 7, cfg.Ingest.MaxAttempts)
}

func TestLoadMaterialsFile(t *testing.T) {
	dir := chdirTemp(t)

	materials := `
materials:
  - name: 电解铜
    region: 上海
    spec: "#1电解铜"
    active: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "materials.yaml"), []byte(materials), 0o644))
	t.Setenv("COPPER_MATERIALS_FILE", "materials.yaml")

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.Materials, 1)
	assert.Equal(t, "上海/电解铜", cfg.Materials[0].ID)
}

func TestLoadMaterials_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadMaterials(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	noRegion := filepath.Join(dir, "noregion.yaml")
	require.NoError(t, os.WriteFile(noRegion, []byte("materials:\n  - name: 电解铜\n"), 0o644))
	_, err = LoadMaterials(noRegion)
	assert.ErrorContains(t, err, "needs name and region")

	dup := filepath.Join(dir, "dup.yaml")
	require.NoError(t, os.WriteFile(dup, []byte("materials:\n  - {id: a, name: x, region: y}\n  - {id: a, name: x, region: z}\n"), 0o644))
	_, err = LoadMaterials(dup)
	assert.ErrorContains(t, err, "duplicate material id")
}

func validDefaults() *Config {
	return &Config{
		Store:      StoreConfig{Driver: "sqlite", Path: "copper.db"},
		Anthropic:  AnthropicConfig{Key: "sk-ant"},
		Perplexity: PerplexityConfig{Key: "pplx"},
		Ingest:     IngestConfig{MinPrice: 30000, MaxPrice: 200000},
		Server:     ServerConfig{Port: 8080},
		Materials:  model.DefaultMaterials(),
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("ingest"))
	assert.NoError(t, validDefaults().Validate("serve"))

	cfg := validDefaults()
	cfg.Anthropic.Key = ""
	cfg.Perplexity.Key = ""
	err := cfg.Validate("ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
	assert.Contains(t, err.Error(), "perplexity.key is required")

	// Store-only commands do not need API keys.
	assert.NoError(t, cfg.Validate("store"))
}

func TestValidate_Store(t *testing.T) {
	cfg := validDefaults()
	cfg.Store = StoreConfig{Driver: "postgres"}
	assert.ErrorContains(t, cfg.Validate("store"), "store.database_url is required")

	cfg.Store = StoreConfig{Driver: "mongo"}
	assert.ErrorContains(t, cfg.Validate("store"), "store.driver must be one of")
}

func TestValidate_PriceBoundsAndMaterials(t *testing.T) {
	cfg := validDefaults()
	cfg.Ingest.MinPrice = 300000
	cfg.Materials = []model.MaterialConfig{{ID: "1", Active: false}}

	err := cfg.Validate("ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest.min_price must be below")
	assert.Contains(t, err.Error(), "at least one active material")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0
	assert.ErrorContains(t, cfg.Validate("serve"), "server.port")
}

func TestInitLoggerConsole(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	assert.Error(t, InitLogger(LogConfig{Level: "invalid", Format: "json"}))
}
