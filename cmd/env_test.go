package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/copper-cli/internal/config"
	"github.com/sells-group/copper-cli/internal/model"
)

func storeOnlyConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store: config.StoreConfig{
			Driver: "sqlite",
			Path:   filepath.Join(t.TempDir(), "copper.db"),
		},
		Ingest: config.IngestConfig{
			MinPrice: 30000,
			MaxPrice: 200000,
			Timezone: "Asia/Shanghai",
		},
		Materials: model.DefaultMaterials(),
	}
}

func TestIngestEnv_Close_Nil(t *testing.T) {
	env := &ingestEnv{}
	assert.NotPanics(t, func() {
		env.Close()
	})
}

func TestInitEnv_StoreMode(t *testing.T) {
	cfg = storeOnlyConfig(t)

	env, err := initEnv(context.Background(), "store")
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Store)
	assert.NotNil(t, env.Orchestrator)
	assert.NotNil(t, env.Collector)
	assert.Equal(t, "Asia/Shanghai", env.Location.String())
	assert.Equal(t, model.StatusIdle, env.Orchestrator.Status())
	assert.Empty(t, env.Orchestrator.Snapshot().History)
}

func TestInitEnv_IngestModeRequiresKeys(t *testing.T) {
	cfg = storeOnlyConfig(t)

	env, err := initEnv(context.Background(), "ingest")
	assert.Nil(t, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
	assert.Contains(t, err.Error(), "perplexity.key is required")
}

func TestInitEnv_IngestModeWithKeys(t *testing.T) {
	cfg = storeOnlyConfig(t)
	cfg.Anthropic = config.AnthropicConfig{Key: "sk-test", HaikuModel: "haiku", SonnetModel: "sonnet"}
	cfg.Perplexity = config.PerplexityConfig{Key: "pplx-test", BaseURL: "http://127.0.0.1:1", Model: "sonar-pro"}

	env, err := initEnv(context.Background(), "ingest")
	require.NoError(t, err)
	defer env.Close()
	assert.NotNil(t, env.Orchestrator)
}

func TestInitEnv_BadDriver(t *testing.T) {
	cfg = storeOnlyConfig(t)
	cfg.Store.Driver = "mysql"

	env, err := initEnv(context.Background(), "store")
	assert.Nil(t, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be one of")
}

func TestInitEnv_BadTimezone(t *testing.T) {
	cfg = storeOnlyConfig(t)
	cfg.Ingest.Timezone = "Mars/Olympus"

	env, err := initEnv(context.Background(), "store")
	assert.Nil(t, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load timezone")
}

func TestLoadLocation_Empty(t *testing.T) {
	loc, err := loadLocation("")
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())
}

func TestFindMaterial(t *testing.T) {
	materials := []model.MaterialConfig{
		{ID: "a", Region: "上海", Active: false},
		{ID: "b", Region: "广东", Active: true},
	}

	m, err := findMaterial(materials, "")
	require.NoError(t, err)
	assert.Equal(t, "b", m.ID)

	m, err = findMaterial(materials, "a")
	require.NoError(t, err)
	assert.Equal(t, "上海", m.Region)

	_, err = findMaterial(materials, "zzz")
	require.Error(t, err)

	_, err = findMaterial(nil, "")
	require.Error(t, err)
}
