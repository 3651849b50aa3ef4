package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/client-analyzer/internal/config"
	"github.com/sells-group/client-analyzer/internal/model"
)

func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Store:    config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "cli.db"), ConnectAttempts: 1},
		Server:   config.ServerConfig{Port: 5000, MaxUploadBytes: 16 << 20},
		Pipeline: config.PipelineConfig{Workers: 2},
		Log:      config.LogConfig{Level: "info", Format: "json"},
	}
}

func TestInitStore_UnknownDriver(t *testing.T) {
	c := testConfig(t)
	c.Store.Driver = "mysql"
	withConfig(t, c)

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitEnv_SQLite(t *testing.T) {
	withConfig(t, testConfig(t))
	ctx := context.Background()

	env, err := initEnv(ctx, "cli")
	require.NoError(t, err)
	defer env.Close()

	assert.Nil(t, env.Cache)
	assert.Nil(t, env.Metrics)

	csv := "name,phone,business_category,location,rating,review_count,email,website\n" +
		"Toko Maju,,Retail,Bandung,4.5,120,,\n"
	res, err := env.Pipeline.Ingest(ctx, strings.NewReader(csv), "one.csv")
	require.NoError(t, err)
	_, err = env.Pipeline.Process(ctx, res.Upload.ID)
	require.NoError(t, err)

	set, err := env.Query.GetResults(ctx, res.Upload.ID, "")
	require.NoError(t, err)
	require.Len(t, set.Results, 1)
	assert.Equal(t, model.UploadStatusCompleted, set.Upload.Status)
}

func TestInitEnv_LoadedDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	c, err := config.Load()
	require.NoError(t, err)
	c.Store.DatabaseURL = filepath.Join(t.TempDir(), "defaults.db")
	withConfig(t, c)

	env, err := initEnv(context.Background(), "serve")
	require.NoError(t, err)
	defer env.Close()

	res, err := env.Pipeline.ScoreClient(context.Background(), model.ClientRecord{
		Name:             "Toko Maju",
		BusinessCategory: model.CategoryRetail,
		Location:         "Jakarta",
		Rating:           model.Float64Ptr(4.5),
		ReviewCount:      model.IntPtr(120),
	})
	require.NoError(t, err)
	assert.Greater(t, res.Analysis.PotentialScore, 0)
	assert.Equal(t, 75, env.Engine.Config().HighThreshold)
}

func TestInitEnv_ServeHasMetrics(t *testing.T) {
	withConfig(t, testConfig(t))

	env, err := initEnv(context.Background(), "serve")
	require.NoError(t, err)
	defer env.Close()
	assert.NotNil(t, env.Metrics)
}

func TestInitEnv_InvalidConfig(t *testing.T) {
	c := testConfig(t)
	c.Pipeline.Workers = 0
	withConfig(t, c)

	_, err := initEnv(context.Background(), "cli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.workers")
}

func TestInitEnv_InvalidScoringPolicy(t *testing.T) {
	c := testConfig(t)
	c.Scoring.HighThreshold = 40
	c.Scoring.MediumThreshold = 60
	withConfig(t, c)

	_, err := initEnv(context.Background(), "cli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "thresholds")
}

func TestInitEnv_UnreachableCacheIsOptional(t *testing.T) {
	c := testConfig(t)
	c.Cache.RedisURL = "redis://127.0.0.1:1/0"
	withConfig(t, c)

	env, err := initEnv(context.Background(), "cli")
	require.NoError(t, err)
	defer env.Close()
	assert.Nil(t, env.Cache)
}
