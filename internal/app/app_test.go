package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/content-pipeline/internal/config"
	"github.com/spherical/content-pipeline/internal/domain"
	"github.com/spherical/content-pipeline/internal/state"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Storage.LocalRoot = filepath.Join(dir, "data")
	cfg.History.Path = filepath.Join(dir, "history.db")
	cfg.Cache.Driver = config.CacheDriverStorage
	cfg.LLM.APIKey = ""
	return cfg
}

func TestBuild(t *testing.T) {
	ctx := context.Background()
	a, err := Build(ctx, testConfig(t), nil, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Orchestrator)
	assert.NotNil(t, a.History)
	assert.Equal(t, domain.ProcessingNone, a.Tracker.GetState().ProcessingStage)
}

func TestBuild_HistoryDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.History.Enabled = false

	a, err := Build(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.History)
}

func TestBuild_UnknownCacheDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Driver = "memcached"

	_, err := Build(context.Background(), cfg, nil, nil)
	assert.Error(t, err)
}

func TestBuild_CacheFollowsTrackerFingerprint(t *testing.T) {
	ctx := context.Background()
	a, err := Build(ctx, testConfig(t), nil, nil)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Tracker.UpdateState(ctx, state.Update{Fingerprint: state.Ptr("f1")}))
	require.NoError(t, a.LLMCache.Set(ctx, "k", domain.StructuredContent{Name: "Ada"}))
	require.Equal(t, 1, a.LLMCache.Len())

	require.NoError(t, a.Tracker.UpdateState(ctx, state.Update{IsExtracted: state.Ptr(true)}))
	assert.Equal(t, 1, a.LLMCache.Len())

	require.NoError(t, a.Tracker.UpdateState(ctx, state.Update{Fingerprint: state.Ptr("f2")}))
	assert.Equal(t, 0, a.LLMCache.Len())
}
