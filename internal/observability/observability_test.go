package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf, ServiceName: "test"})

	ctx := ContextWithRunID(context.Background(), "run-123")
	logger.WithContext(ctx).WithComponent("tracker").Info().Str("fingerprint", "abc").Msg("state updated")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "test", line["service"])
	assert.Equal(t, "run-123", line["run_id"])
	assert.Equal(t, "tracker", line["component"])
	assert.Equal(t, "abc", line["fingerprint"])
	assert.Equal(t, "state updated", line["message"])
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "json", Output: &buf})

	logger.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewLogger_DebugFlagOverridesLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "error", Format: "json", Output: &buf, Debug: true})

	logger.Debug().Msg("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestNop_DoesNotPanic(t *testing.T) {
	logger := Nop()
	logger.Error().Err(assert.AnError).Str("k", "v").Msg("dropped")
}

func TestRunIDFromContext_Missing(t *testing.T) {
	assert.Empty(t, RunIDFromContext(context.Background()))
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.StageOutcome("extract", "ran")
	m.StageOutcome("extract", "ran")
	m.CacheEvent("openai", "hit")
	m.StorageFallback("upload")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.stageOutcomes.WithLabelValues("extract", "ran")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheEvents.WithLabelValues("openai", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storageFallbacks.WithLabelValues("upload")))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.StageOutcome("extract", "ran")
	m.CacheEvent("openai", "miss")
	m.LLMAttempt("ok")
	m.ObserveRun(1)
}
