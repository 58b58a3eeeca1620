package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/content-pipeline/cmd/content-pipeline/ui"
	"github.com/spherical/content-pipeline/internal/history"
)

func writeConfig(t *testing.T) (cfgPath, historyPath string) {
	t.Helper()
	dir := t.TempDir()
	historyPath = filepath.Join(dir, "history.db")
	cfgPath = filepath.Join(dir, "config.yaml")
	yaml := fmt.Sprintf(`storage:
  mode: local
  local_root: %s
cache:
  driver: memory
extraction:
  engine: plain
history:
  enabled: true
  path: %s
`, filepath.Join(dir, "data"), historyPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o644))
	return cfgPath, historyPath
}

func TestRun_FailedRunReturnsErrRunFailed(t *testing.T) {
	t.Setenv("STORAGE_MODE", "")
	t.Setenv("S3_USE_LOCAL", "")
	var stdout, stderr bytes.Buffer
	ui.SetOutput(&stdout, &stderr)
	t.Cleanup(func() { ui.SetOutput(os.Stdout, os.Stderr) })

	cfgPath, historyPath := writeConfig(t)
	missing := filepath.Join(t.TempDir(), "missing.pdf")

	rootCmd.SetArgs([]string{"run", missing, "--config", cfgPath, "--no-color"})
	err := rootCmd.ExecuteContext(context.Background())
	require.ErrorIs(t, err, ErrRunFailed)
	assert.Contains(t, stderr.String(), "fingerprint stage failed")

	// The app was closed before returning, so the run log is complete and
	// can be reopened.
	store, err := history.Open(historyPath)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, history.StatusFailed, runs[0].Status)
}
