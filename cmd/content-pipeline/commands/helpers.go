package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spherical/content-pipeline/internal/app"
	"github.com/spherical/content-pipeline/internal/observability"
	"github.com/spherical/content-pipeline/internal/pipeline"
)

// newLogger logs to stderr. Without --verbose only warnings and errors are
// shown so they do not interleave with the progress display.
func newLogger() *observability.Logger {
	level := "warn"
	if verbose {
		level = cfg.Observability.LogLevel
	}
	return observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      "console",
		ServiceName: "content-pipeline",
		Output:      os.Stderr,
		Debug:       verbose && cfg.Observability.Debug,
	})
}

// openApp builds the pipeline from the loaded configuration.
func openApp(ctx context.Context, metrics *observability.Metrics, opts ...pipeline.Option) (*app.App, error) {
	a, err := app.Build(ctx, cfg, newLogger(), metrics, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize pipeline: %w", err)
	}
	return a, nil
}

// resolveSource picks the PDF named on the command line or the configured
// default.
func resolveSource(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if cfg.Server.SourcePath != "" {
		return cfg.Server.SourcePath, nil
	}
	return "", fmt.Errorf("no PDF given and no source_path configured")
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortID(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	if s == "" {
		return "-"
	}
	return s
}

func boolMark(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
