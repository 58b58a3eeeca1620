// Package commands implements the content-pipeline CLI.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/spherical/content-pipeline/cmd/content-pipeline/ui"
	"github.com/spherical/content-pipeline/internal/config"
)

// Version is set at build time with -ldflags.
var Version = "0.1.0"

var (
	cfgFile    string
	verbose    bool
	noColor    bool
	jsonOutput bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "content-pipeline",
	Short: "Turn a resume PDF into structured content and formatted documents",
	Long: `content-pipeline extracts text from a PDF, enriches it into structured
sections with a language model (or a local analyzer when none is configured),
and renders markdown, plain text and cover letter documents. Stages whose
output is already stored for the same PDF content are skipped.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load() // Ignore error if .env doesn't exist

		ui.Init(noColor, verbose, jsonOutput)

		loaded, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print machine-readable JSON")
}

// Execute runs the root command. Interrupts cancel the command's context
// so watch and serve shut down cleanly.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
