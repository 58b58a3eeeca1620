package commands

import (
	"github.com/spf13/cobra"

	"github.com/spherical/content-pipeline/internal/api"
	"github.com/spherical/content-pipeline/internal/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		metrics := observability.NewMetrics()
		a, err := openApp(cmd.Context(), metrics)
		if err != nil {
			return err
		}
		defer a.Close()

		router := api.NewRouter(api.Deps{
			Orchestrator:   a.Orchestrator,
			Tracker:        a.Tracker,
			Backend:        a.Backend,
			Metrics:        metrics,
			Logger:         a.Logger,
			SourcePath:     cfg.Server.SourcePath,
			SourceRoot:     cfg.Server.SourceRoot,
			AuthToken:      cfg.Server.APIToken,
			RequestTimeout: cfg.Server.WriteTimeout,
		})
		return api.Serve(cmd.Context(), cfg.Server, router, a.Logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
