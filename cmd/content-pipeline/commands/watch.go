package commands

import (
	"github.com/spf13/cobra"

	"github.com/spherical/content-pipeline/cmd/content-pipeline/ui"
	"github.com/spherical/content-pipeline/internal/pipeline"
	"github.com/spherical/content-pipeline/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch [pdf]",
	Short: "Reprocess a PDF whenever it changes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := resolveSource(args)
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		changes, err := watch.Start(cmd.Context(), watch.Config{
			Path:         source,
			Debounce:     cfg.Watch.Debounce,
			InitialEvent: true,
		}, a.Logger)
		if err != nil {
			return err
		}

		spin := ui.NewSpinner("Waiting for changes to " + source)
		for path := range changes {
			spin.Stop()
			ui.Info("Change detected, processing %s", path)
			res := a.Orchestrator.Run(cmd.Context(), pipeline.Request{SourcePath: path})
			printResult(res)
			spin.UpdateMessage("Waiting for changes to " + source)
			spin.Start()
		}
		spin.Stop()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
