package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spherical/content-pipeline/cmd/content-pipeline/ui"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent pipeline runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.History.Enabled {
			return fmt.Errorf("run history is disabled in the configuration")
		}
		a, err := openApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History.List(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(runs)
		}
		if len(runs) == 0 {
			ui.Info("No runs recorded yet")
			return nil
		}

		rows := make([][]string, 0, len(runs))
		for _, r := range runs {
			rows = append(rows, []string{
				shortID(r.RunID),
				ui.FormatTime(r.StartedAt),
				r.Status,
				shortID(r.Fingerprint),
				strings.Join(r.StagesRun, ","),
				ui.FormatDuration(r.Duration),
			})
		}
		ui.Table([]string{"RUN", "STARTED", "STATUS", "FINGERPRINT", "RAN", "DURATION"}, rows)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show (0 for all)")
	rootCmd.AddCommand(historyCmd)
}
