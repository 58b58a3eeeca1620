package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spherical/content-pipeline/cmd/content-pipeline/ui"
	"github.com/spherical/content-pipeline/internal/fingerprint"
	"github.com/spherical/content-pipeline/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status [pdf]",
	Short: "Show the stored content state and whether a PDF is fresh",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		st := a.Tracker.GetState()

		var fresh *state.Freshness
		if source, err := resolveSource(args); err == nil {
			f, err := fingerprint.FromFile(source)
			if err != nil {
				return fmt.Errorf("fingerprint %s: %w", source, err)
			}
			check := a.Tracker.CheckFreshness(f.String())
			fresh = &check
		}

		if jsonOutput {
			return printJSON(map[string]interface{}{"state": st, "freshness": fresh})
		}

		ui.Section("Content state")
		ui.KeyValue("Fingerprint", shortID(st.Fingerprint))
		ui.KeyValue("Source", st.SourcePath)
		ui.KeyValue("Stage", string(st.ProcessingStage))
		ui.KeyValue("Extracted", boolMark(st.IsExtracted))
		ui.KeyValue("Enriched", boolMark(st.IsEnriched))
		ui.KeyValue("Formatted", boolMark(st.IsFormatted))
		ui.KeyValue("Updated", ui.FormatTime(st.LastUpdatedAt))

		if fresh == nil {
			return nil
		}
		ui.Section("Freshness")
		if fresh.IsStale {
			ui.Warning("Stale: %s", fresh.Reason)
		} else {
			ui.Success("Up to date")
		}
		ui.KeyValue("Current", shortID(fresh.CurrentFingerprint))
		ui.KeyValue("Stored", shortID(fresh.StoredFingerprint))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
