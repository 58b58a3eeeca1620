package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spherical/content-pipeline/cmd/content-pipeline/ui"
)

var (
	artifactFingerprint string
	artifactOutput      string
)

var artifactCmd = &cobra.Command{
	Use:   "artifact <markdown|text|cover-letter|docx|json>",
	Short: "Print or save a stored output document",
	Long: `Fetch a formatted document, or the enriched content as JSON, from storage.
Without --fingerprint the most recently processed content is used.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		art, err := a.Orchestrator.Artifact(cmd.Context(), artifactFingerprint, args[0])
		if err != nil {
			return err
		}

		if artifactOutput == "" {
			_, err = os.Stdout.Write(art.Data)
			return err
		}
		if err := os.WriteFile(artifactOutput, art.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", artifactOutput, err)
		}
		ui.Success("Wrote %s (%d bytes)", artifactOutput, len(art.Data))
		return nil
	},
}

func init() {
	artifactCmd.Flags().StringVar(&artifactFingerprint, "fingerprint", "", "content fingerprint (default: latest)")
	artifactCmd.Flags().StringVarP(&artifactOutput, "output", "o", "", "write to a file instead of stdout")
	rootCmd.AddCommand(artifactCmd)
}
