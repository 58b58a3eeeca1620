package commands

import (
	"github.com/spf13/cobra"

	"github.com/spherical/content-pipeline/cmd/content-pipeline/ui"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the enrichment response cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached enrichment response",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		n := a.LLMCache.Len()
		spin := ui.NewSpinner("Clearing cache")
		spin.Start()
		err = a.LLMCache.Clear(cmd.Context())
		spin.Stop()
		if err != nil {
			return err
		}
		ui.Success("Removed %d cached responses", n)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
