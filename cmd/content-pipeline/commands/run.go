package commands

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/spherical/content-pipeline/cmd/content-pipeline/ui"
	"github.com/spherical/content-pipeline/internal/domain"
	"github.com/spherical/content-pipeline/internal/pipeline"
)

var runForce bool

// ErrRunFailed is returned when a pipeline run ends in failure. The failure
// has already been reported, so callers only set the exit status.
var ErrRunFailed = errors.New("pipeline run failed")

var runCmd = &cobra.Command{
	Use:   "run [pdf]",
	Short: "Process a PDF through every stage",
	Long: `Fingerprint, extract, enrich and format a PDF. Stages whose output is
already stored for the same content are skipped unless --force is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := resolveSource(args)
		if err != nil {
			return err
		}

		progress := ui.NewStageProgress(4, "Fingerprinting")
		a, err := openApp(cmd.Context(), nil, pipeline.WithEventHandler(progressHandler(progress)))
		if err != nil {
			progress.Finish()
			return err
		}
		defer a.Close()

		res := a.Orchestrator.Run(cmd.Context(), pipeline.Request{SourcePath: source, ForceRefresh: runForce})
		progress.Finish()

		if jsonOutput {
			if err := printJSON(res); err != nil {
				return err
			}
		} else {
			printResult(res)
		}
		if !res.Succeeded() {
			return ErrRunFailed
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVarP(&runForce, "force", "f", false, "rerun every stage even when output is stored")
	rootCmd.AddCommand(runCmd)
}

var nextStage = map[domain.Stage]string{
	domain.StageFingerprint: "Extracting",
	domain.StageExtract:     "Enriching",
	domain.StageEnrich:      "Formatting",
	domain.StageFormat:      "Done",
}

// progressHandler advances the bar once per finished stage, whether the
// stage ran, was skipped or fell back to stored output.
func progressHandler(p *ui.StageProgress) func(domain.StreamEvent) {
	return func(ev domain.StreamEvent) {
		switch ev.Type {
		case domain.EventStageComplete, domain.EventStageSkipped, domain.EventFallback:
			p.Advance(nextStage[ev.Stage])
		}
	}
}

func printResult(res *pipeline.Result) {
	if f := res.Failure; f != nil {
		detail := f.Message
		if f.Recoverable {
			detail += "\n\nThis failure is transient. Retrying may succeed."
		}
		ui.ErrorBox(fmt.Sprintf("%s stage failed", f.Stage), detail)
		return
	}

	ui.Section("Run " + shortID(res.RunID))
	ui.KeyValue("Fingerprint", res.Fingerprint)
	ui.KeyValue("Duration", ui.FormatDuration(res.FinishedAt.Sub(res.StartedAt)))
	ui.KeyValue("Final state", string(res.State()))

	rows := make([][]string, 0, len(res.Stages))
	for _, stage := range []domain.Stage{domain.StageFingerprint, domain.StageExtract, domain.StageEnrich, domain.StageFormat} {
		if outcome, ok := res.Stages[stage]; ok {
			rows = append(rows, []string{string(stage), outcome})
		}
	}
	ui.Table([]string{"STAGE", "OUTCOME"}, rows)

	if len(res.Artifacts) > 0 {
		names := make([]string, 0, len(res.Artifacts))
		for name := range res.Artifacts {
			names = append(names, name)
		}
		sort.Strings(names)
		artifactRows := make([][]string, 0, len(names))
		for _, name := range names {
			artifactRows = append(artifactRows, []string{name, res.Artifacts[name]})
		}
		ui.Table([]string{"ARTIFACT", "KEY"}, artifactRows)
	}

	if res.Stale {
		ui.WarningBox("Stale output", "A stage failed and stored output from an earlier run was used instead.")
		return
	}
	ui.Success("Processed %s", res.Fingerprint)
}
