package ui

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/schollz/progressbar/v3"
)

// StageProgress shows how many pipeline stages a run has finished.
type StageProgress struct {
	bar *progressbar.ProgressBar
}

// NewStageProgress creates a progress bar over total stages. It renders
// nothing in quiet mode.
func NewStageProgress(total int, description string) *StageProgress {
	if quiet {
		return &StageProgress{}
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(errOut),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(errOut, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &StageProgress{bar: bar}
}

// Advance marks one more stage finished and updates the description.
func (p *StageProgress) Advance(description string) {
	if p.bar == nil {
		return
	}
	p.bar.Describe(description)
	_ = p.bar.Add(1)
}

// Finish completes the bar.
func (p *StageProgress) Finish() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
}

// Spinner wraps a spinner for indeterminate waits.
type Spinner struct {
	spinner *spinner.Spinner
}

// NewSpinner creates a new spinner with the given message.
func NewSpinner(message string) *Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = errOut
	return &Spinner{spinner: s}
}

// Start starts the spinner animation unless output is quiet.
func (s *Spinner) Start() {
	if quiet {
		return
	}
	s.spinner.Start()
}

// Stop stops the spinner animation.
func (s *Spinner) Stop() {
	s.spinner.Stop()
}

// UpdateMessage updates the spinner's message.
func (s *Spinner) UpdateMessage(message string) {
	s.spinner.Lock()
	s.spinner.Suffix = " " + message
	s.spinner.Unlock()
}
