package pipeline

import (
	"time"

	"github.com/spherical/content-pipeline/internal/domain"
)

// State is a node of the run state machine.
type State string

const (
	StateStart          State = "START"
	StateFingerprinted  State = "FINGERPRINTED"
	StateExtracted      State = "EXTRACTED"
	StateExtractSkipped State = "EXTRACT_SKIPPED"
	StateEnriched       State = "ENRICHED"
	StateEnrichSkipped  State = "ENRICH_SKIPPED"
	StateFormatted      State = "FORMATTED"
	StateDone           State = "DONE"
	StateError          State = "ERROR"
)

// Stage outcomes
const (
	OutcomeRan      = "ran"
	OutcomeSkipped  = "skipped"
	OutcomeFallback = "fallback"
	OutcomeFailed   = "failed"
)

// Transition records one step of the state machine.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// Failure describes why a run ended in ERROR.
type Failure struct {
	Stage       domain.Stage `json:"stage"`
	Message     string       `json:"message"`
	Recoverable bool         `json:"recoverable"`
}

// Request describes one run. Source takes precedence over SourcePath.
type Request struct {
	SourcePath   string
	Source       []byte
	ForceRefresh bool
}

// Result is the outcome of a run. Run never returns an error; failures are
// reported through Failure.
type Result struct {
	RunID       string                    `json:"runId"`
	Fingerprint string                    `json:"fingerprint"`
	Transitions []Transition              `json:"transitions"`
	Stages      map[domain.Stage]string   `json:"stages"`
	Stale       bool                      `json:"stale"`
	Failure     *Failure                  `json:"failure,omitempty"`
	Extraction  *domain.ExtractionResult  `json:"-"`
	Content     *domain.StructuredContent `json:"content,omitempty"`
	Artifacts   map[string]string         `json:"artifacts,omitempty"`
	StartedAt   time.Time                 `json:"startedAt"`
	FinishedAt  time.Time                 `json:"finishedAt"`
}

// State returns the last state reached.
func (r *Result) State() State {
	if len(r.Transitions) == 0 {
		return StateStart
	}
	return r.Transitions[len(r.Transitions)-1].To
}

// Succeeded reports whether the run reached DONE.
func (r *Result) Succeeded() bool {
	return r.State() == StateDone
}

// Path lists the states visited, starting with START.
func (r *Result) Path() []State {
	out := []State{StateStart}
	for _, t := range r.Transitions {
		out = append(out, t.To)
	}
	return out
}

// BuildInfo is written next to the formatted artifacts after every
// successful run.
type BuildInfo struct {
	Fingerprint      string                  `json:"fingerprint"`
	RunID            string                  `json:"runId"`
	StartedAt        time.Time               `json:"startedAt"`
	FinishedAt       time.Time               `json:"finishedAt"`
	Stages           map[domain.Stage]string `json:"stages"`
	EnrichmentSource string                  `json:"enrichmentSource"`
	Stale            bool                    `json:"stale"`
	FormatVersions   domain.FormatVersions   `json:"formatVersions"`
}
