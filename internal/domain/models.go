package domain

import (
	"strings"
	"time"
)

// Stage names a pipeline stage
type Stage string

const (
	StageFingerprint Stage = "fingerprint"
	StageExtract     Stage = "extract"
	StageEnrich      Stage = "enrich"
	StageFormat      Stage = "format"
)

// ProcessingStage records how far the current content has progressed
type ProcessingStage string

const (
	ProcessingNone      ProcessingStage = "none"
	ProcessingExtracted ProcessingStage = "extracted"
	ProcessingEnriched  ProcessingStage = "enriched"
	ProcessingFormatted ProcessingStage = "formatted"
)

// Source is the PDF document being processed
type Source struct {
	Path       string
	Data       []byte
	Size       int64
	ModifiedAt time.Time
}

// FormatVersions holds the last render time of each formatted artifact
type FormatVersions struct {
	Markdown    time.Time `json:"markdown"`
	Text        time.Time `json:"text"`
	CoverLetter time.Time `json:"coverLetter"`
	Docx        time.Time `json:"docx"`
}

// ContentState is the persisted record of the last observed source and
// which stages have completed for it.
type ContentState struct {
	Fingerprint      string          `json:"fingerprint"`
	IsExtracted      bool            `json:"isExtracted"`
	IsEnriched       bool            `json:"isEnriched"`
	IsFormatted      bool            `json:"isFormatted"`
	SourcePath       string          `json:"sourcePath"`
	SourceSize       int64           `json:"sourceSize"`
	SourceModifiedAt time.Time       `json:"sourceModifiedAt"`
	ProcessingStage  ProcessingStage `json:"processingStage"`
	FormatVersions   FormatVersions  `json:"formatVersions"`
	LastUpdatedAt    time.Time       `json:"lastUpdatedAt"`
}

// ZeroContentState returns the state used before anything was processed.
func ZeroContentState() ContentState {
	epoch := time.Unix(0, 0).UTC()
	return ContentState{
		SourceModifiedAt: epoch,
		ProcessingStage:  ProcessingNone,
		LastUpdatedAt:    epoch,
	}
}

// DocumentMetadata holds the information a PDF carries about itself
type DocumentMetadata struct {
	Title    string `json:"title,omitempty"`
	Author   string `json:"author,omitempty"`
	Subject  string `json:"subject,omitempty"`
	Creator  string `json:"creator,omitempty"`
	Producer string `json:"producer,omitempty"`
	Engine   string `json:"engine"`
}

// ExtractionResult is the raw text pulled out of a PDF
type ExtractionResult struct {
	RawText   string           `json:"rawText"`
	PageCount int              `json:"pageCount"`
	Metadata  DocumentMetadata `json:"metadata"`
}

// Contact is a single way of reaching the person
type Contact struct {
	Kind  string `json:"kind"` // email, phone, linkedin, website, location
	Value string `json:"value"`
}

// Experience is one position held
type Experience struct {
	Company    string   `json:"company"`
	Title      string   `json:"title"`
	StartDate  string   `json:"startDate,omitempty"`
	EndDate    string   `json:"endDate,omitempty"`
	Highlights []string `json:"highlights,omitempty"`
}

// Education is one degree or course of study
type Education struct {
	Institution    string `json:"institution"`
	Degree         string `json:"degree,omitempty"`
	Field          string `json:"field,omitempty"`
	GraduationYear string `json:"graduationYear,omitempty"`
}

// Enrichment sources
const (
	SourceLLM       = "llm"
	SourceHeuristic = "heuristic"
)

// StructuredContent is the enriched, sectioned form of the raw text
type StructuredContent struct {
	Name       string       `json:"name"`
	Title      string       `json:"title,omitempty"`
	Summary    string       `json:"summary"`
	Contacts   []Contact    `json:"contacts"`
	Skills     []string     `json:"skills"`
	Experience []Experience `json:"experience"`
	Education  []Education  `json:"education"`
	Keywords   []string     `json:"keywords,omitempty"`
	Source     string       `json:"source"`
}

// ContactValue returns the first contact of the given kind.
func (c *StructuredContent) ContactValue(kind string) string {
	for _, contact := range c.Contacts {
		if strings.EqualFold(contact.Kind, kind) {
			return contact.Value
		}
	}
	return ""
}

// EventType represents the type of pipeline event
type EventType string

const (
	EventStart         EventType = "start"
	EventStageComplete EventType = "stage_complete"
	EventStageSkipped  EventType = "stage_skipped"
	EventFallback      EventType = "fallback"
	EventError         EventType = "error"
	EventComplete      EventType = "complete"
)

// StreamEvent represents an event emitted during processing
type StreamEvent struct {
	Type      EventType   `json:"type"`
	Stage     Stage       `json:"stage,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
