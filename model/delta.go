package model

// ChangeType classifies a chapter-level change between two versions
type ChangeType string

const (
	ChangeAdded     ChangeType = "added"
	ChangeRemoved   ChangeType = "removed"
	ChangeModified  ChangeType = "modified"
	ChangeReordered ChangeType = "reordered"
	ChangeUnchanged ChangeType = "unchanged"
)

// ChapterChange describes how one chapter differs between two versions.
// Reordered is tracked independently of content change, so a chapter can be
// both modified and reordered.
type ChapterChange struct {
	Key       string     `json:"key"`
	Title     string     `json:"title,omitempty"`
	Change    ChangeType `json:"change"`
	Reordered bool       `json:"reordered,omitempty"`
	Distance  float64    `json:"distance,omitempty"` // cosine distance between chapter embeddings
	PrevIndex *int       `json:"prev_index,omitempty"`
	CurrIndex *int       `json:"curr_index,omitempty"`
}

// PlotChange describes how a plot point moved or changed between versions
type PlotChange struct {
	Type         PlotPointType `json:"plot_type"`
	Change       ChangeType    `json:"change"`
	PrevPosition *int          `json:"prev_position,omitempty"`
	CurrPosition *int          `json:"curr_position,omitempty"`
	TensionDelta float64       `json:"tension_delta,omitempty"`
}

// CoherenceCheck names one of the independent revision coherence checks
type CoherenceCheck string

const (
	CheckCharacterContinuity CoherenceCheck = "character_continuity"
	CheckThreadContinuity    CoherenceCheck = "thread_continuity"
	CheckLogicalConsistency  CoherenceCheck = "logical_consistency"
)

// CoherenceImpact is one detected inconsistency introduced by a revision
type CoherenceImpact struct {
	Check       CoherenceCheck `json:"check"`
	Severity    string         `json:"severity"` // low, medium, high
	Subject     string         `json:"subject"`  // character name, thread theme or plot point type
	Description string         `json:"description"`
	Chapters    []string       `json:"chapters,omitempty"` // affected chapter keys
}

// RevisionDelta is the ephemeral comparison artifact between two versions of
// the same novel. It is recomputable on demand and never persisted.
type RevisionDelta struct {
	NovelID        string            `json:"novel_id"`
	PrevVersionID  string            `json:"prev_version_id"`
	CurrVersionID  string            `json:"curr_version_id"`
	ChapterChanges []ChapterChange   `json:"chapter_changes"`
	PlotChanges    []PlotChange      `json:"plot_changes"`
	Impacts        []CoherenceImpact `json:"coherence_impacts"`
	Suggestions    []string          `json:"suggested_revisions,omitempty"`
	FailedChecks   []CoherenceCheck  `json:"failed_checks,omitempty"` // checks that could not run
}
