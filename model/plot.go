package model

import (
	"time"

	"github.com/google/uuid"
)

// PlotPointType tags a structurally significant position in the narrative
type PlotPointType string

const (
	PlotIncitingIncident PlotPointType = "inciting_incident"
	PlotRisingAction     PlotPointType = "rising_action"
	PlotClimax           PlotPointType = "climax"
	PlotFallingAction    PlotPointType = "falling_action"
	PlotResolution       PlotPointType = "resolution"
	// PlotUndetermined marks a position the analyzer could not identify
	// (flat or monotonic tension curves degrade gracefully to this)
	PlotUndetermined PlotPointType = "undetermined"
)

// PlotPoint is a derived structural marker, recomputed per version
type PlotPoint struct {
	ID        uuid.UUID     `json:"id"`
	NovelID   string        `json:"novel_id"`
	VersionID string        `json:"version_id"`
	Type      PlotPointType `json:"plot_type"`
	Position  int           `json:"position"` // chunk ordinal
	Summary   string        `json:"summary,omitempty"`
	Tension   float64       `json:"tension"`
	Embedding []float32     `json:"embedding,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// StorySummary condenses the structural analysis of one version
type StorySummary struct {
	Structure      string  `json:"structure"` // e.g. "classic arc", "flat", "undetermined"
	ClimaxPosition int     `json:"climax_position"`
	AverageTension float64 `json:"average_tension"`
	PeakTension    float64 `json:"peak_tension"`
	ChunkCount     int     `json:"chunk_count"`
	ChapterCount   int     `json:"chapter_count"`
	CharacterCount int     `json:"character_count"`
	ThreadCount    int     `json:"thread_count"`
	OpenThreads    int     `json:"open_threads"`
}
