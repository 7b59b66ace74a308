package model

import (
	"time"

	"github.com/google/uuid"
)

// SemanticType classifies the dominant narrative mode of a chunk
type SemanticType string

const (
	SemanticExposition SemanticType = "exposition"
	SemanticDialogue   SemanticType = "dialogue"
	SemanticAction     SemanticType = "action"
	SemanticInternal   SemanticType = "internal"
	SemanticTransition SemanticType = "transition"
)

// SemanticTypes lists all chunk types in tie-break priority order
// (dialogue wins over action, action over internal, and so on)
var SemanticTypes = []SemanticType{
	SemanticDialogue,
	SemanticAction,
	SemanticInternal,
	SemanticTransition,
	SemanticExposition,
}

// Chunk is the smallest unit of text processed by the pipeline, roughly
// paragraph-scale. Chunks are immutable once a version is stored; reprocessing
// supersedes them in a new version.
type Chunk struct {
	ID           uuid.UUID    `json:"id"`
	NovelID      string       `json:"novel_id"`
	VersionID    string       `json:"version_id"`
	Index        int          `json:"index"`         // ordinal, contiguous from 0 within a version
	ChapterIndex int          `json:"chapter_index"` // ordinal of the owning chapter
	ChapterKey   string       `json:"chapter_key"`
	Content      string       `json:"content"`
	Type         SemanticType `json:"semantic_type"`
	Entities     []string     `json:"entities,omitempty"`
	Tension      float64      `json:"tension"` // smoothed, in [0,1]
	Embedding    []float32    `json:"embedding,omitempty"`
	Metadata     Metadata     `json:"metadata,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	// Results
	Similarity *float64 `json:"similarity,omitempty"`
	Score      float64  `json:"score,omitempty"`
}

// HasEntity reports whether the chunk mentions the given entity
func (c *Chunk) HasEntity(name string) bool {
	for _, e := range c.Entities {
		if e == name {
			return true
		}
	}
	return false
}
