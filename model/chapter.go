package model

import (
	"time"

	"github.com/google/uuid"
)

// Chapter is a titled, ordered group of chunks within one version. Its
// embedding is structure-aware (title and summary included) and is recomputed
// whenever any constituent chunk changes.
type Chapter struct {
	ID         uuid.UUID `json:"id"`
	NovelID    string    `json:"novel_id"`
	VersionID  string    `json:"version_id"`
	Index      int       `json:"index"`
	Key        string    `json:"key"` // stable across revisions, supplied by the caller
	Title      string    `json:"title"`
	Summary    string    `json:"summary,omitempty"`
	StartChunk int       `json:"start_chunk"` // first chunk ordinal of the chapter
	EndChunk   int       `json:"end_chunk"`   // last chunk ordinal (inclusive)
	Embedding  []float32 `json:"embedding,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChunkCount returns the number of chunks belonging to the chapter
func (c *Chapter) ChunkCount() int {
	return c.EndChunk - c.StartChunk + 1
}
