package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Version is an immutable, fully-processed snapshot of one novel's analysis.
// It is created atomically at the end of a pipeline run and never mutated;
// later versions of the same novel supersede it.
type Version struct {
	ID          string             `json:"id"`
	NovelID     string             `json:"novel_id"`
	ContentHash string             `json:"content_hash"`
	CreatedAt   time.Time          `json:"created_at"`
	Chunks      []*Chunk           `json:"chunks"`
	Chapters    []*Chapter         `json:"chapters"`
	PlotPoints  []*PlotPoint       `json:"plot_points"`
	Arcs        []*CharacterArc    `json:"arcs"`
	Threads     []*NarrativeThread `json:"threads"`
	Summary     StorySummary       `json:"summary"`
	Warnings    []Warning          `json:"warnings,omitempty"`
}

// ContentHash computes the hex sha256 digest of the novel text
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// NewVersionID derives a deterministic version id from the novel id, the
// content hash and the creation timestamp. Byte-identical re-submissions at
// different times yield distinct ids.
func NewVersionID(novelID string, contentHash string, createdAt time.Time) string {
	sum := sha256.Sum256([]byte(novelID + "|" + contentHash + "|" + createdAt.Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:16])
}

// Chapter returns the chapter with the given stable key, or nil
func (v *Version) Chapter(key string) *Chapter {
	for _, ch := range v.Chapters {
		if ch.Key == key {
			return ch
		}
	}
	return nil
}

// ChapterChunks returns the chunks belonging to the chapter with the given key
func (v *Version) ChapterChunks(key string) []*Chunk {
	ch := v.Chapter(key)
	if ch == nil {
		return nil
	}
	var chunks []*Chunk
	for _, c := range v.Chunks {
		if c.ChapterKey == key {
			chunks = append(chunks, c)
		}
	}
	return chunks
}

// Arc returns the character arc for the given name, or nil
func (v *Version) Arc(name string) *CharacterArc {
	for _, a := range v.Arcs {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// ProcessStats summarizes one pipeline run
type ProcessStats struct {
	ChunkCount   int           `json:"chunk_count"`
	ChapterCount int           `json:"chapter_count"`
	WarningCount int           `json:"warning_count"`
	Reused       int           `json:"reused_chapters,omitempty"` // chapters carried over on incremental runs
	Duration     time.Duration `json:"duration"`
}

// ProcessResult is what callers receive from a full or incremental run
type ProcessResult struct {
	VersionID   string       `json:"version_id"`
	PlotSummary StorySummary `json:"plot_summary"`
	Stats       ProcessStats `json:"stats"`
	Warnings    []Warning    `json:"warnings,omitempty"`
}
