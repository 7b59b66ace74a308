package model

import "errors"

// Sentinel errors for the analysis pipeline and version store.
// Chunk- and artifact-level failures are not errors, they are collected
// as Warnings on the version (graceful degradation).
var (
	// ErrInvalidInput marks malformed or empty input, failing fast with no partial artifacts
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks a missing novel, version or chapter
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict marks a concurrent store attempt for the same novel id
	ErrVersionConflict = errors.New("version store operation already in flight for novel")
	// ErrEmbeddingService marks an embedding service failure after exhausted retries
	ErrEmbeddingService = errors.New("embedding service unavailable")
)

// Warning records a recovered per-chunk or per-artifact failure. The version
// is still stored; callers see the degraded artifacts annotated here.
type Warning struct {
	Stage    string `json:"stage"`              // extraction, analysis
	Artifact string `json:"artifact,omitempty"` // plot, arcs, threads
	Chunk    *int   `json:"chunk,omitempty"`    // chunk ordinal for extraction warnings
	Message  string `json:"message"`
}
