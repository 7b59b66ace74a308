package model

// NarrativeThread is a tracked thematic or plot continuity line spanning
// multiple chunks and chapters, derived from one version's chunk set
type NarrativeThread struct {
	Theme      string   `json:"theme"`
	Entities   []string `json:"entities,omitempty"` // characters carrying the thread
	Chunks     []int    `json:"chunks"`             // member chunk ordinals, ascending
	Resolved   bool     `json:"resolved"`
	Importance float64  `json:"importance"` // in [0,1]
}

// FirstChunk returns the ordinal of the thread's setup chunk, or -1
func (t *NarrativeThread) FirstChunk() int {
	if len(t.Chunks) == 0 {
		return -1
	}
	return t.Chunks[0]
}

// LastChunk returns the ordinal of the thread's last member chunk, or -1
func (t *NarrativeThread) LastChunk() int {
	if len(t.Chunks) == 0 {
		return -1
	}
	return t.Chunks[len(t.Chunks)-1]
}

// Touches reports whether the thread has a member chunk in [start, end]
func (t *NarrativeThread) Touches(start, end int) bool {
	for _, c := range t.Chunks {
		if c >= start && c <= end {
			return true
		}
	}
	return false
}
