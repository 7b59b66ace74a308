package model

// SearchQuery configures a version-scoped similarity search
type SearchQuery struct {
	TopK                int     `json:"top_k"`
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`

	// Scope filtering
	ChapterKey string         `json:"chapter_key,omitempty"` // restrict to one chapter
	Types      []SemanticType `json:"types,omitempty"`       // restrict to semantic types

	// Narrative-position reranking. When PositionHint is set, results close to
	// the hinted chunk ordinal are boosted by PositionWeight.
	PositionHint   *int    `json:"position_hint,omitempty"`
	PositionWeight float64 `json:"position_weight,omitempty"`
}

// DefaultSearchQuery returns a sensible default query configuration
func DefaultSearchQuery() SearchQuery {
	return SearchQuery{
		TopK:                5,
		SimilarityThreshold: 0.3,
		PositionWeight:      0.25,
	}
}

// SearchResult is one chunk returned by a similarity search
type SearchResult struct {
	Chunk      *Chunk  `json:"chunk"`
	Similarity float64 `json:"similarity"`
	Score      float64 `json:"score"` // similarity after position reranking
}

// ChapterContext is the narrative context handed to generation callers for
// one chapter of one version
type ChapterContext struct {
	Chapter           *Chapter           `json:"chapter"`
	NarrativePosition float64            `json:"narrative_position"` // share of chunks before the chapter, in [0,1]
	NearestPlotPoints []*PlotPoint       `json:"nearest_plot_points,omitempty"`
	CharacterStates   []CharacterState   `json:"character_states,omitempty"`
	ActiveThreads     []*NarrativeThread `json:"active_threads,omitempty"`
}

// CharacterState is a character's last known state entering a chapter
type CharacterState struct {
	Name     string  `json:"name"`
	Valence  float64 `json:"valence"`
	Emotion  string  `json:"emotion,omitempty"`
	LastGoal string  `json:"last_goal,omitempty"`
	LastSeen int     `json:"last_seen"` // chunk ordinal
}
