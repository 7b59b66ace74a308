package model

// ArcType classifies the overall direction of a character's trajectory
type ArcType string

const (
	ArcGrowth  ArcType = "growth" // sustained negative-to-positive development
	ArcFall    ArcType = "fall"   // sustained positive-to-negative development
	ArcFlat    ArcType = "flat"   // no significant change
	ArcComplex ArcType = "complex"
)

// Mention is one appearance of a character in a chunk
type Mention struct {
	Chunk   int    `json:"chunk"`
	Excerpt string `json:"excerpt,omitempty"`
}

// EmotionPoint is the emotional state of a character at a chunk position.
// Valence is in [-1, 1].
type EmotionPoint struct {
	Chunk   int     `json:"chunk"`
	Valence float64 `json:"valence"`
	Label   string  `json:"label,omitempty"`
}

// GoalPoint is a goal annotation for a character at a chunk position
type GoalPoint struct {
	Chunk int    `json:"chunk"`
	Goal  string `json:"goal"`
}

// DevelopmentPoint marks a significant shift in a character's trajectory
type DevelopmentPoint struct {
	Chunk int    `json:"chunk"`
	Note  string `json:"note"`
}

// CharacterArc aggregates everything tracked about one named character across
// the chunk set of exactly one version. Characters below the minor-character
// mention threshold are excluded.
type CharacterArc struct {
	Name          string             `json:"name"`
	Mentions      []Mention          `json:"mentions"`
	Emotions      []EmotionPoint     `json:"emotions,omitempty"`
	Goals         []GoalPoint        `json:"goals,omitempty"`
	Relationships map[string]float64 `json:"relationships,omitempty"` // co-occurrence weight per other character
	Developments  []DevelopmentPoint `json:"developments,omitempty"`
	Type          ArcType            `json:"arc_type"`
}

// FirstMention returns the chunk ordinal of the character's first appearance,
// or -1 if the character has no mentions
func (a *CharacterArc) FirstMention() int {
	if len(a.Mentions) == 0 {
		return -1
	}
	return a.Mentions[0].Chunk
}

// LastMention returns the chunk ordinal of the character's last appearance,
// or -1 if the character has no mentions
func (a *CharacterArc) LastMention() int {
	if len(a.Mentions) == 0 {
		return -1
	}
	return a.Mentions[len(a.Mentions)-1].Chunk
}

// LastEmotionBefore returns the most recent emotion point strictly before the
// given chunk ordinal, or nil if there is none
func (a *CharacterArc) LastEmotionBefore(chunk int) *EmotionPoint {
	var last *EmotionPoint
	for i := range a.Emotions {
		if a.Emotions[i].Chunk >= chunk {
			break
		}
		last = &a.Emotions[i]
	}
	return last
}
