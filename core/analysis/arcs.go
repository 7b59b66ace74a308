package analysis

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/siherrmann/storyline/core/extract"
	"github.com/siherrmann/storyline/core/segmenter"
	"github.com/siherrmann/storyline/model"
)

var goalPattern = regexp.MustCompile(`(?i)\b(?:wanted|wants|hoped|hopes|longed|planned|plans|sought|seeks|vowed|vows|needed|needs)\s+to\s+([^.!?;]+)`)

// BuildArcs aggregates per-character trajectories across one version's
// ordered chunk sequence. Characters with fewer mentions than the configured
// minimum are excluded as minor characters.
func BuildArcs(chunks []*model.Chunk, config *model.PipelineConfig) []*model.CharacterArc {
	sentiment := extract.LexiconSentimentFunc()

	arcs := map[string]*model.CharacterArc{}
	for _, chunk := range chunks {
		for _, name := range chunk.Entities {
			arc, ok := arcs[name]
			if !ok {
				arc = &model.CharacterArc{Name: name, Relationships: map[string]float64{}}
				arcs[name] = arc
			}
			arc.Mentions = append(arc.Mentions, model.Mention{
				Chunk:   chunk.Index,
				Excerpt: mentionExcerpt(chunk.Content, name),
			})

			valence, err := sentiment(sentencesMentioning(chunk.Content, name))
			if err == nil {
				arc.Emotions = append(arc.Emotions, model.EmotionPoint{
					Chunk:   chunk.Index,
					Valence: valence,
					Label:   valenceLabel(valence),
				})
			}

			if goal := findGoal(chunk.Content, name); goal != "" {
				arc.Goals = append(arc.Goals, model.GoalPoint{Chunk: chunk.Index, Goal: goal})
			}

			for _, other := range chunk.Entities {
				if other != name {
					arc.Relationships[other]++
				}
			}
		}
	}

	var result []*model.CharacterArc
	for _, arc := range arcs {
		if len(arc.Mentions) < config.MinMentions {
			continue
		}
		normalizeRelationships(arc)
		arc.Developments = findDevelopments(arc)
		arc.Type = classifyArc(arc)
		result = append(result, arc)
	}

	sort.Slice(result, func(i, j int) bool {
		if len(result[i].Mentions) != len(result[j].Mentions) {
			return len(result[i].Mentions) > len(result[j].Mentions)
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// mentionExcerpt returns the first sentence of the chunk naming the character
func mentionExcerpt(text string, name string) string {
	for _, sentence := range segmenter.SplitSentences(text) {
		if strings.Contains(sentence, name) {
			return sentence
		}
	}
	return ""
}

// sentencesMentioning joins the sentences naming the character, so the
// emotion valence reflects the character's own passages rather than the
// whole chunk
func sentencesMentioning(text string, name string) string {
	var own []string
	for _, sentence := range segmenter.SplitSentences(text) {
		if strings.Contains(sentence, name) {
			own = append(own, sentence)
		}
	}
	if len(own) == 0 {
		return text
	}
	return strings.Join(own, " ")
}

func valenceLabel(valence float64) string {
	switch {
	case valence > 0.25:
		return "positive"
	case valence < -0.25:
		return "negative"
	default:
		return "neutral"
	}
}

// findGoal looks for a goal phrase in a sentence naming the character
func findGoal(text string, name string) string {
	for _, sentence := range segmenter.SplitSentences(text) {
		if !strings.Contains(sentence, name) {
			continue
		}
		if match := goalPattern.FindStringSubmatch(sentence); match != nil {
			return strings.TrimSpace(match[1])
		}
	}
	return ""
}

func normalizeRelationships(arc *model.CharacterArc) {
	total := float64(len(arc.Mentions))
	for other, count := range arc.Relationships {
		arc.Relationships[other] = count / total
	}
}

// findDevelopments marks valence sign flips between consecutive emotion
// points as development points
func findDevelopments(arc *model.CharacterArc) []model.DevelopmentPoint {
	var developments []model.DevelopmentPoint
	for i := 1; i < len(arc.Emotions); i++ {
		prev, curr := arc.Emotions[i-1], arc.Emotions[i]
		if prev.Valence*curr.Valence < 0 && absFloat(curr.Valence-prev.Valence) > 0.5 {
			developments = append(developments, model.DevelopmentPoint{
				Chunk: curr.Chunk,
				Note:  fmt.Sprintf("emotional shift from %v to %v", valenceLabel(prev.Valence), valenceLabel(curr.Valence)),
			})
		}
	}
	return developments
}

// classifyArc compares the average valence of the trajectory's opening and
// closing thirds
func classifyArc(arc *model.CharacterArc) model.ArcType {
	if len(arc.Emotions) < 3 {
		return model.ArcFlat
	}
	third := len(arc.Emotions) / 3
	if third == 0 {
		third = 1
	}
	opening := meanValence(arc.Emotions[:third])
	closing := meanValence(arc.Emotions[len(arc.Emotions)-third:])
	delta := closing - opening

	switch {
	case len(arc.Developments) > 2:
		return model.ArcComplex
	case delta > 0.25:
		return model.ArcGrowth
	case delta < -0.25:
		return model.ArcFall
	default:
		return model.ArcFlat
	}
}

func meanValence(points []model.EmotionPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range points {
		sum += p.Valence
	}
	return sum / float64(len(points))
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
