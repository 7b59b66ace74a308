package analysis

import (
	"sort"
	"strings"

	"github.com/siherrmann/storyline/core/segmenter"
	"github.com/siherrmann/storyline/model"
)

// BuildStorySummary condenses one version's derived artifacts into a compact
// structural overview
func BuildStorySummary(chunks []*model.Chunk, points []*model.PlotPoint, arcs []*model.CharacterArc, threads []*model.NarrativeThread, chapterCount int) *model.StorySummary {
	summary := &model.StorySummary{
		Structure:      structureLabel(points),
		ClimaxPosition: -1,
		ChunkCount:     len(chunks),
		ChapterCount:   chapterCount,
		CharacterCount: len(arcs),
		ThreadCount:    len(threads),
	}

	for _, point := range points {
		if point.Type == model.PlotClimax {
			summary.ClimaxPosition = point.Position
		}
	}
	for _, thread := range threads {
		if !thread.Resolved {
			summary.OpenThreads++
		}
	}

	for _, chunk := range chunks {
		summary.AverageTension += chunk.Tension
		if chunk.Tension > summary.PeakTension {
			summary.PeakTension = chunk.Tension
		}
	}
	if len(chunks) > 0 {
		summary.AverageTension /= float64(len(chunks))
	}

	return summary
}

func structureLabel(points []*model.PlotPoint) string {
	present := map[model.PlotPointType]bool{}
	for _, point := range points {
		present[point.Type] = true
	}
	switch {
	case present[model.PlotUndetermined] || !present[model.PlotClimax]:
		return "undetermined"
	case present[model.PlotIncitingIncident] && present[model.PlotResolution]:
		return "classic arc"
	default:
		return "partial arc"
	}
}

// SummarizeChapter builds a deterministic extractive summary of a chapter's
// text: sentences are scored by the frequency of their content terms and the
// top scorers are returned in original order.
func SummarizeChapter(text string, maxSentences int) string {
	sentences := segmenter.SplitSentences(text)
	if len(sentences) <= maxSentences {
		return strings.TrimSpace(strings.Join(sentences, " "))
	}

	frequency := map[string]int{}
	for _, sentence := range sentences {
		for _, term := range contentTerms(sentence) {
			frequency[term]++
		}
	}

	type scored struct {
		index int
		score float64
	}
	ranked := make([]scored, len(sentences))
	for i, sentence := range sentences {
		terms := contentTerms(sentence)
		total := 0
		for _, term := range terms {
			total += frequency[term]
		}
		score := 0.0
		if len(terms) > 0 {
			score = float64(total) / float64(len(terms))
		}
		ranked[i] = scored{index: i, score: score}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].index < ranked[j].index
	})

	keep := map[int]bool{}
	for _, entry := range ranked[:maxSentences] {
		keep[entry.index] = true
	}

	var out []string
	for i, sentence := range sentences {
		if keep[i] {
			out = append(out, sentence)
		}
	}
	return strings.TrimSpace(strings.Join(out, " "))
}

func contentTerms(sentence string) []string {
	var terms []string
	for _, token := range strings.FieldsFunc(strings.ToLower(sentence), func(r rune) bool {
		return !('a' <= r && r <= 'z')
	}) {
		if len(token) >= 4 && !themeStopwords[token] {
			terms = append(terms, token)
		}
	}
	return terms
}
