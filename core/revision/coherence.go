package revision

import (
	"fmt"
	"sort"

	"github.com/siherrmann/storyline/model"
)

// characterContinuity flags characters whose presence or state breaks across
// the revision: a character that disappeared with its chapters, or whose
// last-known emotional state contradicts its next appearance
func (d *Differ) characterContinuity(prev, curr *model.Version, changes []model.ChapterChange) []model.CoherenceImpact {
	removedKeys := map[string]bool{}
	disruptedKeys := map[string]bool{}
	for _, change := range changes {
		switch change.Change {
		case model.ChangeRemoved:
			removedKeys[change.Key] = true
			disruptedKeys[change.Key] = true
		case model.ChangeModified, model.ChangeReordered:
			disruptedKeys[change.Key] = true
		}
	}

	var impacts []model.CoherenceImpact
	for _, prevArc := range prev.Arcs {
		currArc := curr.Arc(prevArc.Name)
		if currArc == nil {
			chapters := mentionChapters(prev, prevArc)
			if allIn(chapters, removedKeys) && len(chapters) > 0 {
				impacts = append(impacts, model.CoherenceImpact{
					Check:       model.CheckCharacterContinuity,
					Severity:    "high",
					Subject:     prevArc.Name,
					Description: fmt.Sprintf("%v only appeared in removed chapters and vanishes from the story", prevArc.Name),
					Chapters:    chapters,
				})
			} else {
				impacts = append(impacts, model.CoherenceImpact{
					Check:       model.CheckCharacterContinuity,
					Severity:    "medium",
					Subject:     prevArc.Name,
					Description: fmt.Sprintf("%v no longer meets the mention threshold after the revision", prevArc.Name),
					Chapters:    chapters,
				})
			}
			continue
		}

		if len(prevArc.Emotions) == 0 || len(currArc.Emotions) == 0 {
			continue
		}
		lastKnown := prevArc.Emotions[len(prevArc.Emotions)-1].Valence
		nextSeen := currArc.Emotions[0].Valence
		if lastKnown*nextSeen < 0 && abs(nextSeen-lastKnown) > 1.0 && anyDisrupted(mentionChapters(curr, currArc), disruptedKeys) {
			impacts = append(impacts, model.CoherenceImpact{
				Check:       model.CheckCharacterContinuity,
				Severity:    "medium",
				Subject:     prevArc.Name,
				Description: fmt.Sprintf("%v's last-known state contradicts the next appearance after the revised chapters", prevArc.Name),
				Chapters:    mentionChapters(curr, currArc),
			})
		}
	}
	return impacts
}

// threadContinuity flags threads whose resolution was lost or now precedes
// their setup after chapter reordering or removal
func (d *Differ) threadContinuity(prev, curr *model.Version) []model.CoherenceImpact {
	currByTheme := map[string]*model.NarrativeThread{}
	for _, thread := range curr.Threads {
		currByTheme[thread.Theme] = thread
	}

	var impacts []model.CoherenceImpact
	for _, prevThread := range prev.Threads {
		currThread, ok := currByTheme[prevThread.Theme]
		if !ok {
			if prevThread.Importance >= 0.3 {
				impacts = append(impacts, model.CoherenceImpact{
					Check:       model.CheckThreadContinuity,
					Severity:    "medium",
					Subject:     prevThread.Theme,
					Description: fmt.Sprintf("thread %q disappeared from the story", prevThread.Theme),
				})
			}
			continue
		}

		if prevThread.Resolved && !currThread.Resolved {
			impacts = append(impacts, model.CoherenceImpact{
				Check:       model.CheckThreadContinuity,
				Severity:    "high",
				Subject:     prevThread.Theme,
				Description: fmt.Sprintf("thread %q was resolved before the revision and is now left open", prevThread.Theme),
				Chapters:    chunkChapters(curr, currThread.Chunks),
			})
			continue
		}

		setup := chapterKeyAt(curr, currThread.FirstChunk())
		resolution := chapterKeyAt(curr, currThread.LastChunk())
		if setup != "" && resolution != "" && chapterOrder(curr, resolution) < chapterOrder(curr, setup) {
			impacts = append(impacts, model.CoherenceImpact{
				Check:       model.CheckThreadContinuity,
				Severity:    "high",
				Subject:     prevThread.Theme,
				Description: fmt.Sprintf("thread %q now resolves before its setup", prevThread.Theme),
				Chapters:    []string{setup, resolution},
			})
		}
	}
	return impacts
}

// causalPredecessor maps each plot point type to the type it depends on
var causalPredecessor = map[model.PlotPointType]model.PlotPointType{
	model.PlotRisingAction:  model.PlotIncitingIncident,
	model.PlotClimax:        model.PlotRisingAction,
	model.PlotFallingAction: model.PlotClimax,
	model.PlotResolution:    model.PlotFallingAction,
}

// logicalConsistency flags plot points whose causal predecessor was removed
// or materially changed by the revision
func (d *Differ) logicalConsistency(prev, curr *model.Version, plotChanges []model.PlotChange) []model.CoherenceImpact {
	changeByType := map[model.PlotPointType]model.ChangeType{}
	for _, change := range plotChanges {
		changeByType[change.Type] = change.Change
	}

	var impacts []model.CoherenceImpact
	for _, point := range curr.PlotPoints {
		predecessor, ok := causalPredecessor[point.Type]
		if !ok {
			continue
		}
		switch changeByType[predecessor] {
		case model.ChangeRemoved:
			impacts = append(impacts, model.CoherenceImpact{
				Check:       model.CheckLogicalConsistency,
				Severity:    "high",
				Subject:     string(point.Type),
				Description: fmt.Sprintf("the %v lost its %v in this revision", point.Type, predecessor),
			})
		case model.ChangeModified:
			impacts = append(impacts, model.CoherenceImpact{
				Check:       model.CheckLogicalConsistency,
				Severity:    "low",
				Subject:     string(point.Type),
				Description: fmt.Sprintf("the %v preceding the %v changed materially", predecessor, point.Type),
			})
		}
	}
	return impacts
}

// renderSuggestions turns coherence findings into one actionable suggestion
// per finding
func renderSuggestions(delta *model.RevisionDelta) []string {
	var suggestions []string
	for _, impact := range delta.Impacts {
		switch impact.Check {
		case model.CheckCharacterContinuity:
			suggestions = append(suggestions, fmt.Sprintf(
				"Reintroduce %v elsewhere or remove remaining references to them.", impact.Subject))
		case model.CheckThreadContinuity:
			suggestions = append(suggestions, fmt.Sprintf(
				"Restore or rewrite the resolution of the %q thread.", impact.Subject))
		case model.CheckLogicalConsistency:
			suggestions = append(suggestions, fmt.Sprintf(
				"Re-establish the setup leading into the %v.", impact.Subject))
		}
	}
	return suggestions
}

// mentionChapters maps a character's mention chunks to chapter keys
func mentionChapters(version *model.Version, arc *model.CharacterArc) []string {
	var chunks []int
	for _, mention := range arc.Mentions {
		chunks = append(chunks, mention.Chunk)
	}
	return chunkChapters(version, chunks)
}

// chunkChapters maps chunk ordinals to the keys of the chapters containing
// them, deduplicated in chapter order
func chunkChapters(version *model.Version, chunks []int) []string {
	seen := map[string]bool{}
	var keys []string
	for _, chapter := range version.Chapters {
		for _, chunk := range chunks {
			if chunk >= chapter.StartChunk && chunk <= chapter.EndChunk && !seen[chapter.Key] {
				seen[chapter.Key] = true
				keys = append(keys, chapter.Key)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

func chapterKeyAt(version *model.Version, chunk int) string {
	for _, chapter := range version.Chapters {
		if chunk >= chapter.StartChunk && chunk <= chapter.EndChunk {
			return chapter.Key
		}
	}
	return ""
}

func chapterOrder(version *model.Version, key string) int {
	for _, chapter := range version.Chapters {
		if chapter.Key == key {
			return chapter.Index
		}
	}
	return -1
}

func allIn(keys []string, set map[string]bool) bool {
	for _, key := range keys {
		if !set[key] {
			return false
		}
	}
	return true
}

func anyDisrupted(keys []string, set map[string]bool) bool {
	for _, key := range keys {
		if set[key] {
			return true
		}
	}
	return false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
