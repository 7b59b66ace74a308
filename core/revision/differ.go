package revision

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/siherrmann/storyline/model"
)

// Differ compares two versions of the same novel at chapter and plot level
// and derives coherence-impact findings. The comparison artifact is
// recomputable and never persisted.
type Differ struct {
	config *model.PipelineConfig
	log    *slog.Logger
}

func New(config *model.PipelineConfig, logger *slog.Logger) *Differ {
	if config == nil {
		config = model.DefaultPipelineConfig()
	}
	return &Differ{config: config, log: logger}
}

// Diff classifies chapter changes, plot changes and coherence impacts
// between a previous and a current version. The three coherence checks run
// independently; a failed check is annotated, not fatal.
func (d *Differ) Diff(prev, curr *model.Version) (*model.RevisionDelta, error) {
	if prev == nil || curr == nil {
		return nil, fmt.Errorf("%w: both versions are required for a diff", model.ErrInvalidInput)
	}
	if prev.NovelID != curr.NovelID {
		return nil, fmt.Errorf("%w: versions belong to different novels", model.ErrInvalidInput)
	}

	delta := &model.RevisionDelta{
		NovelID:       curr.NovelID,
		PrevVersionID: prev.ID,
		CurrVersionID: curr.ID,
	}

	delta.ChapterChanges = d.chapterChanges(prev, curr)
	delta.PlotChanges = d.plotChanges(prev, curr)

	d.runCheck(delta, model.CheckCharacterContinuity, func() []model.CoherenceImpact {
		return d.characterContinuity(prev, curr, delta.ChapterChanges)
	})
	d.runCheck(delta, model.CheckThreadContinuity, func() []model.CoherenceImpact {
		return d.threadContinuity(prev, curr)
	})
	d.runCheck(delta, model.CheckLogicalConsistency, func() []model.CoherenceImpact {
		return d.logicalConsistency(prev, curr, delta.PlotChanges)
	})

	delta.Suggestions = renderSuggestions(delta)

	if d.log != nil {
		d.log.Info("revision diff complete",
			slog.String("novelId", curr.NovelID),
			slog.Int("chapterChanges", len(delta.ChapterChanges)),
			slog.Int("impacts", len(delta.Impacts)))
	}
	return delta, nil
}

// runCheck isolates one coherence check so a failure in it cannot block the
// others; failed checks are listed on the delta
func (d *Differ) runCheck(delta *model.RevisionDelta, check model.CoherenceCheck, run func() []model.CoherenceImpact) {
	defer func() {
		if r := recover(); r != nil {
			if d.log != nil {
				d.log.Warn("coherence check failed", slog.String("check", string(check)), slog.Any("panic", r))
			}
			delta.FailedChecks = append(delta.FailedChecks, check)
		}
	}()
	delta.Impacts = append(delta.Impacts, run()...)
}

// chapterChanges matches chapters by their stable key. Reordering is tracked
// independently of content change, using the chapter's rank among the
// matched chapters of both versions.
func (d *Differ) chapterChanges(prev, curr *model.Version) []model.ChapterChange {
	prevByKey := map[string]*model.Chapter{}
	for _, chapter := range prev.Chapters {
		prevByKey[chapter.Key] = chapter
	}
	currByKey := map[string]*model.Chapter{}
	for _, chapter := range curr.Chapters {
		currByKey[chapter.Key] = chapter
	}

	prevRank := matchedRanks(prev.Chapters, currByKey)
	currRank := matchedRanks(curr.Chapters, prevByKey)

	var changes []model.ChapterChange
	for _, chapter := range curr.Chapters {
		prevChapter, matched := prevByKey[chapter.Key]
		if !matched {
			index := chapter.Index
			changes = append(changes, model.ChapterChange{
				Key:       chapter.Key,
				Title:     chapter.Title,
				Change:    model.ChangeAdded,
				CurrIndex: &index,
			})
			continue
		}

		prevIndex, currIndex := prevChapter.Index, chapter.Index
		change := model.ChapterChange{
			Key:       chapter.Key,
			Title:     chapter.Title,
			Change:    model.ChangeUnchanged,
			Reordered: prevRank[chapter.Key] != currRank[chapter.Key],
			Distance:  cosineDistance(prevChapter.Embedding, chapter.Embedding),
			PrevIndex: &prevIndex,
			CurrIndex: &currIndex,
		}
		if change.Distance > d.config.ModifiedDistance {
			change.Change = model.ChangeModified
		} else if change.Reordered {
			change.Change = model.ChangeReordered
		}
		changes = append(changes, change)
	}

	for _, chapter := range prev.Chapters {
		if _, matched := currByKey[chapter.Key]; !matched {
			index := chapter.Index
			changes = append(changes, model.ChapterChange{
				Key:       chapter.Key,
				Title:     chapter.Title,
				Change:    model.ChangeRemoved,
				PrevIndex: &index,
			})
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Key < changes[j].Key })
	return changes
}

// matchedRanks returns, for every chapter present in both versions, its rank
// within the matched subsequence
func matchedRanks(chapters []*model.Chapter, other map[string]*model.Chapter) map[string]int {
	ranks := map[string]int{}
	rank := 0
	for _, chapter := range chapters {
		if _, ok := other[chapter.Key]; ok {
			ranks[chapter.Key] = rank
			rank++
		}
	}
	return ranks
}

// plotChanges matches plot points by type and classifies movement and
// tension shifts
func (d *Differ) plotChanges(prev, curr *model.Version) []model.PlotChange {
	prevByType := plotByType(prev.PlotPoints)
	currByType := plotByType(curr.PlotPoints)

	var changes []model.PlotChange
	for _, pointType := range []model.PlotPointType{
		model.PlotIncitingIncident, model.PlotRisingAction, model.PlotClimax,
		model.PlotFallingAction, model.PlotResolution, model.PlotUndetermined,
	} {
		prevPoint, inPrev := prevByType[pointType]
		currPoint, inCurr := currByType[pointType]
		switch {
		case inPrev && inCurr:
			prevPos, currPos := prevPoint.Position, currPoint.Position
			change := model.PlotChange{
				Type:         pointType,
				Change:       model.ChangeUnchanged,
				PrevPosition: &prevPos,
				CurrPosition: &currPos,
				TensionDelta: currPoint.Tension - prevPoint.Tension,
			}
			if prevPos != currPos || math.Abs(change.TensionDelta) > 0.1 {
				change.Change = model.ChangeModified
			}
			changes = append(changes, change)
		case inPrev:
			prevPos := prevPoint.Position
			changes = append(changes, model.PlotChange{
				Type:         pointType,
				Change:       model.ChangeRemoved,
				PrevPosition: &prevPos,
			})
		case inCurr:
			currPos := currPoint.Position
			changes = append(changes, model.PlotChange{
				Type:         pointType,
				Change:       model.ChangeAdded,
				CurrPosition: &currPos,
			})
		}
	}
	return changes
}

func plotByType(points []*model.PlotPoint) map[model.PlotPointType]*model.PlotPoint {
	byType := map[model.PlotPointType]*model.PlotPoint{}
	for _, point := range points {
		if _, ok := byType[point.Type]; !ok {
			byType[point.Type] = point
		}
	}
	return byType
}

func cosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
