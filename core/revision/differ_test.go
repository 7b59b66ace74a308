package revision

import (
	"log/slog"
	"testing"

	"github.com/siherrmann/storyline/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chapterSpec is a compact test fixture for one chapter and its chunks
type chapterSpec struct {
	key       string
	title     string
	embedding []float32
	chunks    int
	entities  []string
}

func buildVersion(id string, specs []chapterSpec) *model.Version {
	version := &model.Version{ID: id, NovelID: "novel-1"}
	ordinal := 0
	for index, spec := range specs {
		start := ordinal
		for i := 0; i < spec.chunks; i++ {
			version.Chunks = append(version.Chunks, &model.Chunk{
				Index:        ordinal,
				ChapterIndex: index,
				ChapterKey:   spec.key,
				Content:      spec.title + " chunk content.",
				Type:         model.SemanticExposition,
				Entities:     spec.entities,
				Tension:      0.3,
				Embedding:    spec.embedding,
			})
			ordinal++
		}
		version.Chapters = append(version.Chapters, &model.Chapter{
			Index:      index,
			Key:        spec.key,
			Title:      spec.title,
			StartChunk: start,
			EndChunk:   ordinal - 1,
			Embedding:  spec.embedding,
		})
	}
	return version
}

func changeFor(changes []model.ChapterChange, key string) *model.ChapterChange {
	for i := range changes {
		if changes[i].Key == key {
			return &changes[i]
		}
	}
	return nil
}

var (
	vecA = []float32{1, 0, 0, 0}
	vecB = []float32{0, 1, 0, 0}
	vecC = []float32{0, 0, 1, 0}
	vecD = []float32{0, 0, 0, 1}
)

func TestDiffChapterChanges(t *testing.T) {
	differ := New(model.DefaultPipelineConfig(), slog.Default())

	t.Run("Removed chapter is reported", func(t *testing.T) {
		prev := buildVersion("v1", []chapterSpec{
			{key: "ch1", title: "One", embedding: vecA, chunks: 2},
			{key: "ch2", title: "Two", embedding: vecB, chunks: 2},
			{key: "ch3", title: "Three", embedding: vecC, chunks: 2},
		})
		curr := buildVersion("v2", []chapterSpec{
			{key: "ch1", title: "One", embedding: vecA, chunks: 2},
			{key: "ch3", title: "Three", embedding: vecC, chunks: 2},
		})

		delta, err := differ.Diff(prev, curr)
		require.NoError(t, err, "Diff should not error")
		removed := changeFor(delta.ChapterChanges, "ch2")
		require.NotNil(t, removed, "expected a change entry for the removed chapter")
		assert.Equal(t, model.ChangeRemoved, removed.Change, "deleted chapter should be removed")
		assert.Equal(t, model.ChangeUnchanged, changeFor(delta.ChapterChanges, "ch1").Change, "untouched chapter should be unchanged")
		assert.Equal(t, model.ChangeUnchanged, changeFor(delta.ChapterChanges, "ch3").Change, "later chapter should not be reordered by a removal before it")
	})

	t.Run("Added in one direction is removed in the other", func(t *testing.T) {
		prev := buildVersion("v1", []chapterSpec{
			{key: "ch1", title: "One", embedding: vecA, chunks: 2},
		})
		curr := buildVersion("v2", []chapterSpec{
			{key: "ch1", title: "One", embedding: vecA, chunks: 2},
			{key: "ch2", title: "Two", embedding: vecB, chunks: 2},
		})

		forward, err := differ.Diff(prev, curr)
		require.NoError(t, err, "forward diff should not error")
		backward, err := differ.Diff(curr, prev)
		require.NoError(t, err, "backward diff should not error")

		assert.Equal(t, model.ChangeAdded, changeFor(forward.ChapterChanges, "ch2").Change, "new chapter should be added forward")
		assert.Equal(t, model.ChangeRemoved, changeFor(backward.ChapterChanges, "ch2").Change, "same chapter should be removed backward")
	})

	t.Run("Embedding distance above threshold marks modified", func(t *testing.T) {
		prev := buildVersion("v1", []chapterSpec{{key: "ch1", title: "One", embedding: vecA, chunks: 2}})
		curr := buildVersion("v2", []chapterSpec{{key: "ch1", title: "One", embedding: vecB, chunks: 2}})

		delta, err := differ.Diff(prev, curr)
		require.NoError(t, err, "Diff should not error")
		change := changeFor(delta.ChapterChanges, "ch1")
		assert.Equal(t, model.ChangeModified, change.Change, "orthogonal embeddings should mark the chapter modified")
		assert.InDelta(t, 1.0, change.Distance, 0.001, "expected full cosine distance")
	})

	t.Run("Swapped chapters are reordered without content change", func(t *testing.T) {
		prev := buildVersion("v1", []chapterSpec{
			{key: "ch1", title: "One", embedding: vecA, chunks: 1},
			{key: "ch2", title: "Two", embedding: vecB, chunks: 1},
		})
		curr := buildVersion("v2", []chapterSpec{
			{key: "ch2", title: "Two", embedding: vecB, chunks: 1},
			{key: "ch1", title: "One", embedding: vecA, chunks: 1},
		})

		delta, err := differ.Diff(prev, curr)
		require.NoError(t, err, "Diff should not error")
		for _, key := range []string{"ch1", "ch2"} {
			change := changeFor(delta.ChapterChanges, key)
			assert.Equal(t, model.ChangeReordered, change.Change, "swapped chapter %v should be reordered", key)
			assert.True(t, change.Reordered, "reordered flag should be set for %v", key)
			assert.InDelta(t, 0, change.Distance, 0.001, "content should be unchanged for %v", key)
		}
	})

	t.Run("Mismatched novel ids are rejected", func(t *testing.T) {
		prev := buildVersion("v1", []chapterSpec{{key: "ch1", title: "One", embedding: vecA, chunks: 1}})
		curr := buildVersion("v2", []chapterSpec{{key: "ch1", title: "One", embedding: vecA, chunks: 1}})
		curr.NovelID = "other-novel"

		_, err := differ.Diff(prev, curr)
		require.Error(t, err, "expected an error for versions of different novels")
		assert.ErrorIs(t, err, model.ErrInvalidInput, "expected invalid input")
	})

	t.Run("Nil versions are rejected", func(t *testing.T) {
		_, err := differ.Diff(nil, buildVersion("v2", nil))
		assert.ErrorIs(t, err, model.ErrInvalidInput, "expected invalid input for nil version")
	})
}

func TestDiffPlotChanges(t *testing.T) {
	differ := New(model.DefaultPipelineConfig(), slog.Default())

	t.Run("Moved climax is modified", func(t *testing.T) {
		prev := buildVersion("v1", []chapterSpec{{key: "ch1", title: "One", embedding: vecA, chunks: 8}})
		prev.PlotPoints = []*model.PlotPoint{{Type: model.PlotClimax, Position: 5, Tension: 0.8}}
		curr := buildVersion("v2", []chapterSpec{{key: "ch1", title: "One", embedding: vecA, chunks: 8}})
		curr.PlotPoints = []*model.PlotPoint{{Type: model.PlotClimax, Position: 3, Tension: 0.8}}

		delta, err := differ.Diff(prev, curr)
		require.NoError(t, err, "Diff should not error")
		require.Len(t, delta.PlotChanges, 1, "expected one plot change")
		change := delta.PlotChanges[0]
		assert.Equal(t, model.ChangeModified, change.Change, "moved climax should be modified")
		assert.Equal(t, 5, *change.PrevPosition, "expected the previous position")
		assert.Equal(t, 3, *change.CurrPosition, "expected the current position")
	})

	t.Run("Disappeared plot point is removed", func(t *testing.T) {
		prev := buildVersion("v1", []chapterSpec{{key: "ch1", title: "One", embedding: vecA, chunks: 8}})
		prev.PlotPoints = []*model.PlotPoint{
			{Type: model.PlotRisingAction, Position: 2, Tension: 0.5},
			{Type: model.PlotClimax, Position: 5, Tension: 0.8},
		}
		curr := buildVersion("v2", []chapterSpec{{key: "ch1", title: "One", embedding: vecA, chunks: 8}})
		curr.PlotPoints = []*model.PlotPoint{{Type: model.PlotClimax, Position: 5, Tension: 0.8}}

		delta, err := differ.Diff(prev, curr)
		require.NoError(t, err, "Diff should not error")
		var removed *model.PlotChange
		for i := range delta.PlotChanges {
			if delta.PlotChanges[i].Type == model.PlotRisingAction {
				removed = &delta.PlotChanges[i]
			}
		}
		require.NotNil(t, removed, "expected a change for the vanished point")
		assert.Equal(t, model.ChangeRemoved, removed.Change, "vanished point should be removed")
	})
}

func TestDiffCoherence(t *testing.T) {
	differ := New(model.DefaultPipelineConfig(), slog.Default())

	t.Run("Character appearing only in a removed chapter is flagged", func(t *testing.T) {
		prev := buildVersion("v1", []chapterSpec{
			{key: "ch1", title: "One", embedding: vecA, chunks: 2, entities: []string{"Anna"}},
			{key: "ch2", title: "Two", embedding: vecB, chunks: 2, entities: []string{"Hermit"}},
			{key: "ch3", title: "Three", embedding: vecC, chunks: 2, entities: []string{"Anna"}},
		})
		prev.Arcs = []*model.CharacterArc{
			{Name: "Anna", Mentions: []model.Mention{{Chunk: 0}, {Chunk: 1}, {Chunk: 4}, {Chunk: 5}}},
			{Name: "Hermit", Mentions: []model.Mention{{Chunk: 2}, {Chunk: 3}}},
		}
		curr := buildVersion("v2", []chapterSpec{
			{key: "ch1", title: "One", embedding: vecA, chunks: 2, entities: []string{"Anna"}},
			{key: "ch3", title: "Three", embedding: vecC, chunks: 2, entities: []string{"Anna"}},
		})
		curr.Arcs = []*model.CharacterArc{
			{Name: "Anna", Mentions: []model.Mention{{Chunk: 0}, {Chunk: 1}, {Chunk: 2}, {Chunk: 3}}},
		}

		delta, err := differ.Diff(prev, curr)
		require.NoError(t, err, "Diff should not error")
		var impact *model.CoherenceImpact
		for i := range delta.Impacts {
			if delta.Impacts[i].Subject == "Hermit" {
				impact = &delta.Impacts[i]
			}
		}
		require.NotNil(t, impact, "expected a continuity impact for the vanished character")
		assert.Equal(t, model.CheckCharacterContinuity, impact.Check, "expected the character continuity check")
		assert.Equal(t, "high", impact.Severity, "character confined to removed chapters should be high severity")
		assert.Contains(t, impact.Chapters, "ch2", "impact should name the removed chapter")
		assert.NotEmpty(t, delta.Suggestions, "expected a suggestion for the finding")
	})

	t.Run("Lost thread resolution is flagged", func(t *testing.T) {
		prev := buildVersion("v1", []chapterSpec{
			{key: "ch1", title: "One", embedding: vecA, chunks: 3},
			{key: "ch2", title: "Two", embedding: vecB, chunks: 3},
		})
		prev.Threads = []*model.NarrativeThread{
			{Theme: "inheritance", Chunks: []int{0, 5}, Resolved: true, Importance: 0.6},
		}
		curr := buildVersion("v2", []chapterSpec{
			{key: "ch1", title: "One", embedding: vecA, chunks: 3},
			{key: "ch2", title: "Two", embedding: vecD, chunks: 3},
		})
		curr.Threads = []*model.NarrativeThread{
			{Theme: "inheritance", Chunks: []int{0, 2}, Resolved: false, Importance: 0.4},
		}

		delta, err := differ.Diff(prev, curr)
		require.NoError(t, err, "Diff should not error")
		var impact *model.CoherenceImpact
		for i := range delta.Impacts {
			if delta.Impacts[i].Check == model.CheckThreadContinuity {
				impact = &delta.Impacts[i]
			}
		}
		require.NotNil(t, impact, "expected a thread continuity impact")
		assert.Equal(t, "high", impact.Severity, "losing a resolution should be high severity")
		assert.Equal(t, "inheritance", impact.Subject, "impact should name the thread")
	})

	t.Run("Plot point losing its predecessor is flagged", func(t *testing.T) {
		prev := buildVersion("v1", []chapterSpec{{key: "ch1", title: "One", embedding: vecA, chunks: 8}})
		prev.PlotPoints = []*model.PlotPoint{
			{Type: model.PlotRisingAction, Position: 2, Tension: 0.5},
			{Type: model.PlotClimax, Position: 5, Tension: 0.8},
		}
		curr := buildVersion("v2", []chapterSpec{{key: "ch1", title: "One", embedding: vecA, chunks: 8}})
		curr.PlotPoints = []*model.PlotPoint{{Type: model.PlotClimax, Position: 5, Tension: 0.8}}

		delta, err := differ.Diff(prev, curr)
		require.NoError(t, err, "Diff should not error")
		var impact *model.CoherenceImpact
		for i := range delta.Impacts {
			if delta.Impacts[i].Check == model.CheckLogicalConsistency {
				impact = &delta.Impacts[i]
			}
		}
		require.NotNil(t, impact, "expected a logical consistency impact")
		assert.Equal(t, string(model.PlotClimax), impact.Subject, "impact should name the orphaned plot point")
	})

	t.Run("Clean revision has no impacts or failed checks", func(t *testing.T) {
		prev := buildVersion("v1", []chapterSpec{{key: "ch1", title: "One", embedding: vecA, chunks: 2}})
		curr := buildVersion("v2", []chapterSpec{{key: "ch1", title: "One", embedding: vecA, chunks: 2}})

		delta, err := differ.Diff(prev, curr)
		require.NoError(t, err, "Diff should not error")
		assert.Empty(t, delta.Impacts, "expected no impacts for an identical revision")
		assert.Empty(t, delta.FailedChecks, "all checks should have run")
		assert.Empty(t, delta.Suggestions, "expected no suggestions without findings")
	})
}
