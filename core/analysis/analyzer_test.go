package analysis

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/siherrmann/storyline/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkChunk(index int, content string, tension float64, entities ...string) *model.Chunk {
	return &model.Chunk{
		Index:    index,
		Content:  content,
		Tension:  tension,
		Entities: entities,
	}
}

// arcChunks builds a small curve with a clear single climax at chunk 6
func arcChunks() []*model.Chunk {
	tensions := []float64{0.15, 0.2, 0.3, 0.35, 0.5, 0.65, 0.85, 0.5, 0.2}
	chunks := make([]*model.Chunk, len(tensions))
	contents := []string{
		"The village woke to an ordinary morning.",
		"Anna walked to the well as always.",
		"A stranger arrived with troubling news.",
		"Anna felt the first stirrings of dread.",
		"The dispute over the land grew sharper.",
		"Marco confronted the stranger openly.",
		"The barn burned and everything changed at once.",
		"The ashes cooled and the village counted its losses.",
		"Anna and Marco rebuilt what they could.",
	}
	for i, tension := range tensions {
		chunks[i] = mkChunk(i, contents[i], tension)
	}
	return chunks
}

func pointOfType(points []*model.PlotPoint, pointType model.PlotPointType) *model.PlotPoint {
	for _, point := range points {
		if point.Type == pointType {
			return point
		}
	}
	return nil
}

func TestDetectPlotPoints(t *testing.T) {
	config := model.DefaultPipelineConfig()

	t.Run("Climax within one chunk of the tension peak", func(t *testing.T) {
		points := DetectPlotPoints(arcChunks(), config)
		climax := pointOfType(points, model.PlotClimax)
		require.NotNil(t, climax, "expected a climax on a clear single-peak curve")
		assert.InDelta(t, 6, climax.Position, 1, "climax should be within one chunk of the peak")
	})

	t.Run("Clear arc yields all five markers in position order", func(t *testing.T) {
		points := DetectPlotPoints(arcChunks(), config)
		for _, pointType := range []model.PlotPointType{
			model.PlotIncitingIncident, model.PlotRisingAction, model.PlotClimax,
			model.PlotFallingAction, model.PlotResolution,
		} {
			assert.NotNil(t, pointOfType(points, pointType), "expected a %v marker", pointType)
		}
		for i := 1; i < len(points); i++ {
			assert.Less(t, points[i-1].Position, points[i].Position, "points should be ordered by position")
		}
		inciting := pointOfType(points, model.PlotIncitingIncident)
		climax := pointOfType(points, model.PlotClimax)
		assert.Less(t, inciting.Position, climax.Position, "inciting incident should precede the climax")
	})

	t.Run("Flat curve degrades to undetermined", func(t *testing.T) {
		chunks := make([]*model.Chunk, 9)
		for i := range chunks {
			chunks[i] = mkChunk(i, "Nothing much happened here.", 0.4)
		}
		points := DetectPlotPoints(chunks, config)
		require.Len(t, points, 1, "flat curve should yield a single marker")
		assert.Equal(t, model.PlotUndetermined, points[0].Type, "flat curve should be undetermined")
	})

	t.Run("Monotonic curve degrades to undetermined", func(t *testing.T) {
		chunks := make([]*model.Chunk, 6)
		for i := range chunks {
			chunks[i] = mkChunk(i, "Tension keeps building.", 0.1+0.15*float64(i))
		}
		points := DetectPlotPoints(chunks, config)
		require.Len(t, points, 1, "monotonic curve should yield a single marker")
		assert.Equal(t, model.PlotUndetermined, points[0].Type, "monotonic curve should be undetermined")
	})

	t.Run("Empty input yields no points", func(t *testing.T) {
		assert.Empty(t, DetectPlotPoints(nil, config), "expected no points for empty input")
	})

	t.Run("Detection is deterministic", func(t *testing.T) {
		first := DetectPlotPoints(arcChunks(), config)
		second := DetectPlotPoints(arcChunks(), config)
		require.Equal(t, len(first), len(second), "runs should yield the same point count")
		for i := range first {
			assert.Equal(t, first[i].Type, second[i].Type, "point %v type should match across runs", i)
			assert.Equal(t, first[i].Position, second[i].Position, "point %v position should match across runs", i)
		}
	})
}

func TestBuildArcs(t *testing.T) {
	config := model.DefaultPipelineConfig()

	growthChunks := []*model.Chunk{
		mkChunk(0, "Anna was alone in the dark.", 0.3, "Anna"),
		mkChunk(1, "Anna felt grief and despair. Anna hoped to escape the valley.", 0.4, "Anna"),
		mkChunk(2, "Anna found hope again.", 0.3, "Anna", "Marco"),
		mkChunk(3, "Anna laughed with joy and delight.", 0.2, "Anna", "Marco"),
		mkChunk(4, "The rival watched from the treeline.", 0.2, "Rival"),
		mkChunk(5, "The rival vanished without a word.", 0.2, "Rival"),
	}

	t.Run("Minor characters are filtered", func(t *testing.T) {
		arcs := BuildArcs(growthChunks, config)
		require.Len(t, arcs, 1, "only characters above the mention threshold should survive")
		assert.Equal(t, "Anna", arcs[0].Name, "expected the frequently mentioned character")
	})

	t.Run("Negative to positive trajectory classifies as growth", func(t *testing.T) {
		arcs := BuildArcs(growthChunks, config)
		require.Len(t, arcs, 1, "expected one arc")
		arc := arcs[0]
		assert.Equal(t, model.ArcGrowth, arc.Type, "expected a growth arc")
		require.NotEmpty(t, arc.Emotions, "expected emotion points")
		assert.Negative(t, arc.Emotions[0].Valence, "opening valence should be negative")
		assert.Positive(t, arc.Emotions[len(arc.Emotions)-1].Valence, "closing valence should be positive")
	})

	t.Run("Positive to negative trajectory classifies as fall", func(t *testing.T) {
		chunks := []*model.Chunk{
			mkChunk(0, "Ben felt warm and safe at home.", 0.2, "Ben"),
			mkChunk(1, "Ben laughed with joy and hope.", 0.2, "Ben"),
			mkChunk(2, "Ben knew fear and dread that night.", 0.5, "Ben"),
			mkChunk(3, "Ben was broken by grief and loss.", 0.6, "Ben"),
		}
		arcs := BuildArcs(chunks, config)
		require.Len(t, arcs, 1, "expected one arc")
		assert.Equal(t, model.ArcFall, arcs[0].Type, "expected a fall arc")
	})

	t.Run("Goals and relationships are collected", func(t *testing.T) {
		arcs := BuildArcs(growthChunks, config)
		require.Len(t, arcs, 1, "expected one arc")
		arc := arcs[0]
		require.NotEmpty(t, arc.Goals, "expected a goal annotation")
		assert.Equal(t, "escape the valley", arc.Goals[0].Goal, "expected the goal phrase")
		assert.Equal(t, 1, arc.Goals[0].Chunk, "goal should be keyed by chunk position")
		assert.InDelta(t, 0.5, arc.Relationships["Marco"], 0.001, "co-occurrence weight should be normalized by mention count")
	})

	t.Run("Mentions are ordered and excerpted", func(t *testing.T) {
		arcs := BuildArcs(growthChunks, config)
		require.Len(t, arcs, 1, "expected one arc")
		arc := arcs[0]
		assert.Equal(t, 0, arc.FirstMention(), "first mention should be the first chunk")
		assert.Equal(t, 3, arc.LastMention(), "last mention should be the last appearance")
		assert.Contains(t, arc.Mentions[0].Excerpt, "Anna", "excerpt should name the character")
	})

	t.Run("Arcs are sorted by mention count", func(t *testing.T) {
		chunks := []*model.Chunk{
			mkChunk(0, "Cara and Dane spoke quietly.", 0.2, "Cara", "Dane"),
			mkChunk(1, "Cara left before dawn.", 0.2, "Cara"),
			mkChunk(2, "Cara and Dane argued again.", 0.3, "Cara", "Dane"),
			mkChunk(3, "Cara walked on alone.", 0.2, "Cara"),
			mkChunk(4, "Dane followed at a distance.", 0.2, "Dane"),
		}
		arcs := BuildArcs(chunks, config)
		require.Len(t, arcs, 2, "expected both characters")
		assert.Equal(t, "Cara", arcs[0].Name, "character with more mentions should come first")
	})
}

func threadChunks() []*model.Chunk {
	return []*model.Chunk{
		mkChunk(0, "That evening the locket lay hidden beneath the floor. The harvest began.", 0.2),
		mkChunk(1, "That evening Anna met Marco while Bram watched Cole.", 0.3, "Anna", "Marco", "Bram", "Cole"),
		mkChunk(2, "That evening the harvest fields stretched wide.", 0.2, "Bram", "Cole"),
		mkChunk(3, "That evening she clutched the locket tightly.", 0.4),
		mkChunk(4, "That evening the harvest dispute was settled at last.", 0.3, "Anna", "Marco"),
		mkChunk(5, "That evening the locket glinted once more.", 0.4),
		mkChunk(6, "That evening rain fell on the roof.", 0.2),
		mkChunk(7, "Smoke rose in the distance.", 0.3),
		mkChunk(8, "The bells rang at dusk.", 0.2),
		mkChunk(9, "Anna and Marco walked home together.", 0.2, "Anna", "Marco"),
	}
}

func threadByTheme(threads []*model.NarrativeThread, theme string) *model.NarrativeThread {
	for _, thread := range threads {
		if thread.Theme == theme {
			return thread
		}
	}
	return nil
}

func TestBuildThreads(t *testing.T) {
	config := model.DefaultPipelineConfig()

	t.Run("Recurring character pairs form threads", func(t *testing.T) {
		threads := BuildThreads(threadChunks(), config)
		thread := threadByTheme(threads, "Anna and Marco")
		require.NotNil(t, thread, "expected a thread for the recurring pair")
		assert.Equal(t, []int{1, 4, 9}, thread.Chunks, "thread should list its member chunks in order")
		assert.Equal(t, []string{"Anna", "Marco"}, thread.Entities, "thread should carry its characters")
	})

	t.Run("Recurring theme terms form threads", func(t *testing.T) {
		threads := BuildThreads(threadChunks(), config)
		assert.NotNil(t, threadByTheme(threads, "locket"), "expected a thread for the recurring object")
		assert.NotNil(t, threadByTheme(threads, "harvest"), "expected a thread for the recurring theme")
	})

	t.Run("Near universal terms are not threads", func(t *testing.T) {
		threads := BuildThreads(threadChunks(), config)
		assert.Nil(t, threadByTheme(threads, "evening"), "terms in most chunks carry no thread signal")
	})

	t.Run("Threads reaching the final stretch are resolved", func(t *testing.T) {
		threads := BuildThreads(threadChunks(), config)
		thread := threadByTheme(threads, "Anna and Marco")
		require.NotNil(t, thread, "expected the pair thread")
		assert.True(t, thread.Resolved, "thread ending near the novel's end should be resolved")
	})

	t.Run("Closing markers resolve early-ending threads", func(t *testing.T) {
		threads := BuildThreads(threadChunks(), config)
		thread := threadByTheme(threads, "harvest")
		require.NotNil(t, thread, "expected the theme thread")
		assert.True(t, thread.Resolved, "closing marker in the last member chunk should resolve the thread")
	})

	t.Run("Threads ending early without closure are unresolved", func(t *testing.T) {
		threads := BuildThreads(threadChunks(), config)
		locket := threadByTheme(threads, "locket")
		require.NotNil(t, locket, "expected the object thread")
		assert.False(t, locket.Resolved, "thread abandoned mid-novel should be unresolved")
		pair := threadByTheme(threads, "Bram and Cole")
		require.NotNil(t, pair, "expected the early pair thread")
		assert.False(t, pair.Resolved, "pair thread abandoned early should be unresolved")
	})

	t.Run("Importance is bounded and ordered", func(t *testing.T) {
		threads := BuildThreads(threadChunks(), config)
		require.NotEmpty(t, threads, "expected threads")
		for _, thread := range threads {
			assert.GreaterOrEqual(t, thread.Importance, 0.0, "importance should be non-negative")
			assert.LessOrEqual(t, thread.Importance, 1.0, "importance should not exceed one")
		}
		for i := 1; i < len(threads); i++ {
			assert.GreaterOrEqual(t, threads[i-1].Importance, threads[i].Importance, "threads should be ordered by importance")
		}
	})

	t.Run("Empty input yields no threads", func(t *testing.T) {
		assert.Empty(t, BuildThreads(nil, config), "expected no threads for empty input")
	})
}

func TestSummarizeChapter(t *testing.T) {
	t.Run("Short chapters are returned whole", func(t *testing.T) {
		text := "A single quiet sentence."
		assert.Equal(t, text, SummarizeChapter(text, 3), "short text should pass through")
	})

	t.Run("Long chapters are reduced to the requested sentence count", func(t *testing.T) {
		text := "The harvest festival drew the whole village together. " +
			"A dog barked somewhere. " +
			"The harvest had failed twice and the village feared a third failure. " +
			"Someone coughed. " +
			"The village elders argued about the harvest through the night."
		summary := SummarizeChapter(text, 2)
		sentences := 0
		for _, c := range summary {
			if c == '.' {
				sentences++
			}
		}
		assert.Equal(t, 2, sentences, "summary should have the requested sentence count")
		assert.Contains(t, summary, "harvest", "summary should keep sentences about the dominant topic")
		assert.NotContains(t, summary, "dog barked", "summary should drop off-topic sentences")
	})

	t.Run("Summary preserves original sentence order", func(t *testing.T) {
		text := "The harvest festival drew the whole village together. " +
			"A dog barked somewhere. " +
			"The harvest had failed twice and the village feared a third failure. " +
			"Someone coughed. " +
			"The village elders argued about the harvest through the night."
		summary := SummarizeChapter(text, 3)
		first := strings.Index(summary, "festival")
		last := strings.Index(summary, "elders")
		require.GreaterOrEqual(t, first, 0, "expected the opening sentence")
		require.GreaterOrEqual(t, last, 0, "expected the closing sentence")
		assert.Less(t, first, last, "sentences should keep their original order")
	})

	t.Run("Summarization is deterministic", func(t *testing.T) {
		text := "The harvest festival drew the whole village together. " +
			"A dog barked somewhere. " +
			"The harvest had failed twice and the village feared a third failure. " +
			"Someone coughed. " +
			"The village elders argued about the harvest through the night."
		assert.Equal(t, SummarizeChapter(text, 2), SummarizeChapter(text, 2), "summaries should be identical across runs")
	})
}

func TestBuildStorySummary(t *testing.T) {
	config := model.DefaultPipelineConfig()

	t.Run("Summary aggregates artifact counts and tension", func(t *testing.T) {
		chunks := arcChunks()
		points := DetectPlotPoints(chunks, config)
		threads := BuildThreads(threadChunks(), config)
		summary := BuildStorySummary(chunks, points, nil, threads, 3)

		assert.Equal(t, "classic arc", summary.Structure, "full marker set should label a classic arc")
		assert.Equal(t, 6, summary.ClimaxPosition, "expected the detected climax position")
		assert.Equal(t, len(chunks), summary.ChunkCount, "expected the chunk count")
		assert.Equal(t, 3, summary.ChapterCount, "expected the chapter count")
		assert.Equal(t, len(threads), summary.ThreadCount, "expected the thread count")
		assert.InDelta(t, 0.85, summary.PeakTension, 0.001, "expected the peak tension")
		assert.Greater(t, summary.OpenThreads, 0, "unresolved threads should be counted")
	})

	t.Run("Undetermined markers label the structure undetermined", func(t *testing.T) {
		points := []*model.PlotPoint{{Type: model.PlotUndetermined, Position: 2}}
		summary := BuildStorySummary(nil, points, nil, nil, 0)
		assert.Equal(t, "undetermined", summary.Structure, "expected undetermined structure")
		assert.Equal(t, -1, summary.ClimaxPosition, "expected no climax position")
	})
}

func TestAnalyze(t *testing.T) {
	t.Run("Full analysis yields all artifacts without warnings", func(t *testing.T) {
		analyzer := New(model.DefaultPipelineConfig(), slog.Default())
		result := analyzer.Analyze(arcChunks(), 3)

		assert.NotEmpty(t, result.PlotPoints, "expected plot points")
		require.NotNil(t, result.Summary, "expected a story summary")
		assert.Equal(t, 3, result.Summary.ChapterCount, "chapter count should pass through")
		assert.Empty(t, result.Warnings, "expected no warnings on clean input")
	})

	t.Run("Empty chunk set degrades gracefully", func(t *testing.T) {
		analyzer := New(nil, nil)
		result := analyzer.Analyze(nil, 0)
		require.NotNil(t, result.Summary, "expected a summary even for empty input")
		assert.Equal(t, 0, result.Summary.ChunkCount, "expected zero chunks")
		assert.Empty(t, result.PlotPoints, "expected no plot points")
	})
}
