package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/siherrmann/storyline/core/embedding"
	"github.com/siherrmann/storyline/database"
	"github.com/siherrmann/storyline/helper"
	"github.com/siherrmann/storyline/model"
)

// Engine answers version-scoped similarity queries and assembles chapter
// context for generation callers. All reads are against stored versions, never
// against in-flight pipeline state.
type Engine struct {
	versions  *database.VersionsDBHandler
	chunks    *database.ChunksDBHandler
	generator *embedding.Generator
	log       *slog.Logger
}

// NewEngine creates a new search engine over the version store
func NewEngine(versions *database.VersionsDBHandler, chunks *database.ChunksDBHandler, generator *embedding.Generator, logger *slog.Logger) (*Engine, error) {
	if versions == nil || chunks == nil {
		return nil, helper.NewError("handler validation", fmt.Errorf("versions and chunks handlers are required"))
	}
	if generator == nil {
		return nil, helper.NewError("generator validation", fmt.Errorf("embedding generator is required"))
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		versions:  versions,
		chunks:    chunks,
		generator: generator,
		log:       logger,
	}, nil
}

// resolveVersion loads the requested version, or the latest one when the
// version id is empty
func (e *Engine) resolveVersion(novelID string, versionID string) (*model.Version, error) {
	if versionID == "" {
		return e.versions.GetLatestVersion(novelID)
	}
	return e.versions.GetVersion(novelID, versionID)
}

// Search embeds the query text and returns the most similar chunks of one
// version, reranked by narrative position when the query asks for it. An empty
// version id targets the latest version.
func (e *Engine) Search(ctx context.Context, novelID string, versionID string, text string, query *model.SearchQuery) ([]*model.SearchResult, error) {
	if text == "" {
		return nil, helper.NewError("query validation", fmt.Errorf("%w: query text is empty", model.ErrInvalidInput))
	}
	if query == nil {
		defaultQuery := model.DefaultSearchQuery()
		query = &defaultQuery
	}

	version, err := e.resolveVersion(novelID, versionID)
	if err != nil {
		return nil, helper.NewError("resolve version", err)
	}

	queryEmbedding, err := e.generator.EmbedQuery(ctx, text)
	if err != nil {
		return nil, helper.NewError("embed query", err)
	}

	chunks, err := e.chunks.SelectChunksBySimilarity(ctx, novelID, version.ID, queryEmbedding, query)
	if err != nil {
		return nil, helper.NewError("similarity search", err)
	}

	results := rankResults(chunks, query, version.Summary.ChunkCount)

	e.log.Debug("Search finished",
		"novelId", novelID,
		"versionId", version.ID,
		"results", len(results),
	)

	return results, nil
}

// rankResults converts chunk rows into search results. When a position hint is
// set the similarity score is blended with proximity to the hinted chunk
// ordinal; otherwise the score is the similarity itself.
func rankResults(chunks []*model.Chunk, query *model.SearchQuery, chunkCount int) []*model.SearchResult {
	results := make([]*model.SearchResult, len(chunks))
	span := chunkCount - 1
	if span < 1 {
		span = 1
	}

	for i, chunk := range chunks {
		similarity := 0.0
		if chunk.Similarity != nil {
			similarity = *chunk.Similarity
		}

		score := similarity
		if query.PositionHint != nil {
			distance := chunk.Index - *query.PositionHint
			if distance < 0 {
				distance = -distance
			}
			proximity := 1.0 - float64(distance)/float64(span)
			if proximity < 0 {
				proximity = 0
			}
			weight := query.PositionWeight
			score = (1-weight)*similarity + weight*proximity
		}

		chunk.Score = score
		results[i] = &model.SearchResult{
			Chunk:      chunk,
			Similarity: similarity,
			Score:      score,
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results
}

// PrepareChapterContext assembles the narrative context for one chapter of one
// version: the chapter itself, its position in the story, the nearest plot
// points, each tracked character's state entering the chapter and the threads
// still active there. An empty version id targets the latest version.
func (e *Engine) PrepareChapterContext(ctx context.Context, novelID string, versionID string, chapterKey string) (*model.ChapterContext, error) {
	version, err := e.resolveVersion(novelID, versionID)
	if err != nil {
		return nil, helper.NewError("resolve version", err)
	}

	chapter := version.Chapter(chapterKey)
	if chapter == nil {
		return nil, helper.NewError("chapter lookup", fmt.Errorf("chapter %q: %w", chapterKey, model.ErrNotFound))
	}

	chunkCount := len(version.Chunks)
	position := 0.0
	if chunkCount > 0 {
		position = float64(chapter.StartChunk) / float64(chunkCount)
	}

	return &model.ChapterContext{
		Chapter:           chapter,
		NarrativePosition: position,
		NearestPlotPoints: nearestPlotPoints(version.PlotPoints, chapter, 3),
		CharacterStates:   characterStates(version.Arcs, chapter.StartChunk),
		ActiveThreads:     activeThreads(version.Threads, chapter),
	}, nil
}

// nearestPlotPoints returns up to limit plot points ordered by distance to the
// chapter's chunk range. Points inside the range have distance zero.
func nearestPlotPoints(points []*model.PlotPoint, chapter *model.Chapter, limit int) []*model.PlotPoint {
	type ranked struct {
		point    *model.PlotPoint
		distance int
	}

	rankedPoints := make([]ranked, 0, len(points))
	for _, point := range points {
		distance := 0
		if point.Position < chapter.StartChunk {
			distance = chapter.StartChunk - point.Position
		} else if point.Position > chapter.EndChunk {
			distance = point.Position - chapter.EndChunk
		}
		rankedPoints = append(rankedPoints, ranked{point: point, distance: distance})
	}

	sort.SliceStable(rankedPoints, func(i, j int) bool {
		return rankedPoints[i].distance < rankedPoints[j].distance
	})

	if limit > len(rankedPoints) {
		limit = len(rankedPoints)
	}
	nearest := make([]*model.PlotPoint, 0, limit)
	for _, r := range rankedPoints[:limit] {
		nearest = append(nearest, r.point)
	}
	return nearest
}

// characterStates derives each character's last known state strictly before
// the given chunk ordinal. Characters first appearing later are skipped.
func characterStates(arcs []*model.CharacterArc, beforeChunk int) []model.CharacterState {
	var states []model.CharacterState
	for _, arc := range arcs {
		first := arc.FirstMention()
		if first < 0 || first >= beforeChunk {
			continue
		}

		state := model.CharacterState{Name: arc.Name, LastSeen: first}
		for _, mention := range arc.Mentions {
			if mention.Chunk >= beforeChunk {
				break
			}
			state.LastSeen = mention.Chunk
		}

		if emotion := arc.LastEmotionBefore(beforeChunk); emotion != nil {
			state.Valence = emotion.Valence
			state.Emotion = emotion.Label
		}

		for _, goal := range arc.Goals {
			if goal.Chunk >= beforeChunk {
				break
			}
			state.LastGoal = goal.Goal
		}

		states = append(states, state)
	}
	return states
}

// activeThreads returns the threads still in play at the chapter: every thread
// touching the chapter's chunk range, plus unresolved threads set up before it
func activeThreads(threads []*model.NarrativeThread, chapter *model.Chapter) []*model.NarrativeThread {
	var active []*model.NarrativeThread
	for _, thread := range threads {
		if thread.Touches(chapter.StartChunk, chapter.EndChunk) {
			active = append(active, thread)
			continue
		}
		first := thread.FirstChunk()
		if !thread.Resolved && first >= 0 && first < chapter.StartChunk {
			active = append(active, thread)
		}
	}
	return active
}
