package storyline

import (
	"context"
	"hash/fnv"
	"log"
	"testing"

	"github.com/siherrmann/storyline/helper"
	"github.com/siherrmann/storyline/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
)

var dbPort string

const testEmbeddingDim = 16

func TestMain(m *testing.M) {
	var teardown func(ctx context.Context, opts ...testcontainers.TerminateOption) error
	var err error
	teardown, dbPort, err = helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("error starting postgres container: %v", err)
	}

	m.Run()

	if teardown != nil && teardown(context.Background()) != nil {
		log.Fatalf("error tearing down postgres container: %v", err)
	}
}

// hashEmbed is a deterministic test embedder: identical text always yields
// the identical vector
func hashEmbed(texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vector := make([]float32, testEmbeddingDim)
		h := fnv.New64a()
		h.Write([]byte(text))
		seed := h.Sum64()
		for d := range vector {
			seed = seed*6364136223846793005 + 1442695040888963407
			vector[d] = float32(int32(seed>>32)) / float32(1<<31)
		}
		vectors[i] = vector
	}
	return vectors, nil
}

func testConfig() *model.PipelineConfig {
	config := model.DefaultPipelineConfig()
	config.ChunkSize = 200
	config.ChunkOverlap = 40
	config.MinTextLength = 50
	config.EmbeddingDim = testEmbeddingDim
	config.MinMentions = 2
	return config
}

func testNovel(id string) *model.Novel {
	return model.NewNovelFromChapters(id, []model.ChapterInput{
		{Key: "ch1", Title: "The Harvest", Text: "Anna walked through the quiet village at dawn. The harvest had been good this year and the granaries were full. Anna greeted the baker and the old miller on her way to the square. Marco waved to Anna from the well. The morning felt calm and ordinary, the kind of morning the village had known for years."},
		{Key: "ch2", Title: "The Fire", Text: "That night a fire broke out in the granary. Anna screamed and ran toward the flames. Marco fought the blaze beside her, beating at the burning grain with wet sacks. The fight against the fire raged for hours and the danger grew with every gust of wind. The granary collapsed and Marco dragged Anna back from the ruin."},
		{Key: "ch3", Title: "The Ashes", Text: "In the morning the village gathered in the ashes. The panic had passed and a weary peace settled over the square. Anna rested beside Marco and watched the smoke drift away. The village would rebuild, the miller said, and the others nodded. Anna felt calm again, and the quiet returned to the valley at last."},
	})
}

func initStoryline(t *testing.T) *Storyline {
	helper.SetTestDatabaseConfigEnvs(t, dbPort)
	dbConfig, err := helper.NewDatabaseConfiguration()
	require.NoError(t, err, "failed to create database configuration")

	storyline, err := NewStoryline(dbConfig, testConfig())
	require.NoError(t, err, "Expected NewStoryline to not return an error")
	t.Cleanup(func() { storyline.Close() })

	err = storyline.UsePipeline(hashEmbed)
	require.NoError(t, err, "Expected UsePipeline to not return an error")

	return storyline
}

func TestNewStoryline(t *testing.T) {
	storyline := initStoryline(t)
	require.NotNil(t, storyline.DB, "Expected a database connection")
	require.NotNil(t, storyline.Versions, "Expected a versions handler")
	require.NotNil(t, storyline.Pipeline, "Expected the pipeline to be attached")
	require.NotNil(t, storyline.Engine, "Expected the search engine to be attached")
}

func TestStorylineWithoutPipeline(t *testing.T) {
	helper.SetTestDatabaseConfigEnvs(t, dbPort)
	dbConfig, err := helper.NewDatabaseConfiguration()
	require.NoError(t, err, "failed to create database configuration")

	storyline, err := NewStoryline(dbConfig, testConfig())
	require.NoError(t, err, "Expected NewStoryline to not return an error")
	defer storyline.Close()

	_, err = storyline.ProcessNovel(context.Background(), testNovel("novel-nopipe"))
	assert.Error(t, err, "Expected an error without an attached pipeline")
	assert.Contains(t, err.Error(), "pipeline not set", "Expected specific error message for a missing pipeline")

	_, err = storyline.SearchSimilar(context.Background(), "novel-nopipe", "", "anything", nil)
	assert.Error(t, err, "Expected an error without an attached pipeline")
}

func TestStorylineEndToEnd(t *testing.T) {
	storyline := initStoryline(t)
	novel := testNovel("novel-e2e")

	result, err := storyline.ProcessNovel(context.Background(), novel)
	require.NoError(t, err, "Expected ProcessNovel to not return an error")
	require.NotEmpty(t, result.VersionID, "Expected a version id")
	assert.Greater(t, result.Stats.ChunkCount, 0, "Expected chunks to be produced")
	assert.Equal(t, 3, result.Stats.ChapterCount, "Expected all three chapters")

	t.Run("Stored version is complete", func(t *testing.T) {
		version, err := storyline.GetVersion(novel.ID, result.VersionID)
		require.NoError(t, err, "Expected GetVersion to not return an error")
		assert.Len(t, version.Chunks, result.Stats.ChunkCount, "Expected all chunks stored")
		assert.Len(t, version.Chapters, 3, "Expected all chapters stored")
		assert.NotEmpty(t, version.PlotPoints, "Expected plot points stored")
		assert.NotEmpty(t, version.Arcs, "Expected character arcs stored")
	})

	t.Run("SearchSimilar finds the fire", func(t *testing.T) {
		// The deterministic embedder maps identical text to identical
		// vectors, so querying with a stored chunk's composed content is
		// not possible here; a plain query still returns ranked results.
		query := &model.SearchQuery{TopK: 3, SimilarityThreshold: -1.0}
		results, err := storyline.SearchSimilar(context.Background(), novel.ID, "", "a fire breaks out", query)
		require.NoError(t, err, "Expected SearchSimilar to not return an error")
		require.NotEmpty(t, results, "Expected search results")
		assert.LessOrEqual(t, len(results), 3, "Expected at most TopK results")
	})

	t.Run("PrepareChapterContext for the middle chapter", func(t *testing.T) {
		chapterContext, err := storyline.PrepareChapterContext(context.Background(), novel.ID, "", "ch2")
		require.NoError(t, err, "Expected PrepareChapterContext to not return an error")
		assert.Equal(t, "ch2", chapterContext.Chapter.Key, "Expected the requested chapter")
		assert.Greater(t, chapterContext.NarrativePosition, 0.0, "Expected a nonzero narrative position")
		assert.NotEmpty(t, chapterContext.CharacterStates, "Expected character states entering the chapter")
		for _, thread := range chapterContext.ActiveThreads {
			assert.NotEmpty(t, thread.Theme, "Expected every active thread to carry a theme")
		}
	})

	t.Run("Revision with zero changed chapters is value equal", func(t *testing.T) {
		revResult, delta, err := storyline.ProcessRevision(context.Background(), novel, nil)
		require.NoError(t, err, "Expected ProcessRevision to not return an error")
		assert.NotEqual(t, result.VersionID, revResult.VersionID, "Expected a distinct version id")
		assert.Equal(t, 3, revResult.Stats.Reused, "Expected all chapters reused")

		prev, err := storyline.GetVersion(novel.ID, result.VersionID)
		require.NoError(t, err)
		curr, err := storyline.GetVersion(novel.ID, revResult.VersionID)
		require.NoError(t, err)
		require.Len(t, curr.Chunks, len(prev.Chunks), "Expected the same chunk count")
		for i, chunk := range curr.Chunks {
			assert.Equal(t, prev.Chunks[i].Embedding, chunk.Embedding, "Expected carried embeddings")
		}

		for _, change := range delta.ChapterChanges {
			assert.Equal(t, model.ChangeUnchanged, change.Change, "Expected every chapter unchanged")
		}
	})

	t.Run("ListVersions returns both versions newest first", func(t *testing.T) {
		versions, err := storyline.ListVersions(novel.ID)
		require.NoError(t, err, "Expected ListVersions to not return an error")
		require.Len(t, versions, 2, "Expected both versions listed")
		assert.NotEqual(t, versions[0].ID, versions[1].ID, "Expected distinct version ids")
	})

	t.Run("AnalyzeRevision between the stored versions", func(t *testing.T) {
		versions, err := storyline.ListVersions(novel.ID)
		require.NoError(t, err)
		require.Len(t, versions, 2)

		delta, err := storyline.AnalyzeRevision(context.Background(), novel.ID, versions[1].ID, versions[0].ID)
		require.NoError(t, err, "Expected AnalyzeRevision to not return an error")
		assert.Equal(t, versions[1].ID, delta.PrevVersionID, "Expected the older version as previous")
	})

	t.Run("DeleteVersion removes the older version", func(t *testing.T) {
		versions, err := storyline.ListVersions(novel.ID)
		require.NoError(t, err)
		require.Len(t, versions, 2)

		err = storyline.DeleteVersion(novel.ID, versions[1].ID)
		require.NoError(t, err, "Expected DeleteVersion to not return an error")

		remaining, err := storyline.ListVersions(novel.ID)
		require.NoError(t, err)
		assert.Len(t, remaining, 1, "Expected one version left")
	})
}
