package database

import (
	"context"
	"testing"

	"github.com/siherrmann/storyline/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureVectorIndexes(t *testing.T) {
	database := initDB(t)
	versionsDbHandler := initHandlers(t, database, testEmbeddingDim)

	version := buildTestVersion("novel-index", model.ContentHash("indexed draft"))
	err := versionsDbHandler.StoreVersion(context.Background(), version)
	require.NoError(t, err, "Expected StoreVersion to not return an error")

	t.Run("HNSW indexes over all embedding columns", func(t *testing.T) {
		err := versionsDbHandler.EnsureVectorIndexes(context.Background(), "hnsw", map[string]interface{}{
			"m":               16,
			"ef_construction": 64,
		})
		assert.NoError(t, err, "Expected EnsureVectorIndexes to not return an error")

		for _, indexName := range []string{
			"idx_version_chunks_embedding",
			"idx_version_chapters_embedding",
			"idx_plot_points_embedding",
		} {
			var exists bool
			err := database.Instance.QueryRow(
				`SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = $1);`,
				indexName,
			).Scan(&exists)
			require.NoError(t, err, "Expected index lookup to not return an error")
			assert.True(t, exists, "Expected index %v to exist", indexName)
		}
	})

	t.Run("Rebuild as IVFFlat", func(t *testing.T) {
		err := versionsDbHandler.chunks.ChangeIndexType(context.Background(), "ivfflat", map[string]interface{}{
			"lists": 10,
		})
		assert.NoError(t, err, "Expected ChangeIndexType to not return an error")
	})

	t.Run("Unsupported index type", func(t *testing.T) {
		err := versionsDbHandler.chunks.ChangeIndexType(context.Background(), "btree", nil)
		assert.Error(t, err, "Expected error for an unsupported index type")
		assert.Contains(t, err.Error(), "unsupported index type", "Expected specific error message for unsupported index type")
	})

	t.Run("Search still works with an index in place", func(t *testing.T) {
		query := &model.SearchQuery{TopK: 3, SimilarityThreshold: 0.0}
		results, err := versionsDbHandler.chunks.SelectChunksBySimilarity(context.Background(), version.NovelID, version.ID, unitVector(0), query)
		assert.NoError(t, err, "Expected SelectChunksBySimilarity to not return an error")
		assert.NotEmpty(t, results, "Expected to find chunks with the index in place")
	})
}
