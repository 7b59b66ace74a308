package database

import (
	"context"
	"fmt"
	"time"

	"github.com/siherrmann/storyline/helper"
)

// changeIndexType drops and recreates one vector index with the requested
// access method.
// indexType: "hnsw" or "ivfflat"
// params: optional parameters for index creation
//   - For HNSW: "m" (int, default 16), "ef_construction" (int, default 64)
//   - For IVFFlat: "lists" (int, default 100)
func changeIndexType(ctx context.Context, db *helper.Database, table string, indexName string, indexType string, params map[string]interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	_, err := db.Instance.ExecContext(ctx, fmt.Sprintf(`DROP INDEX IF EXISTS %s;`, indexName))
	if err != nil {
		return helper.NewError("drop index", err)
	}

	var createIndexSQL string

	switch indexType {
	case "hnsw":
		m := 16
		efConstruction := 64

		if mVal, ok := params["m"].(int); ok {
			m = mVal
		}
		if efVal, ok := params["ef_construction"].(int); ok {
			efConstruction = efVal
		}

		createIndexSQL = fmt.Sprintf(
			`CREATE INDEX %s ON %s USING hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d);`,
			indexName, table, m, efConstruction,
		)

	case "ivfflat":
		lists := 100
		if listsVal, ok := params["lists"].(int); ok {
			lists = listsVal
		}

		createIndexSQL = fmt.Sprintf(
			`CREATE INDEX %s ON %s USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d);`,
			indexName, table, lists,
		)

	default:
		return helper.NewError("change index type", fmt.Errorf("unsupported index type: %s (use 'hnsw' or 'ivfflat')", indexType))
	}

	_, err = db.Instance.ExecContext(ctx, createIndexSQL)
	if err != nil {
		return helper.NewError("create index", err)
	}

	db.Logger.Info(fmt.Sprintf("Created %s index %s with params: %v", indexType, indexName, params))

	return nil
}

// ChangeIndexType rebuilds the ANN index over chunk embeddings
func (h *ChunksDBHandler) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	return changeIndexType(ctx, h.db, "version_chunks", "idx_version_chunks_embedding", indexType, params)
}

// ChangeIndexType rebuilds the ANN index over chapter embeddings
func (h *ChaptersDBHandler) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	return changeIndexType(ctx, h.db, "version_chapters", "idx_version_chapters_embedding", indexType, params)
}

// ChangeIndexType rebuilds the ANN index over plot point embeddings
func (h *PlotPointsDBHandler) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	return changeIndexType(ctx, h.db, "plot_points", "idx_plot_points_embedding", indexType, params)
}

// EnsureVectorIndexes builds the approximate nearest neighbour indexes for
// all three embedding columns. It is called after vector rows are written so
// the index build sees real data.
func (h *VersionsDBHandler) EnsureVectorIndexes(ctx context.Context, indexType string, params map[string]interface{}) error {
	err := h.chunks.ChangeIndexType(ctx, indexType, params)
	if err != nil {
		return helper.NewError("chunk index", err)
	}

	err = h.chapters.ChangeIndexType(ctx, indexType, params)
	if err != nil {
		return helper.NewError("chapter index", err)
	}

	err = h.plotPoints.ChangeIndexType(ctx, indexType, params)
	if err != nil {
		return helper.NewError("plot point index", err)
	}

	return nil
}
