package database

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/storyline/helper"
	"github.com/siherrmann/storyline/model"
	loadSql "github.com/siherrmann/storyline/sql"
)

// ChunksDBHandlerFunctions defines the interface for version chunk
// database operations.
type ChunksDBHandlerFunctions interface {
	SelectChunksByVersion(novelID string, versionID string) ([]*model.Chunk, error)
	SelectChunksBySimilarity(ctx context.Context, novelID string, versionID string, embedding []float32, query *model.SearchQuery) ([]*model.Chunk, error)
}

// ChunksDBHandler reads version chunk rows. Writes go through the
// VersionsDBHandler transaction so a version is never partially visible.
type ChunksDBHandler struct {
	db *helper.Database
}

// NewChunksDBHandler creates a new chunks database handler with the given
// database and embedding dimension. The dimension is fixed at table creation
// time and must match the configured embedding model.
func NewChunksDBHandler(db *helper.Database, embeddingDim int, force bool) (*ChunksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if embeddingDim <= 0 {
		return nil, helper.NewError("embedding dimension validation", fmt.Errorf("embedding dimension must be positive, got %v", embeddingDim))
	}

	chunksDbHandler := &ChunksDBHandler{
		db: db,
	}

	err := loadSql.LoadVersionsSql(db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load versions sql", err)
	}

	err = loadSql.LoadChunksSql(db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load chunks sql", err)
	}

	err = chunksDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ChunksDBHandler", "embeddingDim", embeddingDim)

	return chunksDbHandler, nil
}

// CreateTable creates the 'version_chunks' table if it does not exist yet.
// The versions table is ensured first because of the foreign key.
func (h *ChunksDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_versions();`)
	if err != nil {
		return helper.NewError("init versions table", err)
	}

	_, err = h.db.Instance.ExecContext(ctx, `SELECT init_version_chunks($1);`, embeddingDim)
	if err != nil {
		return helper.NewError("init version chunks table", err)
	}

	h.db.Logger.Info("Checked/created table version_chunks")

	return nil
}

// SelectChunksByVersion returns all chunks of one version in ordinal order
func (h *ChunksDBHandler) SelectChunksByVersion(novelID string, versionID string) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_chunks_by_version($1, $2);`,
		novelID,
		versionID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		var semanticType string
		err := rows.Scan(
			&chunk.ID,
			&chunk.NovelID,
			&chunk.VersionID,
			&chunk.Index,
			&chunk.ChapterIndex,
			&chunk.ChapterKey,
			&chunk.Content,
			&semanticType,
			pq.Array(&chunk.Entities),
			&chunk.Tension,
			pq.Array(&chunk.Embedding),
			&chunk.Metadata,
			&chunk.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		chunk.Type = model.SemanticType(semanticType)
		chunks = append(chunks, chunk)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return chunks, nil
}

// SelectChunksBySimilarity returns the chunks of one version nearest to the
// query embedding by cosine distance, honoring the query's chapter and
// semantic type filters and minimum similarity.
func (h *ChunksDBHandler) SelectChunksBySimilarity(ctx context.Context, novelID string, versionID string, embedding []float32, query *model.SearchQuery) ([]*model.Chunk, error) {
	if len(embedding) == 0 {
		return nil, helper.NewError("embedding validation", fmt.Errorf("%w: query embedding is empty", model.ErrInvalidInput))
	}
	if query == nil {
		defaultQuery := model.DefaultSearchQuery()
		query = &defaultQuery
	}

	types := make([]string, 0, len(query.Types))
	for _, t := range query.Types {
		types = append(types, string(t))
	}

	rows, err := h.db.Instance.QueryContext(ctx,
		`SELECT * FROM select_chunks_by_similarity($1, $2, $3, $4, $5, $6, $7);`,
		pgvector.NewVector(embedding),
		novelID,
		versionID,
		query.ChapterKey,
		pq.Array(types),
		query.TopK,
		query.SimilarityThreshold,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		var semanticType string
		var similarity float64
		err := rows.Scan(
			&chunk.ID,
			&chunk.NovelID,
			&chunk.VersionID,
			&chunk.Index,
			&chunk.ChapterIndex,
			&chunk.ChapterKey,
			&chunk.Content,
			&semanticType,
			pq.Array(&chunk.Entities),
			&chunk.Tension,
			&chunk.Metadata,
			&chunk.CreatedAt,
			&similarity,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		chunk.Type = model.SemanticType(semanticType)
		chunk.Similarity = &similarity
		chunk.Score = similarity
		chunks = append(chunks, chunk)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return chunks, nil
}
