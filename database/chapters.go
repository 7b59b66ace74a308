package database

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/siherrmann/storyline/helper"
	"github.com/siherrmann/storyline/model"
	loadSql "github.com/siherrmann/storyline/sql"
)

// ChaptersDBHandlerFunctions defines the interface for version chapter
// database operations.
type ChaptersDBHandlerFunctions interface {
	SelectChaptersByVersion(novelID string, versionID string) ([]*model.Chapter, error)
}

// ChaptersDBHandler reads version chapter rows. Writes go through the
// VersionsDBHandler transaction.
type ChaptersDBHandler struct {
	db *helper.Database
}

// NewChaptersDBHandler creates a new chapters database handler with the
// given database and embedding dimension.
func NewChaptersDBHandler(db *helper.Database, embeddingDim int, force bool) (*ChaptersDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if embeddingDim <= 0 {
		return nil, helper.NewError("embedding dimension validation", fmt.Errorf("embedding dimension must be positive, got %v", embeddingDim))
	}

	chaptersDbHandler := &ChaptersDBHandler{
		db: db,
	}

	err := loadSql.LoadVersionsSql(db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load versions sql", err)
	}

	err = loadSql.LoadChaptersSql(db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load chapters sql", err)
	}

	err = chaptersDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ChaptersDBHandler", "embeddingDim", embeddingDim)

	return chaptersDbHandler, nil
}

// CreateTable creates the 'version_chapters' table if it does not exist yet
func (h *ChaptersDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_versions();`)
	if err != nil {
		return helper.NewError("init versions table", err)
	}

	_, err = h.db.Instance.ExecContext(ctx, `SELECT init_version_chapters($1);`, embeddingDim)
	if err != nil {
		return helper.NewError("init version chapters table", err)
	}

	h.db.Logger.Info("Checked/created table version_chapters")

	return nil
}

// SelectChaptersByVersion returns all chapters of one version in order
func (h *ChaptersDBHandler) SelectChaptersByVersion(novelID string, versionID string) ([]*model.Chapter, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_chapters_by_version($1, $2);`,
		novelID,
		versionID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var chapters []*model.Chapter
	for rows.Next() {
		chapter := &model.Chapter{}
		err := rows.Scan(
			&chapter.ID,
			&chapter.NovelID,
			&chapter.VersionID,
			&chapter.Index,
			&chapter.Key,
			&chapter.Title,
			&chapter.Summary,
			&chapter.StartChunk,
			&chapter.EndChunk,
			pq.Array(&chapter.Embedding),
			&chapter.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		chapters = append(chapters, chapter)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return chapters, nil
}
