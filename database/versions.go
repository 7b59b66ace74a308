package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/storyline/helper"
	"github.com/siherrmann/storyline/model"
	loadSql "github.com/siherrmann/storyline/sql"
)

// VersionsDBHandlerFunctions defines the interface for version snapshot
// database operations.
type VersionsDBHandlerFunctions interface {
	StoreVersion(ctx context.Context, version *model.Version) error
	GetVersion(novelID string, versionID string) (*model.Version, error)
	GetLatestVersion(novelID string) (*model.Version, error)
	ListVersions(novelID string) ([]*model.Version, error)
	DeleteVersion(novelID string, versionID string) error
}

// VersionsDBHandler is the write side of the version store. A version is
// persisted atomically in one transaction; partial versions are never
// visible to readers.
type VersionsDBHandler struct {
	db         *helper.Database
	chunks     *ChunksDBHandler
	chapters   *ChaptersDBHandler
	plotPoints *PlotPointsDBHandler
}

// NewVersionsDBHandler creates a new versions database handler on top of the
// three per-table handlers, which must share the same database.
func NewVersionsDBHandler(db *helper.Database, chunks *ChunksDBHandler, chapters *ChaptersDBHandler, plotPoints *PlotPointsDBHandler, force bool) (*VersionsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if chunks == nil || chapters == nil || plotPoints == nil {
		return nil, helper.NewError("handler validation", fmt.Errorf("all table handlers are required"))
	}

	versionsDbHandler := &VersionsDBHandler{
		db:         db,
		chunks:     chunks,
		chapters:   chapters,
		plotPoints: plotPoints,
	}

	err := loadSql.LoadVersionsSql(db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load versions sql", err)
	}

	err = versionsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized VersionsDBHandler")

	return versionsDbHandler, nil
}

// CreateTable creates the 'versions' table if it does not exist yet
func (h *VersionsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_versions();`)
	if err != nil {
		return helper.NewError("init versions table", err)
	}

	h.db.Logger.Info("Checked/created table versions")

	return nil
}

// StoreVersion persists a complete version snapshot in one transaction.
// Writes for the same novel id are serialized with an advisory lock; a
// concurrent store attempt fails with ErrVersionConflict instead of waiting.
func (h *VersionsDBHandler) StoreVersion(ctx context.Context, version *model.Version) error {
	if version == nil || version.ID == "" || version.NovelID == "" {
		return helper.NewError("version validation", fmt.Errorf("%w: version id and novel id are required", model.ErrInvalidInput))
	}

	tx, err := h.db.Instance.BeginTx(ctx, nil)
	if err != nil {
		return helper.NewError("begin transaction", err)
	}
	defer tx.Rollback()

	var locked bool
	err = tx.QueryRowContext(ctx, `SELECT pg_try_advisory_xact_lock(hashtext($1));`, version.NovelID).Scan(&locked)
	if err != nil {
		return helper.NewError("acquire novel lock", err)
	}
	if !locked {
		return helper.NewError("acquire novel lock", fmt.Errorf("%w %v", model.ErrVersionConflict, version.NovelID))
	}

	summaryJSON, err := json.Marshal(version.Summary)
	if err != nil {
		return helper.NewError("marshal summary", err)
	}
	arcsJSON, err := marshalOrEmptyList(version.Arcs)
	if err != nil {
		return helper.NewError("marshal arcs", err)
	}
	threadsJSON, err := marshalOrEmptyList(version.Threads)
	if err != nil {
		return helper.NewError("marshal threads", err)
	}
	warningsJSON, err := marshalOrEmptyList(version.Warnings)
	if err != nil {
		return helper.NewError("marshal warnings", err)
	}

	_, err = tx.ExecContext(ctx,
		`SELECT insert_version($1, $2, $3, $4, $5, $6, $7);`,
		version.ID,
		version.NovelID,
		version.ContentHash,
		summaryJSON,
		arcsJSON,
		threadsJSON,
		warningsJSON,
	)
	if err != nil {
		return helper.NewError("insert version", err)
	}

	for _, chunk := range version.Chunks {
		metadata := chunk.Metadata
		if metadata == nil {
			metadata = model.Metadata{}
		}
		_, err = tx.ExecContext(ctx,
			`SELECT insert_version_chunk($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);`,
			chunk.ID,
			version.NovelID,
			version.ID,
			chunk.Index,
			chunk.ChapterIndex,
			chunk.ChapterKey,
			chunk.Content,
			string(chunk.Type),
			pq.Array(chunk.Entities),
			chunk.Tension,
			pgvector.NewVector(chunk.Embedding),
			metadata,
		)
		if err != nil {
			return helper.NewError(fmt.Sprintf("insert chunk %v", chunk.Index), err)
		}
	}

	for _, chapter := range version.Chapters {
		_, err = tx.ExecContext(ctx,
			`SELECT insert_version_chapter($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`,
			chapter.ID,
			version.NovelID,
			version.ID,
			chapter.Index,
			chapter.Key,
			chapter.Title,
			chapter.Summary,
			chapter.StartChunk,
			chapter.EndChunk,
			pgvector.NewVector(chapter.Embedding),
		)
		if err != nil {
			return helper.NewError(fmt.Sprintf("insert chapter %v", chapter.Key), err)
		}
	}

	for _, point := range version.PlotPoints {
		_, err = tx.ExecContext(ctx,
			`SELECT insert_plot_point($1, $2, $3, $4, $5, $6, $7, $8);`,
			point.ID,
			version.NovelID,
			version.ID,
			string(point.Type),
			point.Position,
			point.Summary,
			point.Tension,
			pgvector.NewVector(point.Embedding),
		)
		if err != nil {
			return helper.NewError(fmt.Sprintf("insert plot point %v", point.Type), err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return helper.NewError("commit version", err)
	}

	h.db.Logger.Info("Stored version",
		"novelId", version.NovelID,
		"versionId", version.ID,
		"chunks", len(version.Chunks),
	)

	return nil
}

// GetVersion returns the full snapshot for one version, or ErrNotFound
func (h *VersionsDBHandler) GetVersion(novelID string, versionID string) (*model.Version, error) {
	version, err := h.scanVersionHeader(h.db.Instance.QueryRow(
		`SELECT * FROM select_version($1, $2);`,
		novelID,
		versionID,
	))
	if err != nil {
		return nil, err
	}

	return h.loadSnapshot(version)
}

// GetLatestVersion returns the most recent full snapshot of a novel, or
// ErrNotFound if the novel has no versions
func (h *VersionsDBHandler) GetLatestVersion(novelID string) (*model.Version, error) {
	version, err := h.scanVersionHeader(h.db.Instance.QueryRow(
		`SELECT * FROM select_latest_version($1);`,
		novelID,
	))
	if err != nil {
		return nil, err
	}

	return h.loadSnapshot(version)
}

// ListVersions returns the version headers of a novel, newest first, without
// chunk or chapter payloads
func (h *VersionsDBHandler) ListVersions(novelID string) ([]*model.Version, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_versions_by_novel($1);`,
		novelID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var versions []*model.Version
	for rows.Next() {
		version, err := h.scanVersionHeader(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return versions, nil
}

// DeleteVersion removes a version and, through cascading, all its rows
func (h *VersionsDBHandler) DeleteVersion(novelID string, versionID string) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_version($1, $2);`,
		novelID,
		versionID,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (h *VersionsDBHandler) scanVersionHeader(row rowScanner) (*model.Version, error) {
	version := &model.Version{}
	var summaryJSON, arcsJSON, threadsJSON, warningsJSON []byte

	err := row.Scan(
		&version.ID,
		&version.NovelID,
		&version.ContentHash,
		&summaryJSON,
		&arcsJSON,
		&threadsJSON,
		&warningsJSON,
		&version.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewError("select version", model.ErrNotFound)
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	if err := json.Unmarshal(summaryJSON, &version.Summary); err != nil {
		return nil, helper.NewError("unmarshal summary", err)
	}
	if err := json.Unmarshal(arcsJSON, &version.Arcs); err != nil {
		return nil, helper.NewError("unmarshal arcs", err)
	}
	if err := json.Unmarshal(threadsJSON, &version.Threads); err != nil {
		return nil, helper.NewError("unmarshal threads", err)
	}
	if err := json.Unmarshal(warningsJSON, &version.Warnings); err != nil {
		return nil, helper.NewError("unmarshal warnings", err)
	}

	return version, nil
}

// loadSnapshot fills the version header with its chunk, chapter and plot
// point rows
func (h *VersionsDBHandler) loadSnapshot(version *model.Version) (*model.Version, error) {
	chunks, err := h.chunks.SelectChunksByVersion(version.NovelID, version.ID)
	if err != nil {
		return nil, helper.NewError("select chunks", err)
	}
	version.Chunks = chunks

	chapters, err := h.chapters.SelectChaptersByVersion(version.NovelID, version.ID)
	if err != nil {
		return nil, helper.NewError("select chapters", err)
	}
	version.Chapters = chapters

	plotPoints, err := h.plotPoints.SelectPlotPointsByVersion(version.NovelID, version.ID)
	if err != nil {
		return nil, helper.NewError("select plot points", err)
	}
	version.PlotPoints = plotPoints

	return version, nil
}

// marshalOrEmptyList marshals a slice to JSON, mapping nil to an empty list
// so the JSONB columns never hold SQL NULL
func marshalOrEmptyList[T any](values []T) ([]byte, error) {
	if values == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(values)
}
