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

// PlotPointsDBHandlerFunctions defines the interface for plot point
// database operations.
type PlotPointsDBHandlerFunctions interface {
	SelectPlotPointsByVersion(novelID string, versionID string) ([]*model.PlotPoint, error)
}

// PlotPointsDBHandler reads plot point rows. Writes go through the
// VersionsDBHandler transaction.
type PlotPointsDBHandler struct {
	db *helper.Database
}

// NewPlotPointsDBHandler creates a new plot points database handler with the
// given database and embedding dimension.
func NewPlotPointsDBHandler(db *helper.Database, embeddingDim int, force bool) (*PlotPointsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if embeddingDim <= 0 {
		return nil, helper.NewError("embedding dimension validation", fmt.Errorf("embedding dimension must be positive, got %v", embeddingDim))
	}

	plotPointsDbHandler := &PlotPointsDBHandler{
		db: db,
	}

	err := loadSql.LoadVersionsSql(db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load versions sql", err)
	}

	err = loadSql.LoadPlotPointsSql(db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load plot points sql", err)
	}

	err = plotPointsDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized PlotPointsDBHandler", "embeddingDim", embeddingDim)

	return plotPointsDbHandler, nil
}

// CreateTable creates the 'plot_points' table if it does not exist yet
func (h *PlotPointsDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_versions();`)
	if err != nil {
		return helper.NewError("init versions table", err)
	}

	_, err = h.db.Instance.ExecContext(ctx, `SELECT init_plot_points($1);`, embeddingDim)
	if err != nil {
		return helper.NewError("init plot points table", err)
	}

	h.db.Logger.Info("Checked/created table plot_points")

	return nil
}

// SelectPlotPointsByVersion returns all plot points of one version ordered
// by their chunk position
func (h *PlotPointsDBHandler) SelectPlotPointsByVersion(novelID string, versionID string) ([]*model.PlotPoint, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_plot_points_by_version($1, $2);`,
		novelID,
		versionID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var points []*model.PlotPoint
	for rows.Next() {
		point := &model.PlotPoint{}
		var plotType string
		err := rows.Scan(
			&point.ID,
			&point.NovelID,
			&point.VersionID,
			&plotType,
			&point.Position,
			&point.Summary,
			&point.Tension,
			pq.Array(&point.Embedding),
			&point.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		point.Type = model.PlotPointType(plotType)
		points = append(points, point)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return points, nil
}
