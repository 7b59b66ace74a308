package storyline

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/siherrmann/storyline/core/embedding"
	"github.com/siherrmann/storyline/core/pipeline"
	"github.com/siherrmann/storyline/core/search"
	"github.com/siherrmann/storyline/database"
	"github.com/siherrmann/storyline/helper"
	"github.com/siherrmann/storyline/model"
	loadSql "github.com/siherrmann/storyline/sql"
)

// Storyline provides a unified interface to the novel analysis pipeline and
// the version store
type Storyline struct {
	DB         *helper.Database
	Versions   *database.VersionsDBHandler
	Chunks     *database.ChunksDBHandler
	Chapters   *database.ChaptersDBHandler
	PlotPoints *database.PlotPointsDBHandler
	Pipeline   *pipeline.Orchestrator // set through UsePipeline or UseDefaultPipeline
	Engine     *search.Engine
	// Configuration and logging
	config *model.PipelineConfig
	log    *slog.Logger
}

// NewStoryline creates a new Storyline instance with all database handlers
// initialized. The processing pipeline is attached separately because it
// needs an embedding function; call UseDefaultPipeline or UsePipeline before
// processing.
func NewStoryline(dbConfig *helper.DatabaseConfiguration, pipelineConfig *model.PipelineConfig) (*Storyline, error) {
	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	if pipelineConfig == nil {
		pipelineConfig = model.DefaultPipelineConfig()
	}
	err := pipelineConfig.Validate()
	if err != nil {
		return nil, helper.NewError("validate pipeline configuration", err)
	}

	// Initialize database
	db := helper.NewDatabase("storyline", dbConfig, logger)
	err = loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// Create all handlers; the version handler composes the three table
	// handlers for atomic snapshot writes.
	// force=false to not reload if functions already exist.
	chunks, err := database.NewChunksDBHandler(db, pipelineConfig.EmbeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create chunks handler", err)
	}

	chapters, err := database.NewChaptersDBHandler(db, pipelineConfig.EmbeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create chapters handler", err)
	}

	plotPoints, err := database.NewPlotPointsDBHandler(db, pipelineConfig.EmbeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create plot points handler", err)
	}

	versions, err := database.NewVersionsDBHandler(db, chunks, chapters, plotPoints, false)
	if err != nil {
		return nil, helper.NewError("create versions handler", err)
	}

	return &Storyline{
		DB:         db,
		Versions:   versions,
		Chunks:     chunks,
		Chapters:   chapters,
		PlotPoints: plotPoints,
		config:     pipelineConfig,
		log:        logger,
	}, nil
}

// Close closes the database connection
func (s *Storyline) Close() error {
	if s.DB != nil && s.DB.Instance != nil {
		return s.DB.Instance.Close()
	}
	return nil
}

// UsePipeline attaches a processing pipeline built around the given embedding
// function. The embedding dimension must match the configured one.
func (s *Storyline) UsePipeline(embed embedding.EmbedFunc, opts ...pipeline.Option) error {
	orchestrator, err := pipeline.New(s.config, s.Versions, embed, s.log, opts...)
	if err != nil {
		return helper.NewError("create pipeline", err)
	}

	generator, err := embedding.NewGenerator(embed, s.config, s.log)
	if err != nil {
		return helper.NewError("create generator", err)
	}

	engine, err := search.NewEngine(s.Versions, s.Chunks, generator, s.log)
	if err != nil {
		return helper.NewError("create search engine", err)
	}

	s.Pipeline = orchestrator
	s.Engine = engine
	return nil
}

// UseDefaultPipeline attaches the default pipeline with the
// all-MiniLM-L6-v2 embedding model (384 dimensions)
func (s *Storyline) UseDefaultPipeline() error {
	embed, err := embedding.DefaultEmbedFunc()
	if err != nil {
		return helper.NewError("create default embedder", err)
	}
	return s.UsePipeline(embed)
}

// ProcessNovel runs the full analysis pipeline on the novel, stores the
// result as a new version and rebuilds the vector indexes
func (s *Storyline) ProcessNovel(ctx context.Context, novel *model.Novel) (*model.ProcessResult, error) {
	if s.Pipeline == nil {
		return nil, helper.NewError("process novel", fmt.Errorf("pipeline not set, use UsePipeline() first"))
	}

	result, err := s.Pipeline.ProcessNovel(ctx, novel)
	if err != nil {
		return nil, err
	}

	err = s.Versions.EnsureVectorIndexes(ctx, "hnsw", nil)
	if err != nil {
		return nil, helper.NewError("build vector indexes", err)
	}

	return result, nil
}

// ProcessRevision reprocesses the chapters named in changedKeys against the
// latest stored version and returns both the new version's result and the
// delta to the previous version
func (s *Storyline) ProcessRevision(ctx context.Context, novel *model.Novel, changedKeys []string) (*model.ProcessResult, *model.RevisionDelta, error) {
	if s.Pipeline == nil {
		return nil, nil, helper.NewError("process revision", fmt.Errorf("pipeline not set, use UsePipeline() first"))
	}

	result, delta, err := s.Pipeline.ProcessRevision(ctx, novel, changedKeys)
	if err != nil {
		return nil, nil, err
	}

	err = s.Versions.EnsureVectorIndexes(ctx, "hnsw", nil)
	if err != nil {
		return nil, nil, helper.NewError("build vector indexes", err)
	}

	return result, delta, nil
}

// AnalyzeRevision diffs two stored versions of one novel without
// reprocessing. The delta is recomputed on demand and never persisted.
func (s *Storyline) AnalyzeRevision(ctx context.Context, novelID string, prevVersionID string, currVersionID string) (*model.RevisionDelta, error) {
	if s.Pipeline == nil {
		return nil, helper.NewError("analyze revision", fmt.Errorf("pipeline not set, use UsePipeline() first"))
	}
	return s.Pipeline.AnalyzeRevision(ctx, novelID, prevVersionID, currVersionID)
}

// SearchSimilar performs a version-scoped similarity search over chunks. An
// empty version id targets the latest version.
func (s *Storyline) SearchSimilar(ctx context.Context, novelID string, versionID string, query string, config *model.SearchQuery) ([]*model.SearchResult, error) {
	if s.Engine == nil {
		return nil, helper.NewError("similarity search", fmt.Errorf("pipeline not set, use UsePipeline() first"))
	}
	return s.Engine.Search(ctx, novelID, versionID, query, config)
}

// PrepareChapterContext assembles the narrative context for one chapter:
// position in the story, nearest plot points, character states entering the
// chapter and threads active there
func (s *Storyline) PrepareChapterContext(ctx context.Context, novelID string, versionID string, chapterKey string) (*model.ChapterContext, error) {
	if s.Engine == nil {
		return nil, helper.NewError("prepare chapter context", fmt.Errorf("pipeline not set, use UsePipeline() first"))
	}
	return s.Engine.PrepareChapterContext(ctx, novelID, versionID, chapterKey)
}

// GetVersion returns one stored version snapshot
func (s *Storyline) GetVersion(novelID string, versionID string) (*model.Version, error) {
	return s.Versions.GetVersion(novelID, versionID)
}

// GetLatestVersion returns the most recent stored version of a novel
func (s *Storyline) GetLatestVersion(novelID string) (*model.Version, error) {
	return s.Versions.GetLatestVersion(novelID)
}

// ListVersions returns the version headers of a novel, newest first
func (s *Storyline) ListVersions(novelID string) ([]*model.Version, error) {
	return s.Versions.ListVersions(novelID)
}

// DeleteVersion removes a stored version and all its rows
func (s *Storyline) DeleteVersion(novelID string, versionID string) error {
	return s.Versions.DeleteVersion(novelID, versionID)
}
