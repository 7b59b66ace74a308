package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/storyline/core/analysis"
	"github.com/siherrmann/storyline/core/embedding"
	"github.com/siherrmann/storyline/core/extract"
	"github.com/siherrmann/storyline/core/revision"
	"github.com/siherrmann/storyline/core/segmenter"
	"github.com/siherrmann/storyline/helper"
	"github.com/siherrmann/storyline/model"
	"golang.org/x/sync/errgroup"
)

// Store is the persistence boundary of the orchestrator. The database
// version handlers satisfy it; tests swap in an in-memory fake.
type Store interface {
	StoreVersion(ctx context.Context, version *model.Version) error
	GetVersion(novelID string, versionID string) (*model.Version, error)
	GetLatestVersion(novelID string) (*model.Version, error)
}

// Orchestrator sequences segmentation, extraction, embedding and structural
// analysis into versions. Chunk-level work runs in parallel; chapter- and
// version-level steps are sequential barriers behind it. At most one run per
// novel id is in flight at a time.
type Orchestrator struct {
	config    *model.PipelineConfig
	store     Store
	segmenter *segmenter.Segmenter
	extractor *extract.Extractor
	generator *embedding.Generator
	analyzer  *analysis.Analyzer
	differ    *revision.Differ
	log       *slog.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

// Option configures an Orchestrator
type Option func(*options)

type options struct {
	extractorOpts []extract.Option
	generatorOpts []embedding.GeneratorOption
}

// WithExtractorOptions passes options to the entity and tension extractor,
// e.g. a model-backed entity function
func WithExtractorOptions(opts ...extract.Option) Option {
	return func(o *options) {
		o.extractorOpts = append(o.extractorOpts, opts...)
	}
}

// WithGeneratorOptions passes options to the embedding generator, e.g. a
// custom composition strategy
func WithGeneratorOptions(opts ...embedding.GeneratorOption) Option {
	return func(o *options) {
		o.generatorOpts = append(o.generatorOpts, opts...)
	}
}

// New creates a new Orchestrator over the given store and embedding function
func New(config *model.PipelineConfig, store Store, embed embedding.EmbedFunc, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, helper.NewError("store validation", fmt.Errorf("store is required"))
	}
	if config == nil {
		config = model.DefaultPipelineConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, helper.NewError("config validation", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	generator, err := embedding.NewGenerator(embed, config, logger, o.generatorOpts...)
	if err != nil {
		return nil, helper.NewError("create generator", err)
	}

	return &Orchestrator{
		config:    config,
		store:     store,
		segmenter: segmenter.New(config),
		extractor: extract.New(config, logger, o.extractorOpts...),
		generator: generator,
		analyzer:  analysis.New(config, logger),
		differ:    revision.New(config, logger),
		log:       logger,
		inFlight:  make(map[string]bool),
	}, nil
}

// acquire reserves the novel for one run. A second run for the same novel id
// while the first is in flight fails with ErrVersionConflict.
func (o *Orchestrator) acquire(novelID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight[novelID] {
		return helper.NewError("acquire novel", fmt.Errorf("%w %v", model.ErrVersionConflict, novelID))
	}
	o.inFlight[novelID] = true
	return nil
}

func (o *Orchestrator) release(novelID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, novelID)
}

// ProcessNovel runs the full pipeline on the novel and stores the result as a
// new version. Cancellation at any point aborts the run without storing.
func (o *Orchestrator) ProcessNovel(ctx context.Context, novel *model.Novel) (*model.ProcessResult, error) {
	if novel == nil {
		return nil, helper.NewError("novel validation", fmt.Errorf("%w: novel is nil", model.ErrInvalidInput))
	}
	if err := o.acquire(novel.ID); err != nil {
		return nil, err
	}
	defer o.release(novel.ID)

	start := time.Now()

	chunks, err := o.segmenter.Segment(novel)
	if err != nil {
		return nil, helper.NewError("segment", err)
	}

	warnings, err := o.runChunkStage(ctx, chunks)
	if err != nil {
		return nil, err
	}

	analyzed := o.analyzer.Analyze(chunks, len(novel.Chapters))
	warnings = append(warnings, analyzed.Warnings...)

	chapters := o.buildChapters(novel, chunks)
	err = o.generator.EmbedChapters(ctx, chapters, chunks)
	if err != nil {
		return nil, helper.NewError("embed chapters", err)
	}
	err = o.generator.EmbedPlotPoints(ctx, analyzed.PlotPoints, chunks, analyzed.Threads)
	if err != nil {
		return nil, helper.NewError("embed plot points", err)
	}

	version := o.assembleVersion(novel, chunks, chapters, analyzed, warnings)
	err = o.storeVersion(ctx, version)
	if err != nil {
		return nil, err
	}

	o.log.Info("Processed novel",
		"novelId", novel.ID,
		"versionId", version.ID,
		"chunks", len(chunks),
		"duration", time.Since(start),
	)

	return processResult(version, 0, time.Since(start)), nil
}

// ProcessRevision reprocesses only the chapters listed in changedKeys and
// carries everything else over from the latest stored version by value. Plot
// structure is recomputed over the merged chunk sequence. The returned delta
// compares the previous version against the new one.
func (o *Orchestrator) ProcessRevision(ctx context.Context, novel *model.Novel, changedKeys []string) (*model.ProcessResult, *model.RevisionDelta, error) {
	if novel == nil {
		return nil, nil, helper.NewError("novel validation", fmt.Errorf("%w: novel is nil", model.ErrInvalidInput))
	}
	if err := o.acquire(novel.ID); err != nil {
		return nil, nil, err
	}
	defer o.release(novel.ID)

	start := time.Now()

	prev, err := o.store.GetLatestVersion(novel.ID)
	if err != nil {
		return nil, nil, helper.NewError("load previous version", err)
	}

	changed := make(map[string]bool, len(changedKeys))
	for _, key := range changedKeys {
		changed[key] = true
	}

	allChunks, err := o.segmenter.Segment(novel)
	if err != nil {
		return nil, nil, helper.NewError("segment", err)
	}

	freshChunks, freshChapters, warnings, err := o.processChangedChapters(ctx, novel, allChunks, changed)
	if err != nil {
		return nil, nil, err
	}

	chunks, chapters, err := revision.Merge(revision.MergeInput{
		Prev:          prev,
		Novel:         novel,
		Changed:       changed,
		FreshChunks:   freshChunks,
		FreshChapters: freshChapters,
	})
	if err != nil {
		return nil, nil, helper.NewError("merge", err)
	}

	// Changed chapters were smoothed in isolation; re-cap the merged series so
	// the seams to carried chapters honor the configured maximum delta.
	extract.CapTensionDeltas(chunks, o.config.MaxTensionDelta)

	analyzed := o.analyzer.Analyze(chunks, len(novel.Chapters))
	warnings = append(warnings, analyzed.Warnings...)

	err = o.generator.EmbedPlotPoints(ctx, analyzed.PlotPoints, chunks, analyzed.Threads)
	if err != nil {
		return nil, nil, helper.NewError("embed plot points", err)
	}

	version := o.assembleVersion(novel, chunks, chapters, analyzed, warnings)
	err = o.storeVersion(ctx, version)
	if err != nil {
		return nil, nil, err
	}

	delta, err := o.differ.Diff(prev, version)
	if err != nil {
		return nil, nil, helper.NewError("diff versions", err)
	}

	reused := len(novel.Chapters) - len(changed)
	o.log.Info("Processed revision",
		"novelId", novel.ID,
		"versionId", version.ID,
		"changedChapters", len(changed),
		"reusedChapters", reused,
		"duration", time.Since(start),
	)

	return processResult(version, reused, time.Since(start)), delta, nil
}

// AnalyzeRevision diffs two stored versions without reprocessing anything.
// The delta is recomputed on demand and never persisted.
func (o *Orchestrator) AnalyzeRevision(ctx context.Context, novelID string, prevVersionID string, currVersionID string) (*model.RevisionDelta, error) {
	prev, err := o.store.GetVersion(novelID, prevVersionID)
	if err != nil {
		return nil, helper.NewError("load previous version", err)
	}
	curr, err := o.store.GetVersion(novelID, currVersionID)
	if err != nil {
		return nil, helper.NewError("load current version", err)
	}
	return o.differ.Diff(prev, curr)
}

// runChunkStage runs extraction and chunk embedding concurrently over the
// full ordered chunk sequence. The two stages write disjoint chunk fields.
func (o *Orchestrator) runChunkStage(ctx context.Context, chunks []*model.Chunk) ([]model.Warning, error) {
	var warnings []model.Warning

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		warnings = o.extractor.Extract(chunks)
		return nil
	})
	g.Go(func() error {
		return o.generator.EmbedChunks(gctx, chunks)
	})
	if err := g.Wait(); err != nil {
		return nil, helper.NewError("chunk stage", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return warnings, nil
}

// processChangedChapters runs the chunk stage on each changed chapter in
// isolation and builds its fresh chapter record. Chapters run in parallel;
// chunk order within a chapter is preserved.
func (o *Orchestrator) processChangedChapters(ctx context.Context, novel *model.Novel, allChunks []*model.Chunk, changed map[string]bool) (map[string][]*model.Chunk, map[string]*model.Chapter, []model.Warning, error) {
	freshChunks := make(map[string][]*model.Chunk, len(changed))
	freshChapters := make(map[string]*model.Chapter, len(changed))
	var warnings []model.Warning
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for chapterIndex, boundary := range novel.Chapters {
		if !changed[boundary.Key] {
			continue
		}

		var chapterChunks []*model.Chunk
		for _, chunk := range allChunks {
			if chunk.ChapterKey == boundary.Key {
				chapterChunks = append(chapterChunks, chunk)
			}
		}
		if len(chapterChunks) == 0 {
			return nil, nil, nil, helper.NewError("process changed chapter", fmt.Errorf("%w: chapter %q produced no chunks", model.ErrInvalidInput, boundary.Key))
		}

		boundary := boundary
		chapterIndex := chapterIndex
		g.Go(func() error {
			chapterWarnings := o.extractor.Extract(chapterChunks)
			err := o.generator.EmbedChunks(gctx, chapterChunks)
			if err != nil {
				return err
			}

			chapter := &model.Chapter{
				ID:      uuid.New(),
				NovelID: novel.ID,
				Index:   chapterIndex,
				Key:     boundary.Key,
				Title:   boundary.Title,
				Summary: analysis.SummarizeChapter(novel.ChapterText(chapterIndex), 3),
			}
			err = o.generator.EmbedChapters(gctx, []*model.Chapter{chapter}, chapterChunks)
			if err != nil {
				return err
			}

			mu.Lock()
			freshChunks[boundary.Key] = chapterChunks
			freshChapters[boundary.Key] = chapter
			warnings = append(warnings, chapterWarnings...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, nil, helper.NewError("process changed chapters", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, nil, err
	}
	return freshChunks, freshChapters, warnings, nil
}

// buildChapters creates the chapter records for a full run, with extractive
// summaries and chunk ranges derived from the segmented sequence
func (o *Orchestrator) buildChapters(novel *model.Novel, chunks []*model.Chunk) []*model.Chapter {
	chapters := make([]*model.Chapter, 0, len(novel.Chapters))
	for chapterIndex, boundary := range novel.Chapters {
		chapter := &model.Chapter{
			ID:         uuid.New(),
			NovelID:    novel.ID,
			Index:      chapterIndex,
			Key:        boundary.Key,
			Title:      boundary.Title,
			Summary:    analysis.SummarizeChapter(novel.ChapterText(chapterIndex), 3),
			StartChunk: -1,
		}
		for _, chunk := range chunks {
			if chunk.ChapterIndex != chapterIndex {
				continue
			}
			if chapter.StartChunk < 0 {
				chapter.StartChunk = chunk.Index
			}
			chapter.EndChunk = chunk.Index
		}
		chapters = append(chapters, chapter)
	}
	return chapters
}

// assembleVersion stamps ids and version ownership onto all artifacts and
// packs them into a new immutable snapshot
func (o *Orchestrator) assembleVersion(novel *model.Novel, chunks []*model.Chunk, chapters []*model.Chapter, analyzed *analysis.Result, warnings []model.Warning) *model.Version {
	now := time.Now()
	contentHash := model.ContentHash(novel.Text)
	versionID := model.NewVersionID(novel.ID, contentHash, now)

	for _, chunk := range chunks {
		if chunk.ID == uuid.Nil {
			chunk.ID = uuid.New()
		}
		chunk.NovelID = novel.ID
		chunk.VersionID = versionID
	}
	for _, chapter := range chapters {
		if chapter.ID == uuid.Nil {
			chapter.ID = uuid.New()
		}
		chapter.NovelID = novel.ID
		chapter.VersionID = versionID
	}
	for _, point := range analyzed.PlotPoints {
		point.NovelID = novel.ID
		point.VersionID = versionID
	}

	summary := model.StorySummary{}
	if analyzed.Summary != nil {
		summary = *analyzed.Summary
	}

	return &model.Version{
		ID:          versionID,
		NovelID:     novel.ID,
		ContentHash: contentHash,
		CreatedAt:   now,
		Chunks:      chunks,
		Chapters:    chapters,
		PlotPoints:  analyzed.PlotPoints,
		Arcs:        analyzed.Arcs,
		Threads:     analyzed.Threads,
		Summary:     summary,
		Warnings:    warnings,
	}
}

// storeVersion is the single write barrier: nothing is persisted when the
// context was cancelled beforehand
func (o *Orchestrator) storeVersion(ctx context.Context, version *model.Version) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := o.store.StoreVersion(ctx, version)
	if err != nil {
		return helper.NewError("store version", err)
	}
	return nil
}

func processResult(version *model.Version, reused int, duration time.Duration) *model.ProcessResult {
	return &model.ProcessResult{
		VersionID:   version.ID,
		PlotSummary: version.Summary,
		Stats: model.ProcessStats{
			ChunkCount:   len(version.Chunks),
			ChapterCount: len(version.Chapters),
			WarningCount: len(version.Warnings),
			Reused:       reused,
			Duration:     duration,
		},
		Warnings: version.Warnings,
	}
}
