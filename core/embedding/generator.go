package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/siherrmann/storyline/helper"
	"github.com/siherrmann/storyline/model"
)

// EmbedFunc produces one vector per input text. Implementations are expected
// to be safe for concurrent use.
type EmbedFunc func(texts []string) ([][]float32, error)

// Generator batches texts through an EmbedFunc and attaches the resulting
// vectors to chunks, chapters and plot points. Failures are retried with
// exponential backoff; a batch failure falls back to per-item calls so one
// bad input cannot poison its batch.
type Generator struct {
	embed      EmbedFunc
	config     *model.PipelineConfig
	log        *slog.Logger
	strategies map[Kind]Strategy
}

type GeneratorOption func(*Generator)

// WithStrategy overrides the default strategy for one embedding kind
func WithStrategy(s Strategy) GeneratorOption {
	return func(g *Generator) {
		g.strategies[s.Kind()] = s
	}
}

func NewGenerator(embed EmbedFunc, config *model.PipelineConfig, logger *slog.Logger, opts ...GeneratorOption) (*Generator, error) {
	if embed == nil {
		return nil, helper.NewError("NewGenerator", fmt.Errorf("embed function must not be nil"))
	}
	if config == nil {
		config = model.DefaultPipelineConfig()
	}
	g := &Generator{
		embed:  embed,
		config: config,
		log:    logger,
		strategies: map[Kind]Strategy{
			KindChunk:   ContextWindowStrategy{Window: config.ChunkOverlap},
			KindChapter: StructureStrategy{},
			KindPlot:    ThemeStrategy{},
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// EmbedChunks fills the Embedding of every chunk in place. Chunks must be in
// narrative order because the chunk strategy reads neighbor content.
func (g *Generator) EmbedChunks(ctx context.Context, chunks []*model.Chunk) error {
	strategy := g.strategies[KindChunk]
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		in := Input{Text: chunk.Content}
		if i > 0 && chunks[i-1].ChapterIndex == chunk.ChapterIndex {
			in.Before = chunks[i-1].Content
		}
		if i < len(chunks)-1 && chunks[i+1].ChapterIndex == chunk.ChapterIndex {
			in.After = chunks[i+1].Content
		}
		texts[i] = strategy.Compose(in)
	}

	vectors, err := g.embedAll(ctx, texts)
	if err != nil {
		return helper.NewError("EmbedChunks", err)
	}
	for i, chunk := range chunks {
		chunk.Embedding = vectors[i]
	}
	return nil
}

// EmbedChapters fills chapter embeddings from the chapter's chunk contents
func (g *Generator) EmbedChapters(ctx context.Context, chapters []*model.Chapter, chunks []*model.Chunk) error {
	strategy := g.strategies[KindChapter]
	texts := make([]string, len(chapters))
	for i, chapter := range chapters {
		var parts []string
		for _, chunk := range chunks {
			if chunk.ChapterIndex == chapter.Index {
				parts = append(parts, chunk.Content)
			}
		}
		texts[i] = strategy.Compose(Input{
			Text:    strings.Join(parts, " "),
			Title:   chapter.Title,
			Summary: chapter.Summary,
		})
	}

	vectors, err := g.embedAll(ctx, texts)
	if err != nil {
		return helper.NewError("EmbedChapters", err)
	}
	for i, chapter := range chapters {
		chapter.Embedding = vectors[i]
	}
	return nil
}

// EmbedPlotPoints fills plot point embeddings, augmenting each point's text
// with the threads and characters active around its position
func (g *Generator) EmbedPlotPoints(ctx context.Context, points []*model.PlotPoint, chunks []*model.Chunk, threads []*model.NarrativeThread) error {
	strategy := g.strategies[KindPlot]
	texts := make([]string, len(points))
	for i, point := range points {
		in := Input{Text: point.Summary}
		if point.Position >= 0 && point.Position < len(chunks) {
			if in.Text == "" {
				in.Text = chunks[point.Position].Content
			}
			in.Characters = chunks[point.Position].Entities
		}
		for _, thread := range threads {
			if thread.Touches(point.Position, point.Position) {
				in.Themes = append(in.Themes, thread.Theme)
			}
		}
		texts[i] = strategy.Compose(in)
	}

	vectors, err := g.embedAll(ctx, texts)
	if err != nil {
		return helper.NewError("EmbedPlotPoints", err)
	}
	for i, point := range points {
		point.Embedding = vectors[i]
	}
	return nil
}

// EmbedQuery embeds a single search query without any strategy decoration
func (g *Generator) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.embedAll(ctx, []string{text})
	if err != nil {
		return nil, helper.NewError("EmbedQuery", err)
	}
	return vectors[0], nil
}

// embedAll runs texts through the embed function in batches of
// config.BatchSize, preserving input order
func (g *Generator) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	batchSize := g.config.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	for start := 0; start < len(texts); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := g.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		copy(out[start:end], vectors)
	}
	return out, nil
}

// embedBatch embeds one batch with retries. If the whole batch keeps failing
// it degrades to per-item calls so a single bad input is isolated.
func (g *Generator) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := g.embedWithRetry(ctx, texts)
	if err == nil {
		return vectors, nil
	}
	if len(texts) == 1 {
		return nil, fmt.Errorf("%w: %v", model.ErrEmbeddingService, err)
	}

	if g.log != nil {
		g.log.Warn("batch embedding failed, retrying items individually", slog.Int("batchSize", len(texts)), slog.String("error", err.Error()))
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		single, err := g.embedWithRetry(ctx, []string{text})
		if err != nil {
			return nil, fmt.Errorf("%w: item %v: %v", model.ErrEmbeddingService, i, err)
		}
		out[i] = single[0]
	}
	return out, nil
}

func (g *Generator) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = 2 * time.Second

	var vectors [][]float32
	operation := func() error {
		result, err := g.embed(texts)
		if err != nil {
			return err
		}
		if len(result) != len(texts) {
			return backoff.Permanent(fmt.Errorf("embed function returned %v vectors for %v texts", len(result), len(texts)))
		}
		for i, vector := range result {
			if len(vector) != g.config.EmbeddingDim {
				return backoff.Permanent(fmt.Errorf("vector %v has dimension %v, expected %v", i, len(vector), g.config.EmbeddingDim))
			}
		}
		vectors = result
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(g.config.MaxRetries)), ctx))
	if err != nil {
		return nil, err
	}
	return vectors, nil
}
