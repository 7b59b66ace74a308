package analysis

import (
	"fmt"
	"log/slog"

	"github.com/siherrmann/storyline/model"
)

// Analyzer derives plot points, character arcs and narrative threads from
// one version's complete ordered chunk sequence. It must not run on partial
// data; the orchestrator only calls it after the chunk stages have joined.
type Analyzer struct {
	config *model.PipelineConfig
	log    *slog.Logger
}

// Result carries whatever artifacts the analyzer produced. A failed artifact
// leaves its field empty and adds a warning; the others are still usable.
type Result struct {
	PlotPoints []*model.PlotPoint
	Arcs       []*model.CharacterArc
	Threads    []*model.NarrativeThread
	Summary    *model.StorySummary
	Warnings   []model.Warning
}

func New(config *model.PipelineConfig, logger *slog.Logger) *Analyzer {
	if config == nil {
		config = model.DefaultPipelineConfig()
	}
	return &Analyzer{config: config, log: logger}
}

// Analyze runs the three artifact builders independently, so a failure in
// one does not block the others, and finishes with the story summary over
// whatever succeeded
func (a *Analyzer) Analyze(chunks []*model.Chunk, chapterCount int) *Result {
	result := &Result{}

	a.runArtifact(result, "plot", func() {
		result.PlotPoints = DetectPlotPoints(chunks, a.config)
	})
	a.runArtifact(result, "arcs", func() {
		result.Arcs = BuildArcs(chunks, a.config)
	})
	a.runArtifact(result, "threads", func() {
		result.Threads = BuildThreads(chunks, a.config)
	})

	result.Summary = BuildStorySummary(chunks, result.PlotPoints, result.Arcs, result.Threads, chapterCount)

	if a.log != nil {
		for _, point := range result.PlotPoints {
			a.log.Info("plot point detected", slog.String("point", describePoint(point)))
		}
	}
	return result
}

// runArtifact isolates a builder so a panic degrades to a warning on the
// version instead of aborting the whole run
func (a *Analyzer) runArtifact(result *Result, artifact string, build func()) {
	defer func() {
		if r := recover(); r != nil {
			if a.log != nil {
				a.log.Warn("analysis artifact failed", slog.String("artifact", artifact), slog.Any("panic", r))
			}
			result.Warnings = append(result.Warnings, model.Warning{
				Stage:    "analysis",
				Artifact: artifact,
				Message:  fmt.Sprintf("artifact failed: %v", r),
			})
		}
	}()
	build()
}
