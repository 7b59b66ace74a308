package extract

import (
	"fmt"
	"log/slog"

	"github.com/siherrmann/storyline/model"
)

// EntityFunc extracts named entities from text. Swappable so the default
// rule-based extractor can be replaced with a NER model.
type EntityFunc func(text string) ([]string, error)

// SentimentFunc scores the emotional valence of text in [-1, 1]. Swappable
// so the default lexicon scorer can be replaced with a classification model.
type SentimentFunc func(text string) (float64, error)

// Extractor computes per-chunk entity lists and the narrative tension signal.
// A failure on a single chunk never aborts the batch: the chunk gets empty
// entities and a neutral tension score, and the failure is returned as a
// warning for the caller.
type Extractor struct {
	config    *model.PipelineConfig
	entity    EntityFunc
	sentiment SentimentFunc
	log       *slog.Logger
}

// Option configures an Extractor
type Option func(*Extractor)

// WithEntityFunc replaces the default rule-based entity extractor
func WithEntityFunc(fn EntityFunc) Option {
	return func(e *Extractor) {
		e.entity = fn
	}
}

// WithSentimentFunc replaces the default lexicon sentiment scorer
func WithSentimentFunc(fn SentimentFunc) Option {
	return func(e *Extractor) {
		e.sentiment = fn
	}
}

// New creates a new Extractor with the default deterministic extractors
func New(config *model.PipelineConfig, logger *slog.Logger, opts ...Option) *Extractor {
	e := &Extractor{
		config:    config,
		entity:    RuleEntityFunc(),
		sentiment: LexiconSentimentFunc(),
		log:       logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract fills Entities and Tension for every chunk in order. The tension
// series is smoothed across the whole sequence afterwards, so chunks must be
// the complete ordered set for one version.
func (e *Extractor) Extract(chunks []*model.Chunk) []model.Warning {
	var warnings []model.Warning

	raw := make([]float64, len(chunks))
	for i, chunk := range chunks {
		entities, err := e.extractEntities(chunks, i)
		if err != nil {
			idx := chunk.Index
			warnings = append(warnings, model.Warning{
				Stage:   "extraction",
				Chunk:   &idx,
				Message: fmt.Sprintf("entity extraction failed: %v", err),
			})
			chunk.Entities = nil
		} else {
			chunk.Entities = entities
		}

		tension, err := e.chunkTension(chunk)
		if err != nil {
			idx := chunk.Index
			warnings = append(warnings, model.Warning{
				Stage:   "extraction",
				Chunk:   &idx,
				Message: fmt.Sprintf("tension scoring failed: %v", err),
			})
			tension = 0.5
		}
		raw[i] = tension
	}

	smoothed := SmoothTension(raw, e.config.SmoothingWindow, e.config.MaxTensionDelta)
	for i, chunk := range chunks {
		chunk.Tension = smoothed[i]
	}

	if len(warnings) > 0 {
		e.log.Warn("Extraction completed with degraded chunks", slog.Int("warnings", len(warnings)))
	}

	return warnings
}

// extractEntities extracts named entities for chunk i, resolving pronouns
// against the tail of the preceding chunk as coreference context
func (e *Extractor) extractEntities(chunks []*model.Chunk, i int) ([]string, error) {
	named, err := e.entity(chunks[i].Content)
	if err != nil {
		return nil, err
	}

	var context string
	if i > 0 {
		context = chunks[i-1].Content
	}

	resolved := ResolvePronouns(chunks[i].Content, context, named, e.config.CorefLookback)

	return mergeEntities(named, resolved), nil
}

// mergeEntities combines named and resolved entities, deduplicated, keeping
// first-seen order
func mergeEntities(named, resolved []string) []string {
	seen := make(map[string]bool, len(named)+len(resolved))
	var merged []string
	for _, name := range append(named, resolved...) {
		if !seen[name] {
			seen[name] = true
			merged = append(merged, name)
		}
	}
	return merged
}
