package model

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PipelineConfig holds every tunable of the analysis pipeline. Defaults are
// reasonable for prose fiction; the tension weights and thresholds are
// configuration, not load-bearing constants.
type PipelineConfig struct {
	// Segmentation
	ChunkSize     int `yaml:"chunk_size" json:"chunk_size"`           // target chunk size in characters
	ChunkOverlap  int `yaml:"chunk_overlap" json:"chunk_overlap"`     // overlap with the previous chunk in characters
	MinTextLength int `yaml:"min_text_length" json:"min_text_length"` // below this, simplified single-chunk mode

	// Embedding
	EmbeddingDim int `yaml:"embedding_dim" json:"embedding_dim"`
	BatchSize    int `yaml:"batch_size" json:"batch_size"`
	MaxRetries   int `yaml:"max_retries" json:"max_retries"`

	// Tension
	SentimentWeight float64 `yaml:"sentiment_weight" json:"sentiment_weight"`
	DialogueWeight  float64 `yaml:"dialogue_weight" json:"dialogue_weight"`
	PacingWeight    float64 `yaml:"pacing_weight" json:"pacing_weight"`
	ConflictWeight  float64 `yaml:"conflict_weight" json:"conflict_weight"`
	SmoothingWindow int     `yaml:"smoothing_window" json:"smoothing_window"` // odd, centered moving average
	MaxTensionDelta float64 `yaml:"max_tension_delta" json:"max_tension_delta"`

	// Extraction
	CorefLookback int `yaml:"coref_lookback" json:"coref_lookback"` // sentences to look back for pronoun antecedents

	// Analysis
	MinMentions      int     `yaml:"min_mentions" json:"min_mentions"`             // minor-character filter
	UnresolvedCutoff float64 `yaml:"unresolved_cutoff" json:"unresolved_cutoff"`   // threads ending before this share of the novel count as unresolved
	ModifiedDistance float64 `yaml:"modified_distance" json:"modified_distance"`   // chapter embedding distance above which a chapter is "modified"
	ClimaxMinProm    float64 `yaml:"climax_min_prominence" json:"climax_min_prom"` // minimum peak prominence for a determinable climax
}

// DefaultPipelineConfig returns the default pipeline configuration
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		ChunkSize:        1200,
		ChunkOverlap:     200,
		MinTextLength:    500,
		EmbeddingDim:     384,
		BatchSize:        8,
		MaxRetries:       3,
		SentimentWeight:  0.4,
		DialogueWeight:   0.2,
		PacingWeight:     0.2,
		ConflictWeight:   0.2,
		SmoothingWindow:  3,
		MaxTensionDelta:  0.35,
		CorefLookback:    3,
		MinMentions:      3,
		UnresolvedCutoff: 0.85,
		ModifiedDistance: 0.25,
		ClimaxMinProm:    0.08,
	}
}

// Validate checks the configuration and normalizes the tension weights so
// they sum to 1
func (c *PipelineConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, chunk size), got %d", c.ChunkOverlap)
	}
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.EmbeddingDim)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.SmoothingWindow < 1 || c.SmoothingWindow%2 == 0 {
		return fmt.Errorf("smoothing window must be odd and at least 1, got %d", c.SmoothingWindow)
	}

	sum := c.SentimentWeight + c.DialogueWeight + c.PacingWeight + c.ConflictWeight
	if sum <= 0 {
		return fmt.Errorf("tension weights must sum to a positive value")
	}
	c.SentimentWeight /= sum
	c.DialogueWeight /= sum
	c.PacingWeight /= sum
	c.ConflictWeight /= sum

	return nil
}

// LoadPipelineConfig reads a pipeline configuration from a YAML file, applying
// defaults for any field left at its zero value
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultPipelineConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}
