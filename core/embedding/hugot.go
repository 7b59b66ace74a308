package embedding

import (
	"fmt"

	"github.com/knights-analytics/hugot"
	"github.com/siherrmann/storyline/helper"
)

// DefaultEmbedFunc creates an embedder backed by a real sentence transformer
// model. Uses all-MiniLM-L6-v2 which produces 384-dimensional embeddings.
func DefaultEmbedFunc() (EmbedFunc, error) {
	modelName := "sentence-transformers/all-MiniLM-L6-v2"
	modelPath, err := helper.PrepareModel(modelName, "onnx/model.onnx")
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedder-pipeline",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create sentence pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
	}

	return func(texts []string) ([][]float32, error) {
		result, err := sentencePipeline.RunPipeline(texts)
		if err != nil {
			return nil, fmt.Errorf("failed to generate embeddings: %w", err)
		}
		if len(result.Embeddings) != len(texts) {
			return nil, fmt.Errorf("expected %v embeddings, got %v", len(texts), len(result.Embeddings))
		}
		return result.Embeddings, nil
	}, nil
}
