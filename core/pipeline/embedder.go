package pipeline

import (
	"context"
	"fmt"

	"github.com/knights-analytics/hugot"
	"github.com/siherrmann/docsearch/helper"
)

// LocalEmbedder creates an embedder backed by a local sentence transformer
// model, for deployments without access to an external embedding API.
// Uses the all-MiniLM-L6-v2 model which produces 384-dimensional embeddings.
func LocalEmbedder() (EmbedFunc, error) {
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

	return func(ctx context.Context, text string) ([]float32, error) {
		result, err := sentencePipeline.RunPipeline([]string{text})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		}

		if len(result.Embeddings) == 0 {
			return nil, fmt.Errorf("%w: no embedding generated", ErrEmbeddingFailed)
		}

		return result.Embeddings[0], nil
	}, nil
}

// BatchFromSingle wraps a single-text embedder into a batch embedder that
// embeds sequentially. Any failure aborts the whole batch.
func BatchFromSingle(embed EmbedFunc) BatchEmbedFunc {
	return func(ctx context.Context, texts []string) ([][]float32, error) {
		embeddings := make([][]float32, 0, len(texts))
		for _, text := range texts {
			embedding, err := embed(ctx, text)
			if err != nil {
				return nil, err
			}
			embeddings = append(embeddings, embedding)
		}
		return embeddings, nil
	}
}
