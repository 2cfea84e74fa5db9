package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineProcess(t *testing.T) {
	chunker := func(text string) ([]string, error) {
		return []string{"chunk one", "chunk two"}, nil
	}
	embedder := func(ctx context.Context, text string) ([]float32, error) {
		return []float32{float32(len(text)), 0}, nil
	}

	t.Run("Chunks and embeds", func(t *testing.T) {
		pipeline := NewPipeline(chunker, embedder)

		chunks, err := pipeline.Process(context.Background(), "some document text")

		require.NoError(t, err)
		require.Len(t, chunks, 2)
		for i, chunk := range chunks {
			assert.Equal(t, i, chunk.ChunkIndex, "Expected contiguous chunk indices")
			assert.Equal(t, float32(len(chunk.Content)), chunk.Embedding[0], "Expected embedding to belong to the chunk")
		}
	})

	t.Run("Batch embedder takes precedence", func(t *testing.T) {
		pipeline := NewPipeline(chunker, embedder)
		var batchCalls int
		pipeline.SetBatchEmbedder(func(ctx context.Context, texts []string) ([][]float32, error) {
			batchCalls++
			embeddings := make([][]float32, len(texts))
			for i := range texts {
				embeddings[i] = []float32{float32(i)}
			}
			return embeddings, nil
		})

		chunks, err := pipeline.Process(context.Background(), "some document text")

		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, 1, batchCalls, "Expected a single batched embedding call")
	})

	t.Run("Embedding failure aborts processing", func(t *testing.T) {
		failing := func(ctx context.Context, text string) ([]float32, error) {
			return nil, fmt.Errorf("%w: unreachable", ErrEmbeddingFailed)
		}
		pipeline := NewPipeline(chunker, failing)

		_, err := pipeline.Process(context.Background(), "some document text")

		assert.ErrorIs(t, err, ErrEmbeddingFailed)
	})

	t.Run("Chunker failure aborts processing", func(t *testing.T) {
		failing := func(text string) ([]string, error) {
			return nil, fmt.Errorf("bad chunker config")
		}
		pipeline := NewPipeline(failing, embedder)

		_, err := pipeline.Process(context.Background(), "some document text")

		assert.Error(t, err)
	})
}

func TestBatchFromSingle(t *testing.T) {
	embedder := func(ctx context.Context, text string) ([]float32, error) {
		return []float32{float32(len(text))}, nil
	}

	batch := BatchFromSingle(embedder)
	embeddings, err := batch(context.Background(), []string{"a", "bb", "ccc"})

	require.NoError(t, err)
	require.Len(t, embeddings, 3)
	assert.Equal(t, float32(1), embeddings[0][0])
	assert.Equal(t, float32(3), embeddings[2][0])
}
