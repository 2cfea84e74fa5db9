package pipeline

import (
	"context"

	"github.com/siherrmann/docsearch/model"
)

// ChunkFunc is a function that splits extracted document text into
// retrievable segments.
type ChunkFunc func(text string) ([]string, error)

// EmbedFunc is a function that generates an embedding for a single text.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// BatchEmbedFunc is a function that generates embeddings for multiple texts.
// The returned vectors are ordered 1:1 with the input.
type BatchEmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Pipeline combines chunking and embedding functions.
type Pipeline struct {
	Chunker       ChunkFunc
	Embedder      EmbedFunc
	BatchEmbedder BatchEmbedFunc // Optional - used by Process when set
}

// NewPipeline creates a new processing pipeline
func NewPipeline(chunker ChunkFunc, embedder EmbedFunc) *Pipeline {
	return &Pipeline{
		Chunker:  chunker,
		Embedder: embedder,
	}
}

// SetBatchEmbedder sets the batch embedding function. When set, Process
// embeds all chunks in one batched call instead of one call per chunk.
func (p *Pipeline) SetBatchEmbedder(embedder BatchEmbedFunc) {
	p.BatchEmbedder = embedder
}

// Process splits text into chunks and embeds each of them. Chunk indices
// are assigned contiguously from 0 in text order. An embedding failure
// aborts the whole call; the caller decides whether to retry or to insert
// the chunks without embeddings for later backfill.
func (p *Pipeline) Process(ctx context.Context, text string) ([]*model.Chunk, error) {
	texts, err := p.Chunker(text)
	if err != nil {
		return nil, err
	}

	var embeddings [][]float32
	if p.BatchEmbedder != nil {
		embeddings, err = p.BatchEmbedder(ctx, texts)
		if err != nil {
			return nil, err
		}
	} else {
		embeddings = make([][]float32, 0, len(texts))
		for _, chunkText := range texts {
			embedding, err := p.Embedder(ctx, chunkText)
			if err != nil {
				return nil, err
			}
			embeddings = append(embeddings, embedding)
		}
	}

	chunks := make([]*model.Chunk, 0, len(texts))
	for i, chunkText := range texts {
		chunks = append(chunks, &model.Chunk{
			ChunkIndex: i,
			Content:    chunkText,
			Embedding:  embeddings[i],
		})
	}

	return chunks, nil
}

// ChunkOnly splits text into chunks without embedding them, for two-phase
// ingestion where vectors are attached by a later backfill pass.
func (p *Pipeline) ChunkOnly(text string) ([]string, error) {
	return p.Chunker(text)
}
