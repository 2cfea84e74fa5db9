package model

import "time"

// Chunk represents one retrievable text segment of a document.
// Chunk indices within a document are contiguous starting at 0; the content
// is never empty. The embedding transitions from absent to present exactly
// once unless embeddings are explicitly cleared.
type Chunk struct {
	ID         int64     `json:"id"`
	DocumentID int64     `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"embedding,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChunkText is a chunk reference carrying only the fields needed for
// embedding backfill.
type ChunkText struct {
	ID      int64
	Content string
}
