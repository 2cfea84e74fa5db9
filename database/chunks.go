package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/docsearch/helper"
	"github.com/siherrmann/docsearch/model"
	loadSql "github.com/siherrmann/docsearch/sql"
)

// ChunksDBHandlerFunctions defines the interface for Chunks database operations.
// The retrieval engine depends on this interface, not on the concrete handler.
type ChunksDBHandlerFunctions interface {
	NativeVectorSupport() bool
	InsertChunks(documentID int64, texts []string, embeddings [][]float32) error
	AttachEmbedding(chunkID int64, embedding []float32) error
	ClearEmbeddings() (int64, error)
	SelectChunksMissingEmbeddings() ([]*model.ChunkText, error)
	CountChunksMissingEmbedding() (int64, error)
	SelectChunksByDocument(documentID int64) ([]*model.Chunk, error)
	SelectCandidateChunks(limit int) ([]*model.Candidate, error)
	SelectChunksBySimilarity(embedding []float32, limit int) ([]*model.SearchResult, error)
	SelectChunksByKeyword(term string, limit int) ([]*model.SearchResult, error)
	CountChunks() (int64, error)
}

// maxCandidateLimit is the hard cap on rows fetched for the brute-force
// similarity scan. It bounds latency and memory of the synchronous scoring
// pass; there is no relevance-preserving sampling behind it.
const maxCandidateLimit = 500

// ChunksDBHandler handles chunk-related database operations. It owns the
// store's vector capability flag: embeddings live in a native vector column
// when pgvector is available and in a JSONB column otherwise.
type ChunksDBHandler struct {
	db     *helper.Database
	native bool
}

// NewChunksDBHandler creates a new chunks database handler for the given
// capability. It loads the matching chunk SQL variant and creates the table.
// If force is true, it will reload the SQL functions even if they already exist.
func NewChunksDBHandler(db *helper.Database, embeddingDim int, native bool, force bool) (*ChunksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if embeddingDim <= 0 {
		return nil, helper.NewError("embedding dimension validation", fmt.Errorf("embedding dimension must be positive"))
	}

	chunksDbHandler := &ChunksDBHandler{
		db:     db,
		native: native,
	}

	err := loadSql.LoadChunksSql(chunksDbHandler.db.Instance, native, force)
	if err != nil {
		return nil, helper.NewError("load chunks sql", err)
	}

	err = chunksDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ChunksDBHandler", "native_vectors", native)

	return chunksDbHandler, nil
}

// CreateTable creates the 'document_content' table in the database.
// If the table already exists, it does not create it again.
func (h *ChunksDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_chunks($1);`, embeddingDim)
	if err != nil {
		log.Panicf("error initializing document_content table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table document_content")

	return nil
}

// NativeVectorSupport reports whether embeddings are stored in a native
// vector column. The flag is decided once at store initialization.
func (h *ChunksDBHandler) NativeVectorSupport() bool {
	return h.native
}

// embeddingValue converts a vector into the parameter form of the active
// storage representation.
func (h *ChunksDBHandler) embeddingValue(embedding []float32) (interface{}, error) {
	if embedding == nil {
		return nil, nil
	}
	if h.native {
		return pgvector.NewVector(embedding), nil
	}
	return model.JSONVector(embedding).Value()
}

// InsertChunks inserts all chunks of a document in one transaction.
// Embeddings are optional; when provided their count must equal the number
// of texts, which is validated before anything is written. Chunk indices are
// assigned contiguously from 0 in input order. Any failure rolls back the
// whole insert.
func (h *ChunksDBHandler) InsertChunks(documentID int64, texts []string, embeddings [][]float32) error {
	if len(embeddings) > 0 && len(embeddings) != len(texts) {
		return helper.NewError("insert chunks validation", fmt.Errorf("embedding count %d does not match chunk count %d", len(embeddings), len(texts)))
	}
	for i, text := range texts {
		if text == "" {
			return helper.NewError("insert chunks validation", fmt.Errorf("chunk %d is empty", i))
		}
	}

	tx, err := h.db.Instance.Begin()
	if err != nil {
		return helper.NewError("begin transaction", err)
	}
	defer tx.Rollback()

	for i, text := range texts {
		var embedding interface{}
		if len(embeddings) > 0 {
			embedding, err = h.embeddingValue(embeddings[i])
			if err != nil {
				return helper.NewError("encode embedding", err)
			}
		}

		_, err = tx.Exec(
			`SELECT * FROM insert_content_chunk($1, $2, $3, $4)`,
			documentID,
			i,
			text,
			embedding,
		)
		if err != nil {
			return helper.NewError(fmt.Sprintf("insert chunk %d", i), err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return helper.NewError("commit transaction", err)
	}

	return nil
}

// AttachEmbedding sets the embedding of a chunk. The operation is idempotent
// and overwrites any prior value.
func (h *ChunksDBHandler) AttachEmbedding(chunkID int64, embedding []float32) error {
	value, err := h.embeddingValue(embedding)
	if err != nil {
		return helper.NewError("encode embedding", err)
	}

	var found bool
	err = h.db.Instance.QueryRow(
		`SELECT update_chunk_embedding($1, $2)`,
		chunkID,
		value,
	).Scan(&found)
	if err != nil {
		return helper.NewError("scan", err)
	}
	if !found {
		return helper.NewError("attach embedding", fmt.Errorf("chunk %d not found", chunkID))
	}

	return nil
}

// ClearEmbeddings removes all stored embeddings and returns the number of
// affected chunks. Used to force a full regeneration after a model change.
func (h *ChunksDBHandler) ClearEmbeddings() (int64, error) {
	var cleared int64
	err := h.db.Instance.QueryRow(`SELECT clear_chunk_embeddings()`).Scan(&cleared)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}
	return cleared, nil
}

// SelectChunksMissingEmbeddings returns all chunks without an embedding,
// ordered by chunk id ascending, to drive incremental backfill.
func (h *ChunksDBHandler) SelectChunksMissingEmbeddings() ([]*model.ChunkText, error) {
	rows, err := h.db.Instance.Query(`SELECT * FROM select_chunks_missing_embedding()`)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var chunks []*model.ChunkText
	for rows.Next() {
		chunk := &model.ChunkText{}
		err := rows.Scan(&chunk.ID, &chunk.Content)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		chunks = append(chunks, chunk)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return chunks, nil
}

// SelectChunksByDocument retrieves all chunks of a document ordered by
// chunk index.
func (h *ChunksDBHandler) SelectChunksByDocument(documentID int64) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_chunks_by_document($1)`,
		documentID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.ChunkIndex,
			&chunk.Content,
			&chunk.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		chunks = append(chunks, chunk)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return chunks, nil
}

// SelectCandidateChunks fetches chunks with embeddings for the brute-force
// similarity scan, bounded by the hard candidate cap. The embedding column is
// rendered as text by the database; both vector and JSONB render as a JSON
// array, so one parse covers both representations.
func (h *ChunksDBHandler) SelectCandidateChunks(limit int) ([]*model.Candidate, error) {
	if limit <= 0 || limit > maxCandidateLimit {
		limit = maxCandidateLimit
	}

	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_chunk_candidates($1)`,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var candidates []*model.Candidate
	for rows.Next() {
		candidate := &model.Candidate{}
		var embeddingText string
		err := rows.Scan(
			&candidate.ChunkID,
			&candidate.Content,
			&candidate.ChunkIndex,
			&candidate.DocumentID,
			&candidate.Title,
			&candidate.Date,
			&candidate.FileType,
			&candidate.DownloadURL,
			&embeddingText,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		err = json.Unmarshal([]byte(embeddingText), &candidate.Embedding)
		if err != nil {
			return nil, helper.NewError("parse embedding", err)
		}

		candidate.Method = model.RetrievalMethodVector
		candidates = append(candidates, candidate)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return candidates, nil
}

// SelectChunksBySimilarity ranks chunks by cosine similarity inside the
// database. Only available with native vector support; results are ordered
// by similarity descending with ties broken by document date descending and
// chunk index ascending.
func (h *ChunksDBHandler) SelectChunksBySimilarity(embedding []float32, limit int) ([]*model.SearchResult, error) {
	if !h.native {
		return nil, helper.NewError("similarity search", fmt.Errorf("native vector search not supported by this store"))
	}

	rows, err := h.db.Instance.Query(
		`SELECT * FROM search_chunks_by_similarity($1, $2)`,
		pgvector.NewVector(embedding),
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var results []*model.SearchResult
	for rows.Next() {
		result := &model.SearchResult{}
		var similarity float64
		err := rows.Scan(
			&result.ChunkID,
			&result.Content,
			&result.ChunkIndex,
			&result.DocumentID,
			&result.Title,
			&result.Date,
			&result.FileType,
			&result.DownloadURL,
			&similarity,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		result.Similarity = &similarity
		result.Method = model.RetrievalMethodVector
		results = append(results, result)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return results, nil
}

// SelectChunksByKeyword performs a substring match over chunk content,
// ordered by document date descending. This is the search mode of last
// resort and never depends on embeddings.
func (h *ChunksDBHandler) SelectChunksByKeyword(term string, limit int) ([]*model.SearchResult, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM search_chunks_by_keyword($1, $2)`,
		term,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var results []*model.SearchResult
	for rows.Next() {
		result := &model.SearchResult{}
		err := rows.Scan(
			&result.ChunkID,
			&result.Content,
			&result.ChunkIndex,
			&result.DocumentID,
			&result.Title,
			&result.Date,
			&result.FileType,
			&result.DownloadURL,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		result.Method = model.RetrievalMethodKeyword
		results = append(results, result)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return results, nil
}

// CountChunksMissingEmbedding returns the number of chunks without an
// embedding, without fetching the rows themselves.
func (h *ChunksDBHandler) CountChunksMissingEmbedding() (int64, error) {
	var count int64
	err := h.db.Instance.QueryRow(`SELECT count_chunks_missing_embedding()`).Scan(&count)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}
	return count, nil
}

// CountChunks returns the number of stored chunks
func (h *ChunksDBHandler) CountChunks() (int64, error) {
	var count int64
	err := h.db.Instance.QueryRow(`SELECT count_chunks()`).Scan(&count)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}
	return count, nil
}
