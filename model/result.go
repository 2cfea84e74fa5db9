package model

import "time"

// RetrievalMethod identifies how a search result was retrieved.
type RetrievalMethod string

const (
	// RetrievalMethodVector marks results ranked by cosine similarity,
	// either inside the database or by the brute-force scan.
	RetrievalMethodVector RetrievalMethod = "vector"
	// RetrievalMethodKeyword marks results from the substring fallback.
	// Keyword results carry no similarity score.
	RetrievalMethodKeyword RetrievalMethod = "keyword"
)

// SearchResult is a chunk retrieved for a query together with the metadata of
// its owning document. Similarity is a cosine score in [-1, 1] for vector
// results and nil for keyword results.
type SearchResult struct {
	ChunkID     int64           `json:"chunk_id"`
	Content     string          `json:"content"`
	ChunkIndex  int             `json:"chunk_index"`
	DocumentID  int64           `json:"document_id"`
	Title       string          `json:"title"`
	Date        *time.Time      `json:"date,omitempty"`
	FileType    string          `json:"file_type,omitempty"`
	DownloadURL string          `json:"download_url,omitempty"`
	Similarity  *float64        `json:"similarity,omitempty"`
	Method      RetrievalMethod `json:"retrieval_method,omitempty"`
}

// Candidate is a search result candidate for the brute-force scan,
// carrying its stored embedding.
type Candidate struct {
	SearchResult
	Embedding []float32
}

// QueryResponse is the answer envelope returned to the caller.
type QueryResponse struct {
	Query      string          `json:"query"`
	Response   string          `json:"response"`
	Sources    []*SearchResult `json:"sources"`
	NumSources int             `json:"num_sources"`
}
