package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/siherrmann/docsearch/database"
	"github.com/siherrmann/docsearch/model"
)

// Strategy defines a similarity retrieval strategy.
type Strategy interface {
	Retrieve(ctx context.Context, embedding []float32, config *model.QueryConfig) ([]*model.SearchResult, error)
}

// NativeStrategy delegates ranking to the storage backend's native distance
// operator. Only usable when the store reports native vector support.
type NativeStrategy struct {
	chunks database.ChunksDBHandlerFunctions
}

// NewNativeStrategy creates a new native vector search strategy
func NewNativeStrategy(chunks database.ChunksDBHandlerFunctions) *NativeStrategy {
	return &NativeStrategy{chunks: chunks}
}

// Retrieve performs native vector retrieval. The backend returns results
// already ordered by descending similarity.
func (s *NativeStrategy) Retrieve(ctx context.Context, embedding []float32, config *model.QueryConfig) ([]*model.SearchResult, error) {
	return s.chunks.SelectChunksBySimilarity(embedding, config.TopK)
}

// BruteForceStrategy scores candidates in the application when the backend
// cannot rank vectors itself. The scan is bounded by the candidate limit, an
// explicit latency/memory trade favoring simplicity over completeness at
// scale.
type BruteForceStrategy struct {
	chunks database.ChunksDBHandlerFunctions
}

// NewBruteForceStrategy creates a new brute-force cosine scoring strategy
func NewBruteForceStrategy(chunks database.ChunksDBHandlerFunctions) *BruteForceStrategy {
	return &BruteForceStrategy{chunks: chunks}
}

// Retrieve fetches candidate chunks and ranks them by cosine similarity.
// Candidates with a zero-norm embedding are excluded rather than scored.
func (s *BruteForceStrategy) Retrieve(ctx context.Context, embedding []float32, config *model.QueryConfig) ([]*model.SearchResult, error) {
	candidates, err := s.chunks.SelectCandidateChunks(config.CandidateLimit)
	if err != nil {
		return nil, err
	}

	results := make([]*model.SearchResult, 0, len(candidates))
	for _, candidate := range candidates {
		similarity, ok := cosineSimilarity(embedding, candidate.Embedding)
		if !ok {
			continue
		}

		result := candidate.SearchResult
		result.Similarity = &similarity
		results = append(results, &result)
	}

	sortBySimilarity(results)

	if len(results) > config.TopK {
		results = results[:config.TopK]
	}

	return results, nil
}

// cosineSimilarity calculates the cosine similarity between two embedding
// vectors. Accumulation happens in float64 so that native and brute-force
// scoring rank identically within floating-point tolerance. The second
// return value is false for mismatched dimensions or zero-norm vectors.
func cosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) != len(b) {
		return 0, false
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, false
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)), true
}

// sortBySimilarity orders results by similarity descending, ties broken by
// document date descending (undated last) then chunk index ascending,
// matching the ordering of the native search.
func sortBySimilarity(results []*model.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if *a.Similarity != *b.Similarity {
			return *a.Similarity > *b.Similarity
		}
		switch {
		case a.Date != nil && b.Date == nil:
			return true
		case a.Date == nil && b.Date != nil:
			return false
		case a.Date != nil && b.Date != nil && !a.Date.Equal(*b.Date):
			return a.Date.After(*b.Date)
		}
		return a.ChunkIndex < b.ChunkIndex
	})
}

// StrategyFor selects the retrieval strategy matching the store's vector
// capability.
func StrategyFor(chunks database.ChunksDBHandlerFunctions) Strategy {
	if chunks.NativeVectorSupport() {
		return NewNativeStrategy(chunks)
	}
	return NewBruteForceStrategy(chunks)
}

// validateConfig checks query configuration preconditions shared by all
// strategies.
func validateConfig(config *model.QueryConfig) error {
	if config == nil {
		return fmt.Errorf("query config is nil")
	}
	if config.TopK <= 0 {
		return fmt.Errorf("top k must be positive")
	}
	return nil
}
