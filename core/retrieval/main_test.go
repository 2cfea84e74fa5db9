package retrieval

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/siherrmann/docsearch/model"
)

// fakeChunkStore implements database.ChunksDBHandlerFunctions for engine and
// strategy tests. Its native similarity search ranks with an independent
// cosine computation so cross-mode consistency is actually exercised.
type fakeChunkStore struct {
	native         bool
	candidates     []*model.Candidate
	keywordResults []*model.SearchResult

	similarityErr error
	candidatesErr error
	keywordErr    error

	keywordCalls int
}

func (f *fakeChunkStore) NativeVectorSupport() bool { return f.native }

func (f *fakeChunkStore) InsertChunks(documentID int64, texts []string, embeddings [][]float32) error {
	return nil
}

func (f *fakeChunkStore) AttachEmbedding(chunkID int64, embedding []float32) error { return nil }

func (f *fakeChunkStore) ClearEmbeddings() (int64, error) { return 0, nil }

func (f *fakeChunkStore) SelectChunksMissingEmbeddings() ([]*model.ChunkText, error) {
	return nil, nil
}

func (f *fakeChunkStore) SelectChunksByDocument(documentID int64) ([]*model.Chunk, error) {
	return nil, nil
}

func (f *fakeChunkStore) SelectCandidateChunks(limit int) ([]*model.Candidate, error) {
	if f.candidatesErr != nil {
		return nil, f.candidatesErr
	}
	if limit > 0 && len(f.candidates) > limit {
		return f.candidates[:limit], nil
	}
	return f.candidates, nil
}

func (f *fakeChunkStore) SelectChunksBySimilarity(embedding []float32, limit int) ([]*model.SearchResult, error) {
	if f.similarityErr != nil {
		return nil, f.similarityErr
	}

	var results []*model.SearchResult
	for _, candidate := range f.candidates {
		var dot, normQ, normC float64
		for i := range embedding {
			dot += float64(embedding[i]) * float64(candidate.Embedding[i])
			normQ += float64(embedding[i]) * float64(embedding[i])
			normC += float64(candidate.Embedding[i]) * float64(candidate.Embedding[i])
		}
		if normQ == 0 || normC == 0 {
			continue
		}

		similarity := dot / (math.Sqrt(normQ) * math.Sqrt(normC))
		result := candidate.SearchResult
		result.Similarity = &similarity
		results = append(results, &result)
	}

	// Distance ascending, date descending with undated last, index ascending,
	// like the database ordering.
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

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (f *fakeChunkStore) SelectChunksByKeyword(term string, limit int) ([]*model.SearchResult, error) {
	f.keywordCalls++
	if f.keywordErr != nil {
		return nil, f.keywordErr
	}
	if len(f.keywordResults) > limit {
		return f.keywordResults[:limit], nil
	}
	return f.keywordResults, nil
}

func (f *fakeChunkStore) CountChunks() (int64, error) { return int64(len(f.candidates)), nil }

func (f *fakeChunkStore) CountChunksMissingEmbedding() (int64, error) { return 0, nil }

func testCandidate(chunkID int64, content string, embedding []float32, date *time.Time, chunkIndex int) *model.Candidate {
	return &model.Candidate{
		SearchResult: model.SearchResult{
			ChunkID:    chunkID,
			Content:    content,
			ChunkIndex: chunkIndex,
			DocumentID: 1,
			Title:      "Test Document",
			Date:       date,
			Method:     model.RetrievalMethodVector,
		},
		Embedding: embedding,
	}
}

func testKeywordResult(chunkID int64, content string) *model.SearchResult {
	return &model.SearchResult{
		ChunkID:    chunkID,
		Content:    content,
		DocumentID: 1,
		Title:      "Test Document",
		Method:     model.RetrievalMethodKeyword,
	}
}

func testDate(year int, month time.Month, day int) *time.Time {
	date := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &date
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
