package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingsRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// newEmbeddingsServer returns a test server that answers each input with a
// vector derived from its position in the overall call sequence, so order
// preservation is observable.
func newEmbeddingsServer(t *testing.T, requests *[]embeddingsRequest) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		*requests = append(*requests, req)

		data := make([]map[string]interface{}, len(req.Input))
		for i, text := range req.Input {
			// Encode the input length so each sentinel maps to a unique vector.
			data[i] = map[string]interface{}{
				"index":     i,
				"embedding": []float32{float32(len(text)), float32(i), 0},
			}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
	}))
}

func newTestEmbedder(t *testing.T, baseURL string) *OpenAIEmbedder {
	t.Setenv("OPENAI_API_KEY", "test-key")
	embedder, err := NewOpenAIEmbedder(OpenAIEmbedderConfig{BaseURL: baseURL})
	require.NoError(t, err)
	return embedder
}

func TestOpenAIEmbedderNew(t *testing.T) {
	t.Run("Missing API key", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		_, err := NewOpenAIEmbedder(OpenAIEmbedderConfig{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "missing API key")
	})

	t.Run("Defaults applied", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "test-key")
		embedder, err := NewOpenAIEmbedder(OpenAIEmbedderConfig{})
		require.NoError(t, err)
		assert.Equal(t, "https://api.openai.com/v1", embedder.baseURL)
		assert.Equal(t, "text-embedding-3-small", embedder.model)
	})
}

func TestOpenAIEmbedderBatchOrder(t *testing.T) {
	var requests []embeddingsRequest
	server := newEmbeddingsServer(t, &requests)
	defer server.Close()

	embedder := newTestEmbedder(t, server.URL)

	// Sentinels of distinct lengths so returned vectors identify their input.
	texts := []string{"a", "bb", "ccc", "dddd"}
	embeddings, err := embedder.EmbedBatch(context.Background(), texts)

	require.NoError(t, err)
	require.Len(t, embeddings, len(texts))
	for i, text := range texts {
		assert.Equal(t, float32(len(text)), embeddings[i][0], "Expected embedding %d to belong to input %q", i, text)
	}
}

func TestOpenAIEmbedderBatchSplitting(t *testing.T) {
	var requests []embeddingsRequest
	server := newEmbeddingsServer(t, &requests)
	defer server.Close()

	embedder := newTestEmbedder(t, server.URL)

	texts := make([]string, 45)
	for i := range texts {
		texts[i] = strings.Repeat("x", i+1)
	}

	embeddings, err := embedder.EmbedBatch(context.Background(), texts)

	require.NoError(t, err)
	require.Len(t, embeddings, len(texts))
	require.Len(t, requests, 3, "Expected 45 inputs to split into sub-batches of 20, 20 and 5")
	assert.Len(t, requests[0].Input, 20)
	assert.Len(t, requests[1].Input, 20)
	assert.Len(t, requests[2].Input, 5)

	for i := range texts {
		assert.Equal(t, float32(i+1), embeddings[i][0], "Expected embeddings to stay aligned across sub-batches")
	}
}

func TestOpenAIEmbedderNewlineCollapse(t *testing.T) {
	var requests []embeddingsRequest
	server := newEmbeddingsServer(t, &requests)
	defer server.Close()

	embedder := newTestEmbedder(t, server.URL)

	_, err := embedder.Embed(context.Background(), "line one\nline two\nline three")

	require.NoError(t, err)
	require.Len(t, requests, 1)
	require.Len(t, requests[0].Input, 1)
	assert.Equal(t, "line one line two line three", requests[0].Input[0], "Expected embedded newlines to be collapsed to spaces")
}

func TestOpenAIEmbedderFailures(t *testing.T) {
	t.Run("Server error aborts the whole batch", func(t *testing.T) {
		var calls int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls == 2 {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			var req embeddingsRequest
			json.NewDecoder(r.Body).Decode(&req)
			data := make([]map[string]interface{}, len(req.Input))
			for i := range req.Input {
				data[i] = map[string]interface{}{"index": i, "embedding": []float32{1}}
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
		}))
		defer server.Close()

		embedder := newTestEmbedder(t, server.URL)

		texts := make([]string, 25)
		for i := range texts {
			texts[i] = fmt.Sprintf("text %d", i)
		}

		_, err := embedder.EmbedBatch(context.Background(), texts)
		assert.Error(t, err, "Expected a failed sub-batch to abort the whole call")
		assert.ErrorIs(t, err, ErrEmbeddingFailed)
		assert.Equal(t, 2, calls, "Expected no further sub-batches after the failure")
	})

	t.Run("Count mismatch is rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []map[string]interface{}{{"index": 0, "embedding": []float32{1}}},
			})
		}))
		defer server.Close()

		embedder := newTestEmbedder(t, server.URL)

		_, err := embedder.EmbedBatch(context.Background(), []string{"a", "b"})
		assert.ErrorIs(t, err, ErrEmbeddingFailed)
		assert.Contains(t, err.Error(), "got 1 embeddings for 2 inputs")
	})

	t.Run("Dimension mismatch is rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []map[string]interface{}{{"index": 0, "embedding": []float32{1, 2, 3}}},
			})
		}))
		defer server.Close()

		t.Setenv("OPENAI_API_KEY", "test-key")
		embedder, err := NewOpenAIEmbedder(OpenAIEmbedderConfig{BaseURL: server.URL, Dimension: 4})
		require.NoError(t, err)

		_, err = embedder.Embed(context.Background(), "text")
		assert.ErrorIs(t, err, ErrEmbeddingFailed)
		assert.Contains(t, err.Error(), "dimension")
	})

	t.Run("Malformed response is rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}))
		defer server.Close()

		embedder := newTestEmbedder(t, server.URL)

		_, err := embedder.Embed(context.Background(), "text")
		assert.ErrorIs(t, err, ErrEmbeddingFailed)
	})
}

func TestOpenAIEmbedderConcurrentBatches(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]interface{}, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]interface{}{"index": i, "embedding": []float32{1, 2, 3}}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
	}))
	defer server.Close()

	// No configured dimension, so the first response teaches it while other
	// goroutines are validating against it.
	embedder := newTestEmbedder(t, server.URL)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for worker := range errs {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			texts := []string{fmt.Sprintf("alpha %d", worker), fmt.Sprintf("beta %d", worker)}
			_, errs[worker] = embedder.EmbedBatch(context.Background(), texts)
		}(worker)
	}
	wg.Wait()

	for worker, err := range errs {
		assert.NoError(t, err, "Expected concurrent batch %d to succeed on a shared client", worker)
	}
	assert.Equal(t, 3, embedder.Dimension(), "Expected the dimension to be learned from the responses")

	t.Run("Learned dimension is enforced afterwards", func(t *testing.T) {
		mismatched := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []map[string]interface{}{{"index": 0, "embedding": []float32{1, 2}}},
			})
		}))
		defer mismatched.Close()

		embedder.baseURL = mismatched.URL
		_, err := embedder.Embed(context.Background(), "text")
		assert.ErrorIs(t, err, ErrEmbeddingFailed)
		assert.Contains(t, err.Error(), "dimension")
	})
}

func TestOpenAIEmbedderEmptyBatch(t *testing.T) {
	embedder := newTestEmbedder(t, "http://unreachable.invalid")

	embeddings, err := embedder.EmbedBatch(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, embeddings, "Expected an empty batch to succeed without a request")
}
