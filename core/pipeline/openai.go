package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrEmbeddingFailed marks any failure of the external embedding API, from
// transport errors to malformed responses. At query time it triggers the
// keyword fallback; at ingestion time it aborts the affected batch.
var ErrEmbeddingFailed = errors.New("embedding request failed")

// maxEmbeddingBatchSize is the per-call item limit of the embeddings API.
// Larger batches are split into sequential sub-batches internally.
const maxEmbeddingBatchSize = 20

// OpenAIEmbedder is an OpenAI-compatible embeddings client. It is a thin
// boundary: no retries, no backoff. Retry policy belongs to the caller.
// One client may be shared by concurrent batch calls.
type OpenAIEmbedder struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client

	// dimension is learned from the first response when not configured;
	// concurrent batches share it, so access goes through the mutex.
	mu        sync.Mutex
	dimension int
}

// OpenAIEmbedderConfig configures the OpenAI-compatible embeddings client.
// Dimension is optional; when set, response vectors are validated against it.
type OpenAIEmbedderConfig struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
	Dimension int
}

// NewOpenAIEmbedder creates a new embeddings client using the provided
// configuration. The API key is read from the configured environment variable.
func NewOpenAIEmbedder(cfg OpenAIEmbedderConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &OpenAIEmbedder{
		baseURL:   cfg.BaseURL,
		apiKey:    key,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		client:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Dimension returns the configured dimensionality, or 0 before it is known.
func (c *OpenAIEmbedder) Dimension() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dimension
}

// checkDimension validates a response vector length against the known
// dimensionality, learning it from the first response when it was not
// configured.
func (c *OpenAIEmbedder) checkDimension(got int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dimension == 0 {
		c.dimension = got
		return nil
	}
	if got != c.dimension {
		return fmt.Errorf("embedding dimension %d does not match expected %d", got, c.dimension)
	}
	return nil
}

// Embed returns an embedding vector for the given text.
func (c *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch returns embedding vectors for the given texts, ordered 1:1 with
// the input. Batches above the API limit are split into sequential sub-batch
// calls; any sub-batch failure aborts the whole call so the caller never sees
// a silent partial result.
func (c *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	embeddings := make([][]float32, 0, len(texts))
	for batchStart := 0; batchStart < len(texts); batchStart += maxEmbeddingBatchSize {
		batchEnd := batchStart + maxEmbeddingBatchSize
		if batchEnd > len(texts) {
			batchEnd = len(texts)
		}

		batchEmbeddings, err := c.embedOneBatch(ctx, texts[batchStart:batchEnd])
		if err != nil {
			return nil, err
		}

		embeddings = append(embeddings, batchEmbeddings...)
	}

	return embeddings, nil
}

func (c *OpenAIEmbedder) embedOneBatch(ctx context.Context, texts []string) ([][]float32, error) {
	input := make([]string, len(texts))
	for i, text := range texts {
		// Embedded newlines degrade embedding quality for some models.
		input[i] = strings.ReplaceAll(text, "\n", " ")
	}

	body, err := json.Marshal(struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}{
		Input: input,
		Model: c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s", ErrEmbeddingFailed, resp.Status)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	var out struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrEmbeddingFailed, len(out.Data), len(texts))
	}

	// Responses carry an index per item; align by it instead of trusting
	// response order.
	embeddings := make([][]float32, len(texts))
	for _, item := range out.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ErrEmbeddingFailed, item.Index)
		}
		if len(item.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at index %d", ErrEmbeddingFailed, item.Index)
		}
		if err := c.checkDimension(len(item.Embedding)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		}
		embeddings[item.Index] = item.Embedding
	}
	for i, embedding := range embeddings {
		if embedding == nil {
			return nil, fmt.Errorf("%w: missing embedding for input %d", ErrEmbeddingFailed, i)
		}
	}

	return embeddings, nil
}

// EmbedFunc returns the single-text adapter for this client.
func (c *OpenAIEmbedder) EmbedFunc() EmbedFunc {
	return c.Embed
}

// BatchEmbedFunc returns the batch adapter for this client.
func (c *OpenAIEmbedder) BatchEmbedFunc() BatchEmbedFunc {
	return c.EmbedBatch
}
