package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/siherrmann/docsearch/model"
)

// Synthesizer generates a natural language answer from a question and its
// retrieved context chunks. Implementations answer only from the supplied
// context and cite document title and date as provenance.
type Synthesizer interface {
	Synthesize(ctx context.Context, question string, sources []*model.SearchResult) (string, error)
}

const synthesisSystemPrompt = `You are a document search assistant. Your job is to answer user questions ACCURATELY based ONLY on the provided context documents.

Rules:
1. Answer the question clearly and concisely.
2. Use the provided context to form your answer. Do not make up information.
3. If the answer is not in the context, say so.
4. Cite your sources by referring to the Document Title or Date when relevant.
5. Format your response with Markdown (bolding key terms, using bullet points for lists).
6. Be professional and helpful.`

// OpenAISynthesizer answers questions via an OpenAI-compatible chat
// completions API. Low temperature keeps answers close to the supplied
// context.
type OpenAISynthesizer struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
}

// OpenAISynthesizerConfig configures the chat completions client.
type OpenAISynthesizerConfig struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
}

// NewOpenAISynthesizer creates a new answer synthesis client using the
// provided configuration. The API key is read from the configured
// environment variable.
func NewOpenAISynthesizer(cfg OpenAISynthesizerConfig) (*OpenAISynthesizer, error) {
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
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &OpenAISynthesizer{
		baseURL:     cfg.BaseURL,
		apiKey:      key,
		model:       cfg.Model,
		temperature: 0.3,
		maxTokens:   1000,
		client:      &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Synthesize builds the source-labeled context prompt and requests a chat
// completion.
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, question string, sources []*model.SearchResult) (string, error) {
	body, err := json.Marshal(struct {
		Model       string        `json:"model"`
		Messages    []chatMessage `json:"messages"`
		Temperature float64       `json:"temperature"`
		MaxTokens   int           `json:"max_tokens"`
	}{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: synthesisSystemPrompt},
			{Role: "user", Content: buildUserPrompt(question, sources)},
		},
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("chat completion failed: %s", resp.Status)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	var out struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", fmt.Errorf("parse chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	return out.Choices[0].Message.Content, nil
}

// buildUserPrompt concatenates the question with source-labeled context
// blocks carrying document title and date as provenance.
func buildUserPrompt(question string, sources []*model.SearchResult) string {
	var context strings.Builder
	for i, source := range sources {
		date := "Unknown"
		if source.Date != nil {
			date = source.Date.Format("2006-01-02")
		}
		fmt.Fprintf(&context, "Source %d (Document: %s, Date: %s):\n%s\n\n", i+1, source.Title, date, source.Content)
	}

	return fmt.Sprintf("Question: %s\n\nContext Information:\n%s\nPlease answer the question based on the context above.", question, context.String())
}
