package retrieval

import (
	"context"
	"log/slog"
	"strings"

	"github.com/siherrmann/docsearch/core/pipeline"
	"github.com/siherrmann/docsearch/database"
	"github.com/siherrmann/docsearch/helper"
	"github.com/siherrmann/docsearch/model"
)

// Engine runs similarity search over stored chunks. It embeds the query,
// ranks candidates via the strategy matching the store's capability, and
// degrades to keyword search when the vector path fails or yields nothing.
// The engine never mutates stored data.
type Engine struct {
	chunks database.ChunksDBHandlerFunctions
	embed  pipeline.EmbedFunc
	logger *slog.Logger
}

// NewEngine creates a new retrieval engine
func NewEngine(chunks database.ChunksDBHandlerFunctions, embed pipeline.EmbedFunc, logger *slog.Logger) *Engine {
	return &Engine{
		chunks: chunks,
		embed:  embed,
		logger: logger,
	}
}

// Retrieve returns the chunks most relevant to the query, ordered best
// first. Vector-path failures degrade to keyword search instead of
// surfacing as errors; only a failing keyword search itself is returned as
// an error, since at that point no search mode is left.
func (e *Engine) Retrieve(ctx context.Context, query string, config *model.QueryConfig) ([]*model.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return []*model.SearchResult{}, nil
	}
	if err := validateConfig(config); err != nil {
		return nil, helper.NewError("query config validation", err)
	}

	embedding, err := e.embed(ctx, query)
	if err != nil {
		e.logger.Warn("Query embedding failed, falling back to keyword search", "error", err)
		return e.keywordFallback(query, config)
	}

	strategy := StrategyFor(e.chunks)
	results, err := strategy.Retrieve(ctx, embedding, config)
	if err != nil {
		e.logger.Warn("Vector search failed, falling back to keyword search", "error", err)
		return e.keywordFallback(query, config)
	}
	if len(results) == 0 {
		e.logger.Debug("Vector search returned no results, falling back to keyword search")
		return e.keywordFallback(query, config)
	}

	return results, nil
}

// keywordFallback is the search mode of last resort. Its results carry no
// similarity score, so callers can tell the two result kinds apart.
func (e *Engine) keywordFallback(query string, config *model.QueryConfig) ([]*model.SearchResult, error) {
	results, err := e.chunks.SelectChunksByKeyword(query, config.TopK)
	if err != nil {
		return nil, helper.NewError("keyword fallback search", err)
	}
	return results, nil
}
