package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/siherrmann/docsearch/helper"
	"github.com/siherrmann/docsearch/model"
)

// NoContextResponse is returned when retrieval finds nothing relevant.
// Synthesis is skipped entirely in that case so the model cannot hallucinate
// from an empty context.
const NoContextResponse = "I couldn't find any relevant information in the indexed documents to answer your question."

// SynthesisFailureResponse is returned when answer generation fails after
// successful retrieval. The sources are still returned so the caller can
// read them directly.
const SynthesisFailureResponse = "I encountered an error while generating the answer. Please try again."

// Retriever returns the chunks most relevant to a query, best first.
type Retriever interface {
	Retrieve(ctx context.Context, query string, config *model.QueryConfig) ([]*model.SearchResult, error)
}

// Orchestrator is the top-level query entry point. It retrieves context for
// a question, hands it to the synthesizer with provenance, and shields the
// caller from synthesis failures. Retrieval failures are fatal: if even the
// keyword fallback cannot reach storage there is nothing left to answer
// from.
type Orchestrator struct {
	retriever   Retriever
	synthesizer Synthesizer
	config      *model.QueryConfig
	logger      *slog.Logger
}

// NewOrchestrator creates a new retrieval orchestrator. A nil config uses
// the default retrieval configuration.
func NewOrchestrator(retriever Retriever, synthesizer Synthesizer, config *model.QueryConfig, logger *slog.Logger) *Orchestrator {
	if config == nil {
		config = model.DefaultQueryConfig()
	}
	return &Orchestrator{
		retriever:   retriever,
		synthesizer: synthesizer,
		config:      config,
		logger:      logger,
	}
}

// AnswerQuery answers a question from the indexed documents. The response
// always carries the ranked sources that informed the answer, with
// similarity scores present only for vector-mode results.
func (o *Orchestrator) AnswerQuery(ctx context.Context, question string) (*model.QueryResponse, error) {
	if strings.TrimSpace(question) == "" {
		return nil, helper.NewError("question validation", fmt.Errorf("question is empty"))
	}

	sources, err := o.retriever.Retrieve(ctx, question, o.config)
	if err != nil {
		return nil, helper.NewError("retrieve context", err)
	}

	if len(sources) == 0 {
		o.logger.Info("No relevant context found", "question_length", len(question))
		return &model.QueryResponse{
			Query:      question,
			Response:   NoContextResponse,
			Sources:    []*model.SearchResult{},
			NumSources: 0,
		}, nil
	}

	response, err := o.synthesizer.Synthesize(ctx, question, sources)
	if err != nil {
		o.logger.Error("Answer synthesis failed", "error", err)
		response = SynthesisFailureResponse
	}

	return &model.QueryResponse{
		Query:      question,
		Response:   response,
		Sources:    sources,
		NumSources: len(sources),
	}, nil
}
