package docsearch

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/siherrmann/docsearch/core/answer"
	"github.com/siherrmann/docsearch/core/pipeline"
	"github.com/siherrmann/docsearch/core/retrieval"
	"github.com/siherrmann/docsearch/database"
	"github.com/siherrmann/docsearch/helper"
	"github.com/siherrmann/docsearch/model"
	loadSql "github.com/siherrmann/docsearch/sql"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Backfill issues embedding sub-batches concurrently, bounded by a worker
// pool and a request rate limit so external API load stays predictable.
const (
	backfillBatchSize = 20
	backfillWorkers   = 4
)

var backfillRateLimit = rate.Limit(2)

// DocSearch provides a unified interface to document ingestion, retrieval
// and question answering.
type DocSearch struct {
	DB          *helper.Database
	Documents   *database.DocumentsDBHandler
	Chunks      *database.ChunksDBHandler
	Pipeline    *pipeline.Pipeline // Optional processing pipeline
	Engine      *retrieval.Engine
	Synthesizer answer.Synthesizer // Optional default answer synthesizer
	// Logging
	log *slog.Logger
}

// NewDocSearch creates a new DocSearch instance with all handlers
// initialized. The store's vector capability is probed once here; whether
// embeddings live in a native vector column or a JSONB fallback is decided
// for the lifetime of the instance.
func NewDocSearch(config *helper.DatabaseConfiguration, embeddingDim int) (*DocSearch, error) {
	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	// Initialize database
	db := helper.NewDatabase("docsearch", config, logger)
	native := loadSql.Init(db.Instance)

	// Create handlers in the correct order (documents first, then chunks)
	// force=false to not reload if functions already exist
	documents, err := database.NewDocumentsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create documents handler", err)
	}

	chunks, err := database.NewChunksDBHandler(db, embeddingDim, native, false)
	if err != nil {
		return nil, helper.NewError("create chunks handler", err)
	}

	return &DocSearch{
		DB:        db,
		Documents: documents,
		Chunks:    chunks,
		log:       logger,
	}, nil
}

// Close closes the database connection
func (d *DocSearch) Close() error {
	if d.DB != nil && d.DB.Instance != nil {
		return d.DB.Instance.Close()
	}
	return nil
}

// SetPipeline sets the processing pipeline and wires the retrieval engine to
// its embedder.
func (d *DocSearch) SetPipeline(p *pipeline.Pipeline) {
	d.Pipeline = p
	d.Engine = retrieval.NewEngine(d.Chunks, p.Embedder, d.log)
}

// UseOpenAIPipeline sets up chunking with the default window size and
// embedding via an OpenAI-compatible API.
func (d *DocSearch) UseOpenAIPipeline(cfg pipeline.OpenAIEmbedderConfig) error {
	embedder, err := pipeline.NewOpenAIEmbedder(cfg)
	if err != nil {
		return helper.NewError("create openai embedder", err)
	}

	p := pipeline.NewPipeline(pipeline.SizeChunker(1000, 200), embedder.EmbedFunc())
	p.SetBatchEmbedder(embedder.BatchEmbedFunc())
	d.SetPipeline(p)
	return nil
}

// UseLocalPipeline sets up chunking with the default window size and
// embedding via the local all-MiniLM-L6-v2 model (384 dimensions), for
// deployments without an external embedding API.
func (d *DocSearch) UseLocalPipeline() error {
	embedder, err := pipeline.LocalEmbedder()
	if err != nil {
		return helper.NewError("create local embedder", err)
	}

	p := pipeline.NewPipeline(pipeline.SizeChunker(1000, 200), embedder)
	p.SetBatchEmbedder(pipeline.BatchFromSingle(embedder))
	d.SetPipeline(p)
	return nil
}

// SetSynthesizer sets the default answer synthesizer used by AnswerQuery.
func (d *DocSearch) SetSynthesizer(synthesizer answer.Synthesizer) {
	d.Synthesizer = synthesizer
}

// UseOpenAISynthesizer sets up answer synthesis via an OpenAI-compatible
// chat completions API.
func (d *DocSearch) UseOpenAISynthesizer(cfg answer.OpenAISynthesizerConfig) error {
	synthesizer, err := answer.NewOpenAISynthesizer(cfg)
	if err != nil {
		return helper.NewError("create openai synthesizer", err)
	}
	d.Synthesizer = synthesizer
	return nil
}

// NewOrchestrator builds the question answering entry point on top of the
// configured pipeline and the given synthesizer.
func (d *DocSearch) NewOrchestrator(synthesizer answer.Synthesizer, config *model.QueryConfig) (*answer.Orchestrator, error) {
	if d.Engine == nil {
		return nil, helper.NewError("create orchestrator", fmt.Errorf("pipeline not set, use SetPipeline() first"))
	}
	return answer.NewOrchestrator(d.Engine, synthesizer, config, d.log), nil
}

// ProcessAndInsertDocument inserts the document metadata, processes the
// given text into embedded chunks and stores them. The text itself is not
// persisted, only its chunks. Returns the number of chunks inserted.
func (d *DocSearch) ProcessAndInsertDocument(ctx context.Context, doc *model.Document, text string) (int, error) {
	if d.Pipeline == nil {
		return 0, helper.NewError("process document", fmt.Errorf("pipeline not set, use SetPipeline() first"))
	}
	if text == "" {
		return 0, helper.NewError("process document", fmt.Errorf("document text is empty"))
	}

	if err := d.Documents.InsertDocument(doc); err != nil {
		return 0, helper.NewError("insert document", err)
	}

	d.log.Info("Inserted document", slog.String("document_id", doc.RID.String()), slog.String("title", doc.Title))

	chunks, err := d.Pipeline.Process(ctx, text)
	if err != nil {
		// Embedding failed. Store the chunk texts anyway so a later backfill
		// can attach vectors without re-extracting the document.
		d.log.Warn("Embedding failed, inserting chunks without embeddings", "error", err)

		texts, chunkErr := d.Pipeline.ChunkOnly(text)
		if chunkErr != nil {
			return 0, helper.NewError("process chunks", chunkErr)
		}
		if insertErr := d.Chunks.InsertChunks(doc.ID, texts, nil); insertErr != nil {
			return 0, helper.NewError("insert chunks", insertErr)
		}
		return len(texts), nil
	}

	d.log.Info("Processed document into chunks", slog.Int("num_chunks", len(chunks)), slog.String("document_id", doc.RID.String()))

	texts := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
		embeddings[i] = chunk.Embedding
	}

	if err := d.Chunks.InsertChunks(doc.ID, texts, embeddings); err != nil {
		return 0, helper.NewError("insert chunks", err)
	}

	return len(chunks), nil
}

// IngestProcessedFile ingests a processed-output manifest: for every listed
// document it inserts the metadata and the pre-chunked texts without
// embeddings, to be attached by BackfillEmbeddings. Entries without chunks
// are skipped. Returns the number of documents actually inserted.
func (d *DocSearch) IngestProcessedFile(path string) (int, error) {
	processed, err := model.LoadProcessedDocuments(path)
	if err != nil {
		return 0, err
	}

	numIngested := 0
	for i, entry := range processed {
		if len(entry.Chunks) == 0 {
			d.log.Warn("Skipping document without chunks", slog.String("title", entry.Document.Title))
			continue
		}

		doc := entry.Document.ToDocument()
		if err := d.Documents.InsertDocument(doc); err != nil {
			return numIngested, helper.NewError(fmt.Sprintf("insert document %d", i), err)
		}
		if err := d.Chunks.InsertChunks(doc.ID, entry.Chunks, nil); err != nil {
			return numIngested, helper.NewError(fmt.Sprintf("insert chunks of document %d", i), err)
		}
		numIngested++
	}

	d.log.Info("Ingested processed documents", slog.Int("num_documents", numIngested), slog.String("path", path))

	return numIngested, nil
}

// BackfillEmbeddings embeds all chunks that do not have an embedding yet and
// attaches the vectors. Sub-batches are embedded concurrently by a bounded
// worker pool under a request rate limit; the first failing batch cancels
// the rest, and its chunks keep their missing state for the next run.
// Returns the number of chunks embedded.
func (d *DocSearch) BackfillEmbeddings(ctx context.Context) (int, error) {
	if d.Pipeline == nil || d.Pipeline.BatchEmbedder == nil {
		return 0, helper.NewError("backfill embeddings", fmt.Errorf("pipeline with batch embedder not set, use SetPipeline() first"))
	}

	missing, err := d.Chunks.SelectChunksMissingEmbeddings()
	if err != nil {
		return 0, helper.NewError("select chunks missing embeddings", err)
	}
	if len(missing) == 0 {
		return 0, nil
	}

	d.log.Info("Backfilling embeddings", slog.Int("num_chunks", len(missing)))

	limiter := rate.NewLimiter(backfillRateLimit, 1)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(backfillWorkers)

	for batchStart := 0; batchStart < len(missing); batchStart += backfillBatchSize {
		batchEnd := batchStart + backfillBatchSize
		if batchEnd > len(missing) {
			batchEnd = len(missing)
		}
		batch := missing[batchStart:batchEnd]

		group.Go(func() error {
			if err := limiter.Wait(groupCtx); err != nil {
				return err
			}

			texts := make([]string, len(batch))
			for i, chunk := range batch {
				texts[i] = chunk.Content
			}

			embeddings, err := d.Pipeline.BatchEmbedder(groupCtx, texts)
			if err != nil {
				return helper.NewError("embed batch", err)
			}

			for i, chunk := range batch {
				if err := d.Chunks.AttachEmbedding(chunk.ID, embeddings[i]); err != nil {
					return helper.NewError("attach embedding", err)
				}
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return 0, err
	}

	return len(missing), nil
}

// RegenerateEmbeddings clears all stored embeddings and backfills them with
// the current pipeline. Required after switching the embedding model, since
// vectors from different models must never be mixed in one store.
func (d *DocSearch) RegenerateEmbeddings(ctx context.Context) (int, error) {
	cleared, err := d.Chunks.ClearEmbeddings()
	if err != nil {
		return 0, helper.NewError("clear embeddings", err)
	}

	d.log.Info("Cleared embeddings for regeneration", slog.Int64("num_chunks", cleared))

	return d.BackfillEmbeddings(ctx)
}

// Search returns the chunks most relevant to the query, vector-ranked when
// possible with keyword fallback.
func (d *DocSearch) Search(ctx context.Context, query string, config *model.QueryConfig) ([]*model.SearchResult, error) {
	if d.Engine == nil {
		return nil, helper.NewError("search", fmt.Errorf("pipeline not set, use SetPipeline() first"))
	}
	if config == nil {
		config = model.DefaultQueryConfig()
	}
	return d.Engine.Retrieve(ctx, query, config)
}

// AnswerQuery answers a question from the indexed documents using the given
// synthesizer, or the default synthesizer when nil is passed.
func (d *DocSearch) AnswerQuery(ctx context.Context, question string, synthesizer answer.Synthesizer) (*model.QueryResponse, error) {
	if synthesizer == nil {
		synthesizer = d.Synthesizer
	}
	if synthesizer == nil {
		return nil, helper.NewError("answer query", fmt.Errorf("synthesizer not set, use SetSynthesizer() first"))
	}

	orchestrator, err := d.NewOrchestrator(synthesizer, nil)
	if err != nil {
		return nil, err
	}
	return orchestrator.AnswerQuery(ctx, question)
}

// Statistics summarizes the state of the store.
type Statistics struct {
	NumDocuments        int64 `json:"num_documents"`
	NumChunks           int64 `json:"num_chunks"`
	NumMissingEmbedding int64 `json:"num_missing_embedding"`
	NativeVectors       bool  `json:"native_vectors"`
}

// GetStatistics returns document and chunk counts together with the store's
// vector capability.
func (d *DocSearch) GetStatistics() (*Statistics, error) {
	numDocuments, err := d.Documents.CountDocuments()
	if err != nil {
		return nil, helper.NewError("count documents", err)
	}

	numChunks, err := d.Chunks.CountChunks()
	if err != nil {
		return nil, helper.NewError("count chunks", err)
	}

	numMissing, err := d.Chunks.CountChunksMissingEmbedding()
	if err != nil {
		return nil, helper.NewError("count chunks missing embedding", err)
	}

	return &Statistics{
		NumDocuments:        numDocuments,
		NumChunks:           numChunks,
		NumMissingEmbedding: numMissing,
		NativeVectors:       d.Chunks.NativeVectorSupport(),
	}, nil
}
