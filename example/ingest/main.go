package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/siherrmann/docsearch"
	"github.com/siherrmann/docsearch/core/pipeline"
	"github.com/siherrmann/docsearch/helper"
	"github.com/siherrmann/docsearch/model"
)

const embeddingDim = 3

// demoEmbedder is a deterministic stand-in for a real embedding model so the
// example runs without network access or model downloads.
func demoEmbedder() pipeline.EmbedFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		embedding := make([]float32, embeddingDim)
		for i, r := range text {
			embedding[i%embeddingDim] += float32(int(r)%13) / 13.0
		}
		return embedding, nil
	}
}

// demoSynthesizer echoes the retrieved context instead of calling a language
// model. For a real deployment use answer.NewOpenAISynthesizer.
type demoSynthesizer struct{}

func (demoSynthesizer) Synthesize(ctx context.Context, question string, sources []*model.SearchResult) (string, error) {
	return fmt.Sprintf("Based on %d sources, the most relevant passage is: %q", len(sources), sources[0].Content), nil
}

// writeProcessedManifest writes a small processed-output manifest of the kind
// the external text extraction step produces.
func writeProcessedManifest(dir string) (string, error) {
	entries := []model.ProcessedDocument{
		{
			Document: model.ManifestDocument{
				Title:    "Training Grant Guidelines",
				Date:     "15 March 2024",
				FileType: "pdf",
			},
			NumChunks: 2,
			Chunks: []string{
				"The training grant covers up to eighty percent of eligible course costs.",
				"Applications must be submitted at least four weeks before the course starts.",
			},
		},
		{
			Document: model.ManifestDocument{
				Title:    "Application Checklist",
				Date:     "2024-04-02",
				FileType: "docx",
			},
			NumChunks: 1,
			Chunks: []string{
				"Attach the course invoice and a signed employer statement to the application form.",
			},
		},
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, "processed_documents.json")
	return path, os.WriteFile(path, data, 0644)
}

func main() {
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	d, err := docsearch.NewDocSearch(dbConfig, embeddingDim)
	if err != nil {
		log.Fatalf("Failed to create docsearch: %v", err)
	}
	defer d.Close()

	embedder := demoEmbedder()
	p := pipeline.NewPipeline(pipeline.SizeChunker(1000, 200), embedder)
	p.SetBatchEmbedder(pipeline.BatchFromSingle(embedder))
	d.SetPipeline(p)

	// Two-phase ingestion: insert chunk texts first, attach embeddings later.
	dir, err := os.MkdirTemp("", "docsearch-ingest")
	if err != nil {
		log.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	manifestPath, err := writeProcessedManifest(dir)
	if err != nil {
		log.Fatalf("Failed to write manifest: %v", err)
	}

	fmt.Println("Ingesting processed documents...")
	numDocuments, err := d.IngestProcessedFile(manifestPath)
	if err != nil {
		log.Fatalf("Failed to ingest: %v", err)
	}
	fmt.Printf("Ingested %d documents\n", numDocuments)

	fmt.Println("Backfilling embeddings...")
	numEmbedded, err := d.BackfillEmbeddings(context.Background())
	if err != nil {
		log.Fatalf("Failed to backfill embeddings: %v", err)
	}
	fmt.Printf("Embedded %d chunks\n", numEmbedded)

	question := "How much of the course costs does the grant cover?"
	fmt.Printf("\nAsking: %s\n", question)

	response, err := d.AnswerQuery(context.Background(), question, demoSynthesizer{})
	if err != nil {
		log.Fatalf("Failed to answer query: %v", err)
	}

	fmt.Printf("\nAnswer: %s\n", response.Response)
	fmt.Printf("Sources (%d):\n", response.NumSources)
	for i, source := range response.Sources {
		fmt.Printf("  %d. %s", i+1, source.Title)
		if source.Similarity != nil {
			fmt.Printf(" (similarity %.4f)", *source.Similarity)
		}
		fmt.Println()
	}

	fmt.Println("\nIngest example completed successfully!")
}
