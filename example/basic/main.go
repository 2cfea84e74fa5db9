package main

import (
	"context"
	"fmt"
	"log"

	"github.com/siherrmann/docsearch"
	"github.com/siherrmann/docsearch/core/pipeline"
	"github.com/siherrmann/docsearch/helper"
	"github.com/siherrmann/docsearch/model"
)

const sampleText = `This is a sample document about retrieval pipelines.

Retrieval pipelines split documents into overlapping chunks and embed each chunk as a vector.
At query time the question is embedded the same way and compared against the stored chunks.

PostgreSQL with the pgvector extension can rank chunks by cosine distance directly in the database.
When the extension is not available, embeddings are stored as JSON and scored in the application.

Combining vector search with a keyword fallback keeps retrieval working even when the embedding
API is unreachable.`

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

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration using the container port
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

	// Set up chunking and the demo embedder. For a real deployment use
	// UseOpenAIPipeline or UseLocalPipeline instead.
	embedder := demoEmbedder()
	p := pipeline.NewPipeline(pipeline.SizeChunker(1000, 200), embedder)
	p.SetBatchEmbedder(pipeline.BatchFromSingle(embedder))
	d.SetPipeline(p)

	doc := model.NewDocument("Introduction to Retrieval Pipelines", "md", "2024-05-01", "", "")

	fmt.Println("Ingesting document...")
	numChunks, err := d.ProcessAndInsertDocument(context.Background(), doc, sampleText)
	if err != nil {
		log.Fatalf("Failed to process and insert document: %v", err)
	}
	fmt.Printf("Document inserted with ID: %s\n", doc.RID)
	fmt.Printf("Inserted %d chunks\n", numChunks)

	queryText := "How does vector search rank chunks?"

	fmt.Printf("\nQuerying: %s\n", queryText)

	config := model.DefaultQueryConfig()
	config.TopK = 5

	results, err := d.Search(context.Background(), queryText, config)
	if err != nil {
		log.Fatalf("Failed to search: %v", err)
	}

	fmt.Printf("\nFound %d results:\n", len(results))
	for i, result := range results {
		fmt.Printf("\n--- Result %d ---\n", i+1)
		if result.Similarity != nil {
			fmt.Printf("Similarity: %.4f\n", *result.Similarity)
		}
		fmt.Printf("Content: %s\n", result.Content)
		fmt.Printf("Document: %s\n", result.Title)
		fmt.Printf("Method: %s\n", result.Method)
	}

	stats, err := d.GetStatistics()
	if err != nil {
		log.Fatalf("Failed to get statistics: %v", err)
	}
	fmt.Printf("\nStore: %d documents, %d chunks, native vectors: %v\n", stats.NumDocuments, stats.NumChunks, stats.NativeVectors)

	fmt.Println("\nBasic example completed successfully!")
}
