package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
)

//go:embed documents.sql
var documentsSQL string

//go:embed chunks_native.sql
var chunksNativeSQL string

//go:embed chunks_fallback.sql
var chunksFallbackSQL string

// Function lists for verification
var DocumentsFunctions = []string{
	"init_documents",
	"insert_document",
	"select_document",
	"select_all_documents",
	"update_document_path",
	"delete_document",
	"count_documents",
}

var ChunksFunctions = []string{
	"init_chunks",
	"insert_content_chunk",
	"update_chunk_embedding",
	"clear_chunk_embeddings",
	"select_chunks_missing_embedding",
	"select_chunks_by_document",
	"select_chunk_candidates",
	"search_chunks_by_keyword",
	"count_chunks",
	"count_chunks_missing_embedding",
}

var ChunksNativeFunctions = append([]string{
	"search_chunks_by_similarity",
}, ChunksFunctions...)

// Init probes the database for native vector support by attempting to enable
// the pgvector extension. The result is the store's capability flag, decided
// once at initialization and never re-probed per request.
func Init(db *sql.DB) bool {
	_, err := db.Exec(`CREATE EXTENSION IF NOT EXISTS vector;`)
	if err != nil {
		log.Println("pgvector not available, falling back to JSONB embeddings")
		return false
	}

	log.Println("Using pgvector extension for embeddings")
	return true
}

// LoadDocumentsSql loads document-related SQL functions
func LoadDocumentsSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, DocumentsFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing documents functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(documentsSQL)
	if err != nil {
		return fmt.Errorf("error executing documents SQL: %w", err)
	}

	exist, err := checkFunctions(db, DocumentsFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL documents functions loaded successfully")
	return nil
}

// LoadChunksSql loads chunk-related SQL functions for the given capability.
// The native variant defines similarity search over a vector column; the
// fallback variant stores embeddings as JSONB and leaves ranking to the
// application.
func LoadChunksSql(db *sql.DB, native bool, force bool) error {
	functions := ChunksFunctions
	chunksSQL := chunksFallbackSQL
	if native {
		functions = ChunksNativeFunctions
		chunksSQL = chunksNativeSQL
	}

	if !force {
		exist, err := checkFunctions(db, functions)
		if err != nil {
			return fmt.Errorf("error checking existing chunks functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(chunksSQL)
	if err != nil {
		return fmt.Errorf("error executing chunks SQL: %w", err)
	}

	exist, err := checkFunctions(db, functions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL chunks functions loaded successfully")
	return nil
}

// LoadAllSql loads all SQL functions
func LoadAllSql(db *sql.DB, native bool, force bool) error {
	if err := LoadDocumentsSql(db, force); err != nil {
		return err
	}

	if err := LoadChunksSql(db, native, force); err != nil {
		return err
	}

	return nil
}

// checkFunctions verifies that all required functions exist in the database
func checkFunctions(db *sql.DB, sqlFunctions []string) (bool, error) {
	var allExist bool
	for _, f := range sqlFunctions {
		err := db.QueryRow(
			`SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);`,
			f,
		).Scan(&allExist)
		if err != nil {
			return false, fmt.Errorf("error checking existence of function %s: %w", f, err)
		}
		if !allExist {
			log.Printf("Function %s does not exist", f)
			break
		}
	}
	return allExist, nil
}
