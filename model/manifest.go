package model

import (
	"encoding/json"
	"os"

	"github.com/siherrmann/docsearch/helper"
)

// ManifestDocument is one entry of the scraper's metadata manifest. The
// manifest is the interchange contract between the external document
// discovery/download collaborators and the ingestion entry point.
type ManifestDocument struct {
	Title       string `json:"title"`
	Date        string `json:"date,omitempty"`
	FileType    string `json:"file_type"`
	DownloadURL string `json:"download_url,omitempty"`
	FilePath    string `json:"file_path,omitempty"`
}

// ToDocument converts a manifest entry into a Document ready for insertion.
func (m *ManifestDocument) ToDocument() *Document {
	return NewDocument(m.Title, m.FileType, m.Date, m.DownloadURL, m.FilePath)
}

// ProcessedDocument is one entry of the processed-output manifest written by
// the external text extraction collaborator: a document plus its chunk texts.
type ProcessedDocument struct {
	Document  ManifestDocument `json:"document"`
	NumChunks int              `json:"num_chunks"`
	Chunks    []string         `json:"chunks"`
}

// LoadManifest reads a metadata manifest from a JSON file.
func LoadManifest(path string) ([]ManifestDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, helper.NewError("read manifest", err)
	}

	var documents []ManifestDocument
	if err := json.Unmarshal(data, &documents); err != nil {
		return nil, helper.NewError("parse manifest", err)
	}

	return documents, nil
}

// LoadProcessedDocuments reads a processed-output manifest from a JSON file.
func LoadProcessedDocuments(path string) ([]ProcessedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, helper.NewError("read processed documents", err)
	}

	var processed []ProcessedDocument
	if err := json.Unmarshal(data, &processed); err != nil {
		return nil, helper.NewError("parse processed documents", err)
	}

	return processed, nil
}
