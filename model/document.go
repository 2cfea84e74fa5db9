package model

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Document represents one source file in the corpus. Documents are created
// during ingestion and are immutable afterwards except for file path
// correction; deleting a document cascades to its chunks.
type Document struct {
	ID          int64      `json:"id"`
	RID         uuid.UUID  `json:"rid"`
	Title       string     `json:"title"`
	Filename    string     `json:"filename,omitempty"`
	FileType    string     `json:"file_type,omitempty"`
	Date        *time.Time `json:"date,omitempty"`
	DownloadURL string     `json:"download_url,omitempty"`
	FilePath    string     `json:"file_path,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewDocument creates a document from its source metadata. The filename is
// derived from the file path and the date string is parsed leniently (an
// unknown or unparseable date stays nil).
func NewDocument(title, fileType, dateStr, downloadURL, filePath string) *Document {
	doc := &Document{
		Title:       title,
		FileType:    fileType,
		Date:        ParseDate(dateStr),
		DownloadURL: downloadURL,
		FilePath:    filePath,
	}
	if filePath != "" {
		doc.Filename = filepath.Base(filePath)
	}
	return doc
}

// ParseDate parses a publication date in either "25 April 2024" or
// "2024-04-25" form. Unknown or unparseable dates return nil.
func ParseDate(dateStr string) *time.Time {
	if dateStr == "" || dateStr == "Unknown" {
		return nil
	}

	for _, layout := range []string{"2 January 2006", "2006-01-02"} {
		if parsed, err := time.Parse(layout, dateStr); err == nil {
			return &parsed
		}
	}

	return nil
}
