package domain

import (
	"path/filepath"
	"strings"
	"time"
)

type ContentType string

const (
	ContentTypeText ContentType = "text"
	ContentTypePDF  ContentType = "pdf"
	ContentTypeXLSX ContentType = "xlsx"
)

// ContentTypeFromFilename resolves the declared content type by extension.
// Unknown extensions are treated as plain text.
func ContentTypeFromFilename(filename string) ContentType {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return ContentTypePDF
	case ".xlsx":
		return ContentTypeXLSX
	default:
		return ContentTypeText
	}
}

// Document is the raw input of one ingestion. It is consumed by the pipeline
// and never stored as-is by the index.
type Document struct {
	SourceID    string
	ContentType ContentType
	Content     []byte
}

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// DocumentRecord tracks one ingestion attempt of a source.
type DocumentRecord struct {
	ID           string         `json:"id"`
	SourceID     string         `json:"source_id"`
	ContentType  ContentType    `json:"content_type"`
	StoragePath  string         `json:"storage_path,omitempty"`
	Status       DocumentStatus `json:"status"`
	SegmentCount int            `json:"segment_count"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type IngestResult struct {
	DocumentID   string         `json:"document_id"`
	SourceID     string         `json:"source_id"`
	Status       DocumentStatus `json:"status"`
	SegmentCount int            `json:"segment_count"`
}
