package storage

import (
	"context"
	"fmt"
	"time"
)

// Storage defines the interface for persisting and querying ingested documents
type Storage interface {
	// Document operations
	GetDocument(ctx context.Context, path string) (*Document, error)
	UpsertDocument(ctx context.Context, doc *Document) error
	ListDocuments(ctx context.Context) ([]*Document, error)

	// Revision returns a counter that changes whenever a document is written
	Revision(ctx context.Context) (int64, error)

	// Status operations
	GetStatus(ctx context.Context) (*Status, error)

	// Database operations
	Close() error
}

// Document is one ingested vault file, keyed by its vault-relative path
type Document struct {
	Path       string  // Relative to vault root, slash separated
	Content    string  // Full file content as of ingest
	ModifiedAt float64 // File modification time, epoch seconds
	Vector     []byte  // Serialized float32 embedding of Content
	Dimension  int
	UpdatedAt  time.Time
}

// NewDocument builds a Document with its embedding serialized
func NewDocument(path, content string, modifiedAt float64, embedding []float32) *Document {
	return &Document{
		Path:       path,
		Content:    content,
		ModifiedAt: modifiedAt,
		Vector:     serializeVector(embedding),
		Dimension:  len(embedding),
	}
}

// Embedding decodes the stored vector.
// Returns ErrCorruptVector when the blob cannot be decoded or disagrees with Dimension.
func (d *Document) Embedding() ([]float32, error) {
	vector, err := deserializeVector(d.Vector)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Path, err)
	}
	if d.Dimension != 0 && len(vector) != d.Dimension {
		return nil, fmt.Errorf("%s: %w: dimension %d, stored %d", d.Path, ErrCorruptVector, len(vector), d.Dimension)
	}
	return vector, nil
}

// Status contains statistics about the document store
type Status struct {
	DocumentCount int
	ContentBytes  int64
	Revision      int64
	LastUpdatedAt time.Time
	DatabaseMB    float64
	SchemaVersion string
	Health        HealthStatus
}

// HealthStatus represents the health of the store
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
}
