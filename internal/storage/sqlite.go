package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrNotFound is returned when a requested document doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrCorruptVector is returned when a stored embedding cannot be decoded
	ErrCorruptVector = errors.New("corrupt embedding vector")
	// ErrInvalidDocument is returned when a document is missing required fields
	ErrInvalidDocument = errors.New("invalid document")
)

// busyTimeoutMs bounds how long a statement waits on a locked database
const busyTimeoutMs = 5000

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Single connection so per-connection pragmas stick
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMs),
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Document operations

// GetDocument retrieves a document by its relative path
func (s *SQLiteStorage) GetDocument(ctx context.Context, path string) (*Document, error) {
	query := `
		SELECT path, content, modified_at, embedding, dimension, updated_at
		FROM documents
		WHERE path = ?
	`

	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, path))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", path, err)
	}
	return doc, nil
}

// UpsertDocument inserts or replaces the document stored under doc.Path.
// The write is a single statement, so content and embedding always change together.
func (s *SQLiteStorage) UpsertDocument(ctx context.Context, doc *Document) error {
	if doc == nil || doc.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidDocument)
	}
	if len(doc.Vector) == 0 || len(doc.Vector)%4 != 0 {
		return fmt.Errorf("%w: embedding blob has %d bytes", ErrInvalidDocument, len(doc.Vector))
	}

	dimension := doc.Dimension
	if dimension == 0 {
		dimension = len(doc.Vector) / 4
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO documents (path, content, modified_at, embedding, dimension, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			content = excluded.content,
			modified_at = excluded.modified_at,
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		doc.Path, doc.Content, doc.ModifiedAt, doc.Vector, dimension, toEpoch(now))
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", doc.Path, err)
	}

	doc.Dimension = dimension
	doc.UpdatedAt = now
	return nil
}

// ListDocuments returns every stored document ordered by path
func (s *SQLiteStorage) ListDocuments(ctx context.Context) ([]*Document, error) {
	query := `
		SELECT path, content, modified_at, embedding, dimension, updated_at
		FROM documents
		ORDER BY path
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	docs := make([]*Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

// Revision returns the store revision, bumped by triggers on every write
func (s *SQLiteStorage) Revision(ctx context.Context) (int64, error) {
	var revision int64
	err := s.db.QueryRowContext(ctx, "SELECT value FROM store_meta WHERE key = 'revision'").Scan(&revision)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read revision: %w", err)
	}
	return revision, nil
}

// Status operations

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{}

	var contentBytes sql.NullInt64
	var lastUpdated sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(LENGTH(CAST(content AS BLOB))), MAX(updated_at)
		FROM documents
	`).Scan(&status.DocumentCount, &contentBytes, &lastUpdated)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	status.ContentBytes = contentBytes.Int64
	if lastUpdated.Valid {
		status.LastUpdatedAt = fromEpoch(lastUpdated.Float64)
	}

	status.Revision, err = s.Revision(ctx)
	if err != nil {
		return nil, err
	}

	_ = s.db.QueryRowContext(ctx,
		"SELECT version FROM schema_version ORDER BY applied_at DESC LIMIT 1").Scan(&status.SchemaVersion)

	// Calculate database size
	var pageCount, pageSize int
	err = s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.DatabaseMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: status.DocumentCount > 0,
	}

	return status, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var updatedAt sql.NullFloat64
	if err := row.Scan(&doc.Path, &doc.Content, &doc.ModifiedAt, &doc.Vector, &doc.Dimension, &updatedAt); err != nil {
		return nil, err
	}
	if updatedAt.Valid {
		doc.UpdatedAt = fromEpoch(updatedAt.Float64)
	}
	return &doc, nil
}

func toEpoch(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromEpoch(seconds float64) time.Time {
	whole, frac := math.Modf(seconds)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}
