// Package storage provides SQLite-based persistence for ingested vault documents.
//
// Each document row holds the file's vault-relative path, its full content,
// the file modification time observed at ingest, and the float32 embedding of
// the content serialized as a little-endian blob. Content and embedding are
// written by a single upsert so they never drift apart.
//
// # Database Schema
//
// Tables:
//   - documents: one row per ingested file, keyed by path
//   - store_meta: the write revision, bumped by triggers on documents
//   - schema_version: applied migrations
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage("memory/db.sqlite")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	doc := storage.NewDocument("daily/2024-05-01.md", content, modifiedAt, vector)
//	if err := store.UpsertDocument(ctx, doc); err != nil {
//	    return err
//	}
//
//	docs, err := store.ListDocuments(ctx) // ordered by path
//
// # Revisions
//
// Revision returns a counter that changes on every insert or update. Readers
// holding an in-memory index compare it with the revision their index was built
// from to decide whether the index is stale.
//
// # Build Tags
//
// Pure Go Build (default):
//
//   - Uses modernc.org/sqlite driver
//
//   - No C compiler needed
//
//     CGO_ENABLED=0 go build ./...
//
// CGO Build (sqlite_cgo tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//     CGO_ENABLED=1 go build -tags "sqlite_cgo" ./...
package storage
