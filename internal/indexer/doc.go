// Package indexer ingests a vault of markdown notes into the memory engine.
//
// # Basic Usage
//
//	idx := indexer.New(engine, indexer.DefaultConfig())
//
//	stats, err := idx.Ingest(ctx, "memory/vault")
//	if err != nil {
//	    return err // lock busy or vault missing
//	}
//	fmt.Printf("changed=%d failed=%d\n", stats.Changed, stats.Failed)
//
// # Pipeline
//
// For every non-hidden file with a configured extension:
//
//  1. Compare the file's modification time with the stored record; equal means unchanged
//  2. Read the content; blank files are skipped and never stored
//  3. Embed the content
//  4. Upsert path, content, modification time and embedding in one statement
//
// When at least one record changed, the engine's corpus snapshot is rebuilt
// once at the end of the run.
//
// # Change Detection
//
// The default mtime mode re-embeds any file whose modification time moved,
// even if only touched. Hash mode compares content first and, when identical,
// keeps the stored embedding and only records the new modification time.
//
// # Failures and Cancellation
//
// A file that cannot be read or embedded is logged, counted in
// Statistics.Failed, and its stored record is left as it was. Cancelling the
// context stops new files from starting; writes already under way complete
// and the snapshot is still rebuilt if anything changed.
//
// Deleted files are not removed from the store.
package indexer
