package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/cg-ch/cycoach/internal/indexer"
)

func newIngestCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ingest [vault]",
		Short: "Ingest new and modified notes",
		Long: `Walks the vault and embeds every markdown note that is new or whose
modification time changed since the last ingest. Unchanged notes are skipped,
so running ingest repeatedly is cheap.

Notes deleted from the vault stay in memory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			stats, err := a.indexer.Ingest(cmd.Context(), opts.vaultArg(args))
			if err != nil {
				return fmt.Errorf("ingest failed: %w", err)
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), ingestSummary(stats))
			}
			printIngestSummary(cmd.OutOrStdout(), stats)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output the summary as JSON")
	return cmd
}

// ingestSummary is the JSON shape of an ingest run
func ingestSummary(stats *indexer.Statistics) map[string]interface{} {
	return map[string]interface{}{
		"changed":       stats.Changed,
		"failed":        stats.Failed,
		"scanned":       stats.Scanned,
		"skipped":       stats.Skipped,
		"empty":         stats.Empty,
		"touched":       stats.Touched,
		"interrupted":   stats.Interrupted,
		"index_rebuilt": stats.IndexRebuilt,
		"duration_ms":   stats.Duration.Milliseconds(),
		"errors":        stats.ErrorMessages,
	}
}

func printIngestSummary(w io.Writer, stats *indexer.Statistics) {
	_, _ = fmt.Fprintf(w, "Ingested %d changed, %d failed (scanned %d, skipped %d, empty %d) in %s\n",
		stats.Changed, stats.Failed, stats.Scanned, stats.Skipped, stats.Empty, stats.Duration.Round(time.Millisecond))
	if stats.Touched > 0 {
		_, _ = fmt.Fprintf(w, "  %d touched without content changes\n", stats.Touched)
	}
	if stats.Interrupted {
		_, _ = fmt.Fprintln(w, "  interrupted, remaining notes will be picked up next run")
	}
	for _, msg := range stats.ErrorMessages {
		_, _ = fmt.Fprintf(w, "  error: %s\n", msg)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
