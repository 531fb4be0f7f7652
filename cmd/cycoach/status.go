package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show memory store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			status, err := a.store.GetStatus(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			snap := a.engine.Snapshot()

			lastUpdated := ""
			if !status.LastUpdatedAt.IsZero() {
				lastUpdated = status.LastUpdatedAt.Format(time.RFC3339)
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"vault":                opts.cfg.VaultPath,
					"database":             opts.cfg.DBPath,
					"documents":            status.DocumentCount,
					"searchable_documents": snap.Len(),
					"corrupt_documents":    len(snap.Corrupt),
					"content_bytes":        status.ContentBytes,
					"database_mb":          status.DatabaseMB,
					"revision":             status.Revision,
					"schema_version":       status.SchemaVersion,
					"last_updated_at":      lastUpdated,
					"embedding_provider":   a.embedder.Provider(),
					"embedding_model":      a.embedder.Model(),
					"database_accessible":  status.Health.DatabaseAccessible,
					"embeddings_available": status.Health.EmbeddingsAvailable,
				})
			}

			out := cmd.OutOrStdout()
			if lastUpdated == "" {
				lastUpdated = "never"
			}
			fmt.Fprintf(out, "Vault:          %s\n", opts.cfg.VaultPath)
			fmt.Fprintf(out, "Database:       %s (%.2f MB, schema %s)\n", opts.cfg.DBPath, status.DatabaseMB, status.SchemaVersion)
			fmt.Fprintf(out, "Documents:      %d (%d searchable, %d corrupt)\n", status.DocumentCount, snap.Len(), len(snap.Corrupt))
			fmt.Fprintf(out, "Content:        %d bytes\n", status.ContentBytes)
			fmt.Fprintf(out, "Revision:       %d\n", status.Revision)
			fmt.Fprintf(out, "Last updated:   %s\n", lastUpdated)
			fmt.Fprintf(out, "Embeddings:     %s / %s (%d dims)\n", a.embedder.Provider(), a.embedder.Model(), a.embedder.Dimension())
			fmt.Fprintf(out, "Health:         database=%t embeddings=%t\n", status.Health.DatabaseAccessible, status.Health.EmbeddingsAvailable)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output status as JSON")
	return cmd
}
