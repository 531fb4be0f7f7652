package main

import (
	"github.com/spf13/cobra"

	"github.com/cg-ch/cycoach/internal/indexer"
	"github.com/cg-ch/cycoach/internal/watcher"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [vault]",
		Short: "Ingest the vault and keep re-ingesting on change",
		Long: `Runs an ingest, then watches the vault and ingests again after each burst
of edits settles (watch.debounce, default 2s). Stops on Ctrl-C.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out := cmd.OutOrStdout()
			w, err := watcher.New(opts.vaultArg(args), a.indexer, watcher.Config{
				Debounce:      opts.cfg.Watch.Debounce,
				Extensions:    opts.cfg.Ingest.Extensions,
				InitialIngest: true,
				Logger:        opts.logger,
				OnIngest: func(stats *indexer.Statistics, err error) {
					if err == nil {
						printIngestSummary(out, stats)
					}
				},
			})
			if err != nil {
				return err
			}

			return w.Run(cmd.Context())
		},
	}
}
