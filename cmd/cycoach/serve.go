package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cg-ch/cycoach/internal/mcp"
	"github.com/cg-ch/cycoach/internal/metrics"
	"github.com/cg-ch/cycoach/internal/watcher"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		watch       bool
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve memory to chat front-ends over MCP",
		Long: `Starts the Model Context Protocol server on stdio. Chat front-ends call
search_memory, ingest_vault and memory_status.

Stdout carries the protocol; logs go to stderr.

Examples:
  # Stdio only
  cycoach serve

  # Re-ingest when notes change and expose prometheus metrics
  cycoach serve --watch --metrics-addr :9090

MCP client configuration:
  {
    "mcpServers": {
      "cycoach": {
        "command": "/usr/local/bin/cycoach",
        "args": ["serve", "--watch"]
      }
    }
  }`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("metrics-addr") {
				metricsAddr = opts.cfg.Metrics.Addr
			}
			return runServe(cmd.Context(), opts, watch, metricsAddr)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "re-ingest the vault when notes change")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address for the prometheus /metrics endpoint, empty disables it")
	return cmd
}

func runServe(ctx context.Context, opts *rootOptions, watch bool, metricsAddr string) error {
	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	server, err := mcp.NewServer(a.engine, a.indexer, a.searcher, mcp.Options{
		VaultPath: opts.cfg.VaultPath,
		Version:   version,
		Logger:    opts.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	var w *watcher.Watcher
	if watch {
		w, err = watcher.New(opts.cfg.VaultPath, a.indexer, watcher.Config{
			Debounce:      opts.cfg.Watch.Debounce,
			Extensions:    opts.cfg.Ingest.Extensions,
			InitialIngest: true,
			Logger:        opts.logger,
		})
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// The client closing stdin ends the session
		defer cancel()
		return server.Serve(gctx)
	})

	if w != nil {
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	if metricsAddr != "" {
		g.Go(func() error {
			return metrics.Serve(gctx, metricsAddr, opts.logger)
		})
	}

	err = g.Wait()
	opts.logger.Info().Msg("server stopped")
	return err
}
