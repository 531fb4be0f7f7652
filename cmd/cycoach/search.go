package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cg-ch/cycoach/internal/searcher"
)

type searchOptions struct {
	limit       int
	asJSON      bool
	interactive bool
	noIngest    bool
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	so := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the memory vault",
		Long: `Performs hybrid search across all ingested notes.
Combines semantic (vector) similarity with keyword (BM25) relevance.

The vault is ingested first so results reflect the latest notes; pass
--no-ingest to search what is already stored. With --interactive, queries are
read from stdin until "exit", "quit" or end of input.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if so.interactive {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("limit") {
				so.limit = 0 // configured default
			}
			return runSearch(cmd, opts, so, args)
		},
	}

	cmd.Flags().IntVarP(&so.limit, "limit", "n", searcher.DefaultLimit, "maximum number of results")
	cmd.Flags().BoolVar(&so.asJSON, "json", false, "output results as JSON")
	cmd.Flags().BoolVarP(&so.interactive, "interactive", "i", false, "read queries from stdin and print a results table")
	cmd.Flags().BoolVar(&so.noIngest, "no-ingest", false, "skip ingesting the vault before searching")
	return cmd
}

func runSearch(cmd *cobra.Command, opts *rootOptions, so *searchOptions, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if !so.noIngest {
		stats, err := a.indexer.Ingest(ctx, opts.cfg.VaultPath)
		if err != nil {
			opts.logger.Warn().Err(err).Str("vault", opts.cfg.VaultPath).Msg("ingest before search failed, searching stored notes")
		} else if stats.Changed > 0 || stats.Failed > 0 {
			opts.logger.Info().Int("changed", stats.Changed).Int("failed", stats.Failed).Msg("vault ingested")
		}
	}

	if so.interactive {
		return searchLoop(ctx, a.searcher, cmd.InOrStdin(), cmd.OutOrStdout(), so.limit)
	}

	resp, err := a.searcher.Search(ctx, searcher.SearchRequest{Query: args[0], Limit: so.limit})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if so.asJSON {
		return writeJSON(cmd.OutOrStdout(), resp.Results)
	}
	printResults(cmd.OutOrStdout(), resp)
	return nil
}

// searchLoop answers one query per input line
func searchLoop(ctx context.Context, s *searcher.Searcher, in io.Reader, out io.Writer, limit int) error {
	scanner := bufio.NewScanner(in)
	for {
		_, _ = fmt.Fprint(out, "Query> ")
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(out)
			return scanner.Err()
		}

		query := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(query) {
		case "":
			continue
		case "exit", "quit", "q":
			return nil
		}

		resp, err := s.Search(ctx, searcher.SearchRequest{Query: query, Limit: limit})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			_, _ = fmt.Fprintf(out, "search failed: %v\n", err)
			continue
		}
		printResults(out, resp)
	}
}

func printResults(out io.Writer, resp *searcher.SearchResponse) {
	switch {
	case resp.IndexEmpty:
		_, _ = fmt.Fprintln(out, mutedStyle.Render("Memory is empty. Run `cycoach ingest` first."))
	case len(resp.Results) == 0:
		_, _ = fmt.Fprintln(out, "No results found.")
	default:
		_, _ = fmt.Fprintln(out, renderResults(resp.Results))
	}
}
