// Package main provides the trieadmin CLI for operating the name prefix
// index.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/elliewise/nametrie/internal/catalog"
	"github.com/elliewise/nametrie/internal/database"
	"github.com/elliewise/nametrie/internal/store"
	"github.com/elliewise/nametrie/internal/trie"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
	}

	rootCmd := &cobra.Command{
		Use:   "trieadmin",
		Short: "Operate the name prefix index",
		Long:  "Administrative tooling for the materialized name trie: full rebuilds and corpus statistics.",
	}

	rootCmd.AddCommand(rebuildCmd())
	rootCmd.AddCommand(statsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rebuildCmd() *cobra.Command {
	var showWarnings bool

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the whole trie from the current name catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			pool, err := database.NewPool(ctx)
			if err != nil {
				return fmt.Errorf("connecting to postgres: %w", err)
			}
			defer pool.Close()

			rdb, err := database.NewRedisClient(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: redis unavailable, cache generation will not advance: %v\n", err)
				rdb = nil
			} else {
				defer rdb.Close()
			}

			rebuilder := trie.NewRebuilder(catalog.New(pool), store.New(pool), rdb, nil)

			summary, err := rebuilder.Rebuild(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Rebuilt trie in %s\n", summary.Duration.Round(time.Millisecond))
			fmt.Printf("  nodes:   %s\n", humanize.Comma(int64(summary.TotalNodes)))
			fmt.Printf("  names:   %s\n", humanize.Comma(int64(summary.TotalNames)))
			fmt.Printf("  skipped: %s\n", humanize.Comma(int64(summary.SkippedRecords)))

			if showWarnings {
				for _, warning := range summary.Warnings {
					fmt.Printf("  warning: record %d: %s\n", warning.RecordID, warning.Reason)
				}
			} else if len(summary.Warnings) > 0 {
				fmt.Printf("  warnings: %d (rerun with --warnings to list)\n", len(summary.Warnings))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showWarnings, "warnings", false, "List every data warning from the rebuild")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show trie size and the most populous branches",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			pool, err := database.NewPool(ctx)
			if err != nil {
				return fmt.Errorf("connecting to postgres: %w", err)
			}
			defer pool.Close()

			return printStats(ctx, store.New(pool))
		},
	}
}

func printStats(ctx context.Context, nodes *store.Store) error {
	roots, err := nodes.GetDescendantsMatching(ctx, "", nil)
	if err != nil {
		return fmt.Errorf("scanning trie: %w", err)
	}

	if len(roots) == 0 {
		fmt.Println("Trie is empty; run `trieadmin rebuild` first.")
		return nil
	}

	var names, maxDepth int
	var top []string
	var topCount int64
	for _, n := range roots {
		if n.IsCompleteName {
			names++
		}
		if n.PrefixLength > maxDepth {
			maxDepth = n.PrefixLength
		}
		if n.PrefixLength == 1 && int64(n.TotalDescendants) >= topCount {
			if int64(n.TotalDescendants) > topCount {
				top = top[:0]
				topCount = int64(n.TotalDescendants)
			}
			top = append(top, n.Prefix)
		}
	}

	fmt.Printf("nodes:      %s\n", humanize.Comma(int64(len(roots))))
	fmt.Printf("names:      %s\n", humanize.Comma(int64(names)))
	fmt.Printf("max depth:  %d\n", maxDepth)
	fmt.Printf("top branch: %v (%s names)\n", top, humanize.Comma(topCount))
	return nil
}
