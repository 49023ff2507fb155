package main

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Cryonoid/TwitLysis/internal/storage"
)

var (
	resultsTerm  string
	resultsLimit int
	resultsSince time.Duration
	resultsRaw   bool
)

func init() {
	resultsCmd.Flags().StringVar(&resultsTerm, "term", "", "only show results for this term")
	resultsCmd.Flags().IntVar(&resultsLimit, "limit", 20, "maximum number of rows")
	resultsCmd.Flags().DurationVar(&resultsSince, "since", 0, "only show results newer than this, e.g. 24h")
	resultsCmd.Flags().BoolVar(&resultsRaw, "raw", false, "list raw snapshots instead of scored results")
	rootCmd.AddCommand(resultsCmd)
}

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Lists stored analysis results, newest first.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		backend, err := openBackend(ctx, cfg)
		if err != nil {
			return err
		}
		defer backend.Close()

		filter := storage.Filter{Term: resultsTerm, Category: storage.Scored, Limit: resultsLimit}
		if resultsRaw {
			filter.Category = storage.Raw
		}
		if resultsSince > 0 {
			since := time.Now().Add(-resultsSince)
			filter.Since = &since
		}
		recs, err := backend.Query(ctx, filter)
		if err != nil {
			return fmt.Errorf("query results: %w", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Date", "Term", "Score", "Posts", "Run"})
		for _, rec := range recs {
			t.AppendRow(table.Row{
				rec.CreatedAt.Local().Format("2006-01-02 15:04"),
				rec.Result.SearchTerm,
				rec.Result.TrendRelevancy,
				rec.Result.ItemCount,
				rec.RunID,
			})
		}
		t.AppendFooter(table.Row{"", "", "", "Total", len(recs)})
		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}
