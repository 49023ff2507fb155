package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Cryonoid/TwitLysis/internal/browser"
	"github.com/Cryonoid/TwitLysis/internal/dedup"
	"github.com/Cryonoid/TwitLysis/internal/extract"
	"github.com/Cryonoid/TwitLysis/internal/pipeline"
	"github.com/Cryonoid/TwitLysis/internal/relevance"
	"github.com/Cryonoid/TwitLysis/internal/tweet"
)

var extractTerm string

func init() {
	extractCmd.Flags().StringVar(&extractTerm, "term", "", "score the extracted posts against this term")
	rootCmd.AddCommand(extractCmd)
}

var extractCmd = &cobra.Command{
	Use:   "extract <file.html>",
	Short: "Extracts posts from a saved page snapshot without a browser.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		doc, err := browser.ParseHTML(f)
		if err != nil {
			return fmt.Errorf("parse %s: %w", args[0], err)
		}
		units, err := doc.FindAll(extract.ArticleSelector)
		if err != nil {
			return err
		}

		var (
			running dedup.Running
			found   []tweet.Item
		)
		x := extract.New()
		for _, el := range units {
			if it, ok := x.Extract(el, running.Seen); ok && running.Accept(it) {
				found = append(found, it)
			}
		}
		items := dedup.FinalPass(found)

		scored := tweet.Unscored(items)
		if extractTerm != "" {
			rep := relevance.NewScorer(logger).Score(extractTerm, items)
			if rep.Mode != relevance.ModeFailed {
				scored = rep.Items
			}
		}
		tweet.Rank(scored)

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.SetTitle(fmt.Sprintf("%s: %d posts in %d units", args[0], len(scored), len(units)))
		t.AppendHeader(table.Row{"ID", "Score", "Author", "Tags", "Text"})
		for _, it := range scored {
			t.AppendRow(table.Row{it.ID, it.RelevancyScore, it.Author, len(it.Tags), pipeline.Excerpt(it.Text, 80)})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}
