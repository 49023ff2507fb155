package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Cryonoid/TwitLysis/internal/pipeline"
	"github.com/Cryonoid/TwitLysis/internal/progress"
	"github.com/Cryonoid/TwitLysis/internal/report"
)

var (
	reportFormat string
	reportOut    string
	reportTop    int
)

func init() {
	analyzeCmd.Flags().StringVar(&reportFormat, "report", "text", "report format: text, json or html")
	analyzeCmd.Flags().StringVarP(&reportOut, "output", "o", "", "write the report to a file instead of stdout")
	analyzeCmd.Flags().IntVar(&reportTop, "top", report.DefaultTop, "number of posts to list")
	rootCmd.AddCommand(analyzeCmd)
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <term>",
	Short: "Collects posts for a term, scores them and stores the results.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		term := strings.Join(args, " ")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, backend, err := newPipeline(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer backend.Close()

		rep := progress.NewReporter(64, nil)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for ev := range rep.Events() {
				fmt.Fprintln(cmd.ErrOrStderr(), ev.Message)
			}
		}()

		run, err := p.Run(ctx, term, rep)
		rep.Close()
		<-done
		if err != nil {
			return err
		}

		renderItems(cmd.ErrOrStderr(), run, reportTop)

		out := cmd.OutOrStdout()
		if reportOut != "" {
			f, err := os.Create(reportOut)
			if err != nil {
				return fmt.Errorf("create report: %w", err)
			}
			defer f.Close()
			out = f
		}
		if err := report.Write(out, reportFormat, report.GenerateSummary(run, reportTop)); err != nil {
			return err
		}

		if run.Failed() {
			return fmt.Errorf("analysis of %q failed: %s", term, run.RootCause)
		}
		return nil
	},
}

func renderItems(w io.Writer, run *pipeline.Run, top int) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("%s: trend %d/100, %d posts", run.Term, run.Result.TrendRelevancy, run.Result.ItemCount))
	t.AppendHeader(table.Row{"#", "Score", "Author", "Text"})
	for i, it := range run.Result.Top(top) {
		t.AppendRow(table.Row{i + 1, it.RelevancyScore, it.Author, pipeline.Excerpt(it.Text, 80)})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}
