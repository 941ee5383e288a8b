package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/genba/labjackgo/internal/metrics"
)

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <metrics.csv>...",
		Short: "Summarize metrics CSVs written by monitor",
		Long: `Report reads one or more CSV files produced by "monitor --csv" and prints
the combined latency summary.`,
		Example: `  ljctl report run1.csv run2.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if len(args) == 0 {
				return missingFlagError(cmd, "<metrics.csv>")
			}
			return runReport(cmd, args)
		},
	}
}

func runReport(cmd *cobra.Command, paths []string) error {
	out := cmd.OutOrStdout()
	sink := metrics.NewSink()
	var first, last time.Time
	loaded := 0

	for _, p := range paths {
		records, f, l, err := metrics.ReadMetricsCSV(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping %s: %v\n", filepath.Base(p), err)
			continue
		}
		loaded++
		for _, r := range records {
			sink.Record(r)
		}
		if !f.IsZero() && (first.IsZero() || f.Before(first)) {
			first = f
		}
		if l.After(last) {
			last = l
		}
	}
	if loaded == 0 {
		return fmt.Errorf("no readable metrics files")
	}

	fmt.Fprintf(out, "Files: %d\n", loaded)
	if !first.IsZero() {
		fmt.Fprintf(out, "Span: %s to %s (%s)\n",
			first.Format(time.RFC3339), last.Format(time.RFC3339), last.Sub(first).Round(time.Millisecond))
	}
	fmt.Fprint(out, metrics.FormatSummary(sink.GetSummary()))
	return nil
}
