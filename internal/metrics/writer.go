package metrics

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

var csvHeader = []string{"timestamp", "operation", "target", "success", "rtt_ms", "jitter_ms", "value", "error"}

// Writer streams metrics to a CSV file, one flushed row per poll, so a
// monitor killed mid-run still leaves a readable file.
type Writer struct {
	file *os.File
	csv  *csv.Writer
}

// NewWriter creates path and writes the header row.
func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create metrics CSV: %w", err)
	}
	w := &Writer{file: f, csv: csv.NewWriter(f)}
	if err := w.writeRow(csvHeader); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// WriteMetric appends one row.
func (w *Writer) WriteMetric(m Metric) error {
	return w.writeRow([]string{
		m.Timestamp.Format(time.RFC3339Nano),
		string(m.Operation),
		m.Target,
		strconv.FormatBool(m.Success),
		formatMs(m.RTTMs),
		formatMs(m.JitterMs),
		strconv.FormatFloat(m.Value, 'g', -1, 64),
		m.Error,
	})
}

func (w *Writer) writeRow(rec []string) error {
	if err := w.csv.Write(rec); err != nil {
		return fmt.Errorf("write metrics row: %w", err)
	}
	w.csv.Flush()
	return w.csv.Error()
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		w.file.Close()
		return fmt.Errorf("flush metrics CSV: %w", err)
	}
	return w.file.Close()
}

// formatMs leaves zero durations blank so unmeasured rows stay distinct.
func formatMs(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func pct(n, total int) float64 {
	return float64(n) / float64(total) * 100
}

// FormatSummary renders a summary for terminal output and summary files.
func FormatSummary(s *Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total Operations: %d\n", s.TotalOperations)
	if s.TotalOperations == 0 {
		return b.String()
	}
	fmt.Fprintf(&b, "Successful: %d (%.1f%%)\n", s.SuccessfulOps, pct(s.SuccessfulOps, s.TotalOperations))
	fmt.Fprintf(&b, "Failed: %d (%.1f%%)\n", s.FailedOps, pct(s.FailedOps, s.TotalOperations))
	if s.TimeoutCount > 0 {
		fmt.Fprintf(&b, "Timeouts: %d\n", s.TimeoutCount)
	}
	if s.ConnectionFailures > 0 {
		fmt.Fprintf(&b, "Connection Failures: %d\n", s.ConnectionFailures)
	}

	if s.SuccessfulOps > 0 {
		b.WriteString("\nRound trip (ms):\n")
		fmt.Fprintf(&b, "  min %.3f  avg %.3f  max %.3f\n", s.MinRTT, s.AvgRTT, s.MaxRTT)
		if s.P99RTT > 0 {
			fmt.Fprintf(&b, "  p50 %.3f  p90 %.3f  p95 %.3f  p99 %.3f\n", s.P50RTT, s.P90RTT, s.P95RTT, s.P99RTT)
		}
		if len(s.RTTBuckets) > 0 {
			b.WriteString("  histogram:")
			for _, bk := range rttBucketOrder {
				fmt.Fprintf(&b, " %s=%d", bk.label, s.RTTBuckets[bk.key])
			}
			b.WriteString("\n")
		}
	}
	if s.AvgJitter > 0 {
		fmt.Fprintf(&b, "Poll jitter (ms): avg %.3f  max %.3f\n", s.AvgJitter, s.MaxJitter)
	}

	if len(s.RTTByOperation) > 0 {
		b.WriteString("\nPer-Operation Statistics:\n")
		ops := make([]string, 0, len(s.RTTByOperation))
		for op := range s.RTTByOperation {
			ops = append(ops, string(op))
		}
		sort.Strings(ops)
		for _, op := range ops {
			writeStatsLine(&b, op, s.RTTByOperation[OperationType(op)])
		}
	}
	if len(s.RTTByTarget) > 1 {
		b.WriteString("\nPer-Target Statistics:\n")
		targets := make([]string, 0, len(s.RTTByTarget))
		for t := range s.RTTByTarget {
			targets = append(targets, t)
		}
		sort.Strings(targets)
		for _, t := range targets {
			writeStatsLine(&b, t, s.RTTByTarget[t])
		}
	}
	return b.String()
}

func writeStatsLine(b *strings.Builder, name string, st *OperationStats) {
	fmt.Fprintf(b, "  %-16s %5d ok %5d failed", name, st.Success, st.Failed)
	if st.Success > 0 {
		fmt.Fprintf(b, "  rtt %.3f/%.3f/%.3f ms", st.MinRTT, st.AvgRTT, st.MaxRTT)
	}
	b.WriteString("\n")
}
