package metrics

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// ReadMetricsCSV reads a metrics CSV file and returns the parsed metrics along
// with the first and last timestamps found in the data.
func ReadMetricsCSV(path string) ([]Metric, time.Time, time.Time, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, time.Time{}, time.Time{}, fmt.Errorf("open metrics CSV: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, time.Time{}, time.Time{}, fmt.Errorf("read CSV header: %w", err)
	}

	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		colIndex[col] = i
	}

	for _, col := range []string{"timestamp", "operation", "success", "rtt_ms"} {
		if _, ok := colIndex[col]; !ok {
			return nil, time.Time{}, time.Time{}, fmt.Errorf("CSV missing required column: %s", col)
		}
	}

	field := func(record []string, name string) (string, bool) {
		idx, ok := colIndex[name]
		if !ok || idx >= len(record) {
			return "", false
		}
		return record[idx], true
	}
	float := func(record []string, name string) float64 {
		s, ok := field(record, name)
		if !ok || s == "" {
			return 0
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return v
	}

	var metrics []Metric
	var firstTime, lastTime time.Time
	rowCount := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, time.Time{}, time.Time{}, fmt.Errorf("read CSV row %d: %w", rowCount+2, err)
		}

		m := Metric{}
		if s, ok := field(record, "timestamp"); ok {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				m.Timestamp = t
				if rowCount == 0 {
					firstTime = t
				}
				lastTime = t
			}
		}
		if s, ok := field(record, "operation"); ok {
			m.Operation = OperationType(s)
		}
		if s, ok := field(record, "target"); ok {
			m.Target = s
		}
		if s, ok := field(record, "success"); ok {
			m.Success = s == "true"
		}
		if s, ok := field(record, "error"); ok {
			m.Error = s
		}
		m.RTTMs = float(record, "rtt_ms")
		m.JitterMs = float(record, "jitter_ms")
		m.Value = float(record, "value")

		metrics = append(metrics, m)
		rowCount++
	}

	if rowCount == 0 {
		return nil, time.Time{}, time.Time{}, fmt.Errorf("no data rows in CSV file")
	}

	return metrics, firstTime, lastTime, nil
}
