// Package artifact lays out the files a monitoring run leaves behind.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/genba/labjackgo/internal/device"
	"github.com/genba/labjackgo/internal/metrics"
)

// RunMetadata describes one monitoring run.
type RunMetadata struct {
	RunID     string    `json:"run_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  string    `json:"duration"`

	Device DeviceInfo `json:"device"`

	Registers []uint16 `json:"registers"`
	RateHz    float64  `json:"rate_hz"`

	Stats    RunStats `json:"stats"`
	ExitCode int      `json:"exit_code"`
	Error    string   `json:"error,omitempty"`

	// Relative to the output directory.
	Artifacts ArtifactPaths `json:"artifacts"`
}

// DeviceInfo is the identity of the monitored device.
type DeviceInfo struct {
	Family    string `json:"family"`
	Transport string `json:"transport"`
	Serial    uint32 `json:"serial"`
	LocalID   uint8  `json:"local_id"`
	Address   string `json:"address,omitempty"`
}

// RunStats condenses the metrics summary. RTTs are in milliseconds.
type RunStats struct {
	TotalOperations int     `json:"total_operations"`
	SuccessfulOps   int     `json:"successful_ops"`
	FailedOps       int     `json:"failed_ops"`
	TimeoutCount    int     `json:"timeout_count"`
	AvgRTTMs        float64 `json:"avg_rtt_ms"`
	P50RTTMs        float64 `json:"p50_rtt_ms"`
	P95RTTMs        float64 `json:"p95_rtt_ms"`
	P99RTTMs        float64 `json:"p99_rtt_ms"`
	MaxRTTMs        float64 `json:"max_rtt_ms"`
}

// ArtifactPaths names the files of a run.
type ArtifactPaths struct {
	RunJSON    string `json:"run_json"`
	MetricsCSV string `json:"metrics_csv,omitempty"`
	SummaryTxt string `json:"summary_txt,omitempty"`
	PCAPFile   string `json:"pcap_file,omitempty"`
}

// OutputManager owns the output directory of a run.
type OutputManager struct {
	outputDir string
	runID     string
	metadata  *RunMetadata
}

// NewOutputManager creates outputDir and starts a run named by the current
// time.
func NewOutputManager(outputDir string) (*OutputManager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	now := time.Now()
	runID := now.Format("20060102-150405")
	return &OutputManager{
		outputDir: outputDir,
		runID:     runID,
		metadata: &RunMetadata{
			RunID:     runID,
			StartTime: now,
			Artifacts: ArtifactPaths{RunJSON: "run.json"},
		},
	}, nil
}

func (m *OutputManager) OutputDir() string { return m.outputDir }

func (m *OutputManager) RunID() string { return m.runID }

// SetDevice records the monitored device.
func (m *OutputManager) SetDevice(id device.Identity) {
	m.metadata.Device = DeviceInfo{
		Family:    id.Family.String(),
		Transport: id.Transport.String(),
		Serial:    id.Serial,
		LocalID:   id.LocalID,
		Address:   id.Address,
	}
}

// SetPolling records what was polled and how often.
func (m *OutputManager) SetPolling(registers []uint16, rateHz float64) {
	m.metadata.Registers = append([]uint16(nil), registers...)
	m.metadata.RateHz = rateHz
}

// UsePCAP marks the capture file as part of the run.
func (m *OutputManager) UsePCAP() {
	m.metadata.Artifacts.PCAPFile = filepath.Base(m.PCAPPath())
}

// UseMetrics marks the metrics CSV as part of the run.
func (m *OutputManager) UseMetrics() {
	m.metadata.Artifacts.MetricsCSV = filepath.Base(m.MetricsPath())
}

func (m *OutputManager) PCAPPath() string {
	return filepath.Join(m.outputDir, fmt.Sprintf("capture_%s.pcap", m.runID))
}

func (m *OutputManager) MetricsPath() string {
	return filepath.Join(m.outputDir, fmt.Sprintf("metrics_%s.csv", m.runID))
}

func (m *OutputManager) SummaryPath() string {
	return filepath.Join(m.outputDir, fmt.Sprintf("summary_%s.txt", m.runID))
}

func (m *OutputManager) RunJSONPath() string {
	return filepath.Join(m.outputDir, "run.json")
}

// Finalize writes the summary text and run.json.
func (m *OutputManager) Finalize(summary *metrics.Summary, exitCode int, runErr error) error {
	m.metadata.EndTime = time.Now()
	m.metadata.Duration = m.metadata.EndTime.Sub(m.metadata.StartTime).Round(time.Millisecond).String()
	m.metadata.ExitCode = exitCode
	if runErr != nil {
		m.metadata.Error = runErr.Error()
	}
	if summary != nil {
		m.metadata.Stats = RunStats{
			TotalOperations: summary.TotalOperations,
			SuccessfulOps:   summary.SuccessfulOps,
			FailedOps:       summary.FailedOps,
			TimeoutCount:    summary.TimeoutCount,
			AvgRTTMs:        summary.AvgRTT,
			P50RTTMs:        summary.P50RTT,
			P95RTTMs:        summary.P95RTT,
			P99RTTMs:        summary.P99RTT,
			MaxRTTMs:        summary.MaxRTT,
		}
	}

	m.metadata.Artifacts.SummaryTxt = filepath.Base(m.SummaryPath())
	if err := m.writeSummary(summary); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	if err := m.writeRunJSON(); err != nil {
		return fmt.Errorf("write run.json: %w", err)
	}
	return nil
}

func (m *OutputManager) writeSummary(summary *metrics.Summary) error {
	f, err := os.Create(m.SummaryPath())
	if err != nil {
		return err
	}
	defer f.Close()

	md := m.metadata
	fmt.Fprintf(f, "ljctl Monitor Summary\n")
	fmt.Fprintf(f, "=====================\n\n")
	fmt.Fprintf(f, "Run ID:     %s\n", md.RunID)
	fmt.Fprintf(f, "Start Time: %s\n", md.StartTime.Format(time.RFC3339))
	fmt.Fprintf(f, "End Time:   %s\n", md.EndTime.Format(time.RFC3339))
	fmt.Fprintf(f, "Duration:   %s\n\n", md.Duration)

	fmt.Fprintf(f, "Device:    %s serial %d local ID %d over %s", md.Device.Family, md.Device.Serial, md.Device.LocalID, md.Device.Transport)
	if md.Device.Address != "" {
		fmt.Fprintf(f, " (%s)", md.Device.Address)
	}
	fmt.Fprintf(f, "\nRegisters: %v at %.2f Hz\n\n", md.Registers, md.RateHz)

	if summary != nil {
		fmt.Fprint(f, metrics.FormatSummary(summary))
		fmt.Fprintln(f)
	}
	if md.Error != "" {
		fmt.Fprintf(f, "Error: %s\n\n", md.Error)
	}

	fmt.Fprintf(f, "Artifacts\n")
	fmt.Fprintf(f, "---------\n")
	if md.Artifacts.PCAPFile != "" {
		fmt.Fprintf(f, "PCAP:     %s\n", md.Artifacts.PCAPFile)
	}
	if md.Artifacts.MetricsCSV != "" {
		fmt.Fprintf(f, "Metrics:  %s\n", md.Artifacts.MetricsCSV)
	}
	fmt.Fprintf(f, "Summary:  %s\n", md.Artifacts.SummaryTxt)
	fmt.Fprintf(f, "Run JSON: %s\n", md.Artifacts.RunJSON)
	return nil
}

func (m *OutputManager) writeRunJSON() error {
	data, err := json.MarshalIndent(m.metadata, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.RunJSONPath(), data, 0644)
}
