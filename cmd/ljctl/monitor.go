package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/genba/labjackgo/internal/artifact"
	"github.com/genba/labjackgo/internal/device"
	"github.com/genba/labjackgo/internal/metrics"
	"github.com/genba/labjackgo/internal/modbus"
	"github.com/genba/labjackgo/internal/progress"
)

type monitorFlags struct {
	addrs    []string
	hz       float64
	duration time.Duration
	samples  int
	csv       string
	outputDir string
	quiet     bool
}

func newMonitorCmd(g *globalFlags) *cobra.Command {
	flags := &monitorFlags{}

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Poll registers at a fixed rate and summarize latency",
		Long: `Monitor opens the selected device and reads the given registers at
--rate polls per second until --duration elapses, --samples polls are done
or the process is interrupted. Each read is recorded; a latency summary is
printed at the end. Use --csv to keep the raw measurements and
--metrics-listen to scrape them live.`,
		Example: `  # AIN0 and AIN1 ten times a second for a minute
  ljctl monitor --target tcp://192.168.1.209 --addr 0,2 --rate 10 --duration 1m

  # Record to CSV and expose Prometheus metrics
  ljctl monitor --addr 0 --csv run.csv --metrics-listen :9100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			return runMonitor(cmd, g, flags)
		},
	}
	cmd.Flags().StringSliceVar(&flags.addrs, "addr", []string{"0"}, "Register addresses to poll")
	cmd.Flags().Float64Var(&flags.hz, "rate", 1, "Polls per second")
	cmd.Flags().DurationVar(&flags.duration, "duration", 0, "Stop after this long (0 = until interrupted)")
	cmd.Flags().IntVar(&flags.samples, "samples", 0, "Stop after this many polls (0 = unlimited)")
	cmd.Flags().StringVar(&flags.csv, "csv", "", "Write every measurement to this CSV file")
	cmd.Flags().StringVar(&flags.outputDir, "output-dir", "", "Write metrics, capture, summary and run.json into this directory")
	cmd.Flags().BoolVar(&flags.quiet, "quiet", false, "Show a progress line instead of every reading")
	return cmd
}

func parseAddrs(raw []string) ([]uint16, error) {
	var out []uint16
	for _, r := range raw {
		for _, part := range strings.Split(r, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			a, err := parseAddr(part)
			if err != nil {
				return nil, err
			}
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no register addresses given")
	}
	return out, nil
}

func runMonitor(cmd *cobra.Command, g *globalFlags, flags *monitorFlags) (err error) {
	addrs, err := parseAddrs(flags.addrs)
	if err != nil {
		return err
	}
	if flags.hz <= 0 {
		return fmt.Errorf("--rate must be positive")
	}

	var om *artifact.OutputManager
	if flags.outputDir != "" {
		if om, err = artifact.NewOutputManager(flags.outputDir); err != nil {
			return err
		}
		if flags.csv == "" {
			flags.csv = om.MetricsPath()
			om.UseMetrics()
		}
		if g.capture == "" {
			g.capture = om.PCAPPath()
			om.UsePCAP()
		}
		om.SetPolling(addrs, flags.hz)
	}

	e, err := newEnv(cmd, g)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if flags.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flags.duration)
		defer cancel()
	}

	s, err := e.open(ctx)
	if err != nil {
		return e.wrapErr(err, "open")
	}
	defer s.Close()

	var writer *metrics.Writer
	if flags.csv != "" {
		writer, err = metrics.NewWriter(flags.csv)
		if err != nil {
			return err
		}
		defer writer.Close()
	}

	sink := metrics.NewSink()
	if om != nil {
		om.SetDevice(s.Identity())
		defer func() {
			code := 0
			if err != nil {
				code = 1
			}
			if ferr := om.Finalize(sink.GetSummary(), code, err); ferr != nil && err == nil {
				err = ferr
			}
		}()
	}
	m := &monitor{session: s, target: e.target.String(), sink: sink, writer: writer}
	limiter := rate.NewLimiter(rate.Limit(flags.hz), 1)

	var bar *progress.Poll
	if flags.quiet {
		bar = progress.NewPoll(cmd.ErrOrStderr(), "monitor", int64(flags.samples), 200*time.Millisecond)
	}

	e.log.Info("monitoring %d register(s) on %s at %.2f Hz", len(addrs), e.describe(s), flags.hz)
	for polls := 0; flags.samples == 0 || polls < flags.samples; polls++ {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		start := time.Now()
		values := m.poll(addrs)
		if bar != nil {
			bar.Observe(allRead(values), time.Since(start))
		} else {
			fmt.Fprintf(e.out, "%s %s\n", start.Format(time.RFC3339Nano), formatValues(addrs, values))
		}
		if s.Closed() {
			break
		}
	}
	if bar != nil {
		bar.Finish()
	}

	fmt.Fprint(e.out, metrics.FormatSummary(sink.GetSummary()))
	return nil
}

type monitor struct {
	session *device.Session
	target  string
	sink    *metrics.Sink
	writer  *metrics.Writer
	lastRTT map[uint16]float64
}

// poll reads every address once. A failed read leaves a nil entry.
func (m *monitor) poll(addrs []uint16) []*float64 {
	if m.lastRTT == nil {
		m.lastRTT = make(map[uint16]float64)
	}
	out := make([]*float64, len(addrs))
	for i, addr := range addrs {
		start := time.Now()
		v, err := m.session.ReadRegister(addr, 0, modbus.FormatDefault)
		rtt := float64(time.Since(start).Microseconds()) / 1000

		rec := metrics.Metric{
			Timestamp: start,
			Operation: metrics.OperationReadRegister,
			Target:    fmt.Sprintf("%s/%d", m.target, addr),
			Success:   err == nil,
			RTTMs:     rtt,
		}
		if prev, ok := m.lastRTT[addr]; ok {
			rec.JitterMs = abs(rtt - prev)
		}
		m.lastRTT[addr] = rtt
		if err != nil {
			rec.Error = err.Error()
		} else {
			rec.Value = v
			val := v
			out[i] = &val
		}
		m.sink.Record(rec)
		if m.writer != nil {
			_ = m.writer.WriteMetric(rec)
		}
	}
	return out
}

func allRead(values []*float64) bool {
	for _, v := range values {
		if v == nil {
			return false
		}
	}
	return true
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func formatValues(addrs []uint16, values []*float64) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		if values[i] == nil {
			parts[i] = fmt.Sprintf("%d=err", a)
			continue
		}
		parts[i] = fmt.Sprintf("%d=%s", a, strconv.FormatFloat(*values[i], 'g', 6, 64))
	}
	return strings.Join(parts, " ")
}
