package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/genba/labjackgo/internal/capture"
	"github.com/genba/labjackgo/internal/config"
	"github.com/genba/labjackgo/internal/device"
	"github.com/genba/labjackgo/internal/discovery"
	"github.com/genba/labjackgo/internal/driver"
	"github.com/genba/labjackgo/internal/driver/usbdriver"
	ljerrors "github.com/genba/labjackgo/internal/errors"
	"github.com/genba/labjackgo/internal/logging"
	"github.com/genba/labjackgo/internal/metrics"
	"github.com/genba/labjackgo/internal/transport"
	"github.com/genba/labjackgo/internal/ui"
)

// usbLoader loads the native USB driver. Tests replace it.
var usbLoader driver.Loader = usbdriver.Load

type globalFlags struct {
	configPath    string
	family        string
	target        string
	match         string
	logLevel      string
	capture       string
	metricsListen string
	pick          bool
	noColor       bool
}

// env is everything a device command needs, built from flags and config.
type env struct {
	cfg      *config.Config
	log      *logging.Logger
	family   device.Family
	target   transport.Target
	match    discovery.Match
	pick     bool
	drivers  *driver.Context
	registry *prometheus.Registry
	metrics  *metrics.Driver
	capture  *capture.Writer
	engine   *discovery.Engine
	server   *http.Server
	out      io.Writer
}

func newEnv(cmd *cobra.Command, g *globalFlags) (*env, error) {
	allowMissing := !cmd.Flags().Changed("config")
	cfg, err := config.Load(g.configPath, allowMissing)
	if err != nil {
		return nil, err
	}
	if g.family != "" {
		cfg.Device.Family = g.family
	}
	if g.target != "" {
		cfg.Device.Target = g.target
	}
	if g.match != "" {
		cfg.Device.Match = g.match
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	if g.capture != "" {
		cfg.Capture.File = g.capture
	}
	if g.metricsListen != "" {
		cfg.Metrics.Listen = g.metricsListen
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	family, err := device.FamilyByName(cfg.Device.Family)
	if err != nil {
		return nil, err
	}
	target, err := transport.ParseTarget(cfg.Device.Target)
	if err != nil {
		return nil, err
	}
	match, err := discovery.ParseMatch(cfg.Device.Match)
	if err != nil {
		return nil, err
	}

	log, err := logging.NewLoggerWithOptions(cfg.LoggerOptions())
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	e := &env{
		cfg:      cfg,
		log:      log,
		family:   family,
		target:   target,
		match:    match,
		pick:     g.pick,
		drivers:  driver.NewContext(usbLoader, log),
		registry: metrics.NewRegistry(),
		out:      cmd.OutOrStdout(),
	}
	e.metrics = metrics.NewDriver(e.registry)

	opts := cfg.TransportOptions()
	var wrap discovery.Wrapper
	if cfg.Capture.File != "" {
		w, err := capture.Create(cfg.Capture.File)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.capture = w
		wrap = capture.Wrapper(w, opts.Ports)
		log.Info("recording device traffic to %s", cfg.Capture.File)
	}

	if cfg.Metrics.Listen != "" {
		if err := e.serveMetrics(cfg.Metrics.Listen); err != nil {
			e.Close()
			return nil, err
		}
	}

	e.engine = discovery.NewEngine(discovery.Config{
		Drivers:        e.drivers,
		Transport:      opts,
		USBReadTimeout: cfg.USB.ReadTimeout,
		Log:            log,
		Metrics:        e.metrics,
		Wrap:           wrap,
	})
	return e, nil
}

func (e *env) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(e.registry))
	e.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.Error("metrics server: %v", err)
		}
	}()
	e.log.Info("serving metrics on http://%s/metrics", ln.Addr())
	return nil
}

// Close releases the driver, capture file, metrics server and logger.
func (e *env) Close() {
	if e.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = e.server.Shutdown(ctx)
		cancel()
	}
	if e.drivers != nil {
		_ = e.drivers.Shutdown()
	}
	if e.capture != nil {
		if err := e.capture.Close(); err != nil {
			e.log.Error("close capture: %v", err)
		}
	}
	_ = e.log.Close()
}

// wrapErr turns device and network failures into the friendly form.
func (e *env) wrapErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if e.target.Kind == transport.KindTCP && isNetworkKind(err) {
		return ljerrors.WrapNetworkError(err, e.target.Host)
	}
	return ljerrors.WrapDeviceError(err, op)
}

func isNetworkKind(err error) bool {
	switch ljerrors.KindOf(err) {
	case ljerrors.Timeout, ljerrors.ConnectionReset:
		return true
	}
	return false
}

// list returns the identities reachable over the configured target.
func (e *env) list(ctx context.Context) ([]device.Identity, error) {
	if e.target.Kind == transport.KindTCP {
		s, err := e.engine.OpenTCP(ctx, e.family, e.target.Host)
		if err != nil {
			return nil, err
		}
		defer s.Close()
		return []device.Identity{s.Identity()}, nil
	}
	ids, err := e.engine.List(ctx, e.family, e.target.Kind)
	if err != nil {
		return nil, err
	}
	filtered := ids[:0]
	for _, id := range ids {
		if e.match.Matches(id) {
			filtered = append(filtered, id)
		}
	}
	return filtered, nil
}

// open returns a session on the selected device. With --pick and several
// candidates the user chooses one by serial.
func (e *env) open(ctx context.Context) (*device.Session, error) {
	if e.pick && e.target.Kind != transport.KindTCP {
		ids, err := e.list(ctx)
		if err != nil {
			return nil, err
		}
		i, err := ui.PickDevice(ids)
		if err != nil {
			if errors.Is(err, ui.ErrNoDevices) {
				return nil, ljerrors.Newf(ljerrors.DeviceNotFound, "open", "no %s over %s", e.family, e.target.Kind)
			}
			return nil, err
		}
		m := discovery.Match{By: discovery.MatchSerial, Number: ids[i].Serial}
		return e.engine.OpenTarget(ctx, e.family, e.target, m)
	}
	return e.engine.OpenTarget(ctx, e.family, e.target, e.match)
}

func (e *env) describe(s *device.Session) string {
	id := s.Identity()
	return fmt.Sprintf("%s serial %d (%s)", id.Family, id.Serial, e.target)
}
