package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ljerrors "github.com/genba/labjackgo/internal/errors"
)

// NewRegistry creates a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Driver holds the driver's Prometheus collectors. A nil *Driver is valid
// and records nothing.
type Driver struct {
	Frames     *prometheus.CounterVec   // labels: channel, direction
	FrameBytes *prometheus.CounterVec   // labels: channel, direction
	Retries    *prometheus.CounterVec   // labels: op
	Errors     *prometheus.CounterVec   // labels: op, kind
	Operations *prometheus.HistogramVec // labels: op
	Discovered *prometheus.CounterVec   // labels: family, transport
}

// NewDriver registers the driver collectors on reg.
func NewDriver(reg prometheus.Registerer) *Driver {
	d := &Driver{
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ljctl_frames_total",
			Help: "Frames exchanged with devices",
		}, []string{"channel", "direction"}),
		FrameBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ljctl_frame_bytes_total",
			Help: "Bytes exchanged with devices",
		}, []string{"channel", "direction"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ljctl_retries_total",
			Help: "Write/read cycles redone after a recoverable failure",
		}, []string{"op"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ljctl_errors_total",
			Help: "Failed operations by error kind",
		}, []string{"op", "kind"}),
		Operations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ljctl_operation_seconds",
			Help:    "Device operation latency",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 10},
		}, []string{"op"}),
		Discovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ljctl_devices_discovered_total",
			Help: "Devices identified during enumeration",
		}, []string{"family", "transport"}),
	}
	reg.MustRegister(d.Frames, d.FrameBytes, d.Retries, d.Errors, d.Operations, d.Discovered)
	return d
}

// ObserveFrame counts one frame on channel in direction ("tx" or "rx").
func (d *Driver) ObserveFrame(channel, direction string, n int) {
	if d == nil {
		return
	}
	d.Frames.WithLabelValues(channel, direction).Inc()
	d.FrameBytes.WithLabelValues(channel, direction).Add(float64(n))
}

// ObserveRetry counts one retried cycle of op.
func (d *Driver) ObserveRetry(op string) {
	if d == nil {
		return
	}
	d.Retries.WithLabelValues(op).Inc()
}

// ObserveOperation records the latency of op and, on failure, its error kind.
func (d *Driver) ObserveOperation(op string, dur time.Duration, err error) {
	if d == nil {
		return
	}
	d.Operations.WithLabelValues(op).Observe(dur.Seconds())
	if err != nil {
		d.Errors.WithLabelValues(op, ljerrors.KindOf(err).String()).Inc()
	}
}

// ObserveDiscovered counts identified devices.
func (d *Driver) ObserveDiscovered(family, transport string, n int) {
	if d == nil || n == 0 {
		return
	}
	d.Discovered.WithLabelValues(family, transport).Add(float64(n))
}
