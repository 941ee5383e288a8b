// Package discovery finds attached and networked devices and opens sessions
// on them.
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/genba/labjackgo/internal/device"
	"github.com/genba/labjackgo/internal/driver"
	ljerrors "github.com/genba/labjackgo/internal/errors"
	"github.com/genba/labjackgo/internal/frame"
	"github.com/genba/labjackgo/internal/logging"
	"github.com/genba/labjackgo/internal/metrics"
	"github.com/genba/labjackgo/internal/transport"
)

// maxDatagram bounds one discovery reply.
const maxDatagram = 1500

// Wrapper decorates every binding the engine opens, e.g. to record frames.
type Wrapper func(transport.Binding) transport.Binding

// Config wires an Engine to its collaborators. Drivers may be nil when only
// network transports are used.
type Config struct {
	Drivers        *driver.Context
	Transport      transport.Options
	USBReadTimeout time.Duration
	Log            *logging.Logger
	Metrics        *metrics.Driver
	Wrap           Wrapper
}

// Options narrows an enumeration.
type Options struct {
	// FirstOnly stops at the first matching device.
	FirstOnly bool
	Match     Match
	// Index restricts USB enumeration to one zero-based position. Nil
	// means every position.
	Index *int
}

// AtIndex returns a pointer to i for Options.Index.
func AtIndex(i int) *int {
	return &i
}

// Engine enumerates devices of one family over one transport kind.
type Engine struct {
	drivers    *driver.Context
	opts       transport.Options
	usbTimeout time.Duration
	log        *logging.Logger
	metrics    *metrics.Driver
	wrap       Wrapper
}

// NewEngine creates an engine from cfg.
func NewEngine(cfg Config) *Engine {
	wrap := cfg.Wrap
	if wrap == nil {
		wrap = func(b transport.Binding) transport.Binding { return b }
	}
	usbTimeout := cfg.USBReadTimeout
	if usbTimeout <= 0 {
		usbTimeout = cfg.Transport.ReadTimeout
	}
	return &Engine{
		drivers:    cfg.Drivers,
		opts:       cfg.Transport,
		usbTimeout: usbTimeout,
		log:        logging.OrNop(cfg.Log),
		metrics:    cfg.Metrics,
		wrap:       wrap,
	}
}

func (e *Engine) sessionOptions() device.Options {
	return device.Options{Log: e.log, Metrics: e.metrics}
}

// Enumerate opens every device of family reachable over kind that satisfies
// opts. A candidate that cannot be opened or identified is skipped; it never
// aborts the others. The returned sessions belong to the caller. The result
// may be empty.
func (e *Engine) Enumerate(ctx context.Context, family device.Family, kind transport.Kind, opts Options) ([]*device.Session, error) {
	if !family.SupportsTransport(kind) {
		return nil, ljerrors.Newf(ljerrors.UnsupportedOnTransport, "enumerate", "%s is not reachable over %s", family, kind)
	}
	var (
		sessions []*device.Session
		err      error
	)
	switch kind {
	case transport.KindUSB:
		sessions, err = e.enumerateUSB(ctx, family, opts)
	case transport.KindTCP, transport.KindUDP:
		sessions, err = e.enumerateNetwork(ctx, family, opts)
	default:
		return nil, fmt.Errorf("unknown transport %s", kind)
	}
	if err != nil {
		return nil, err
	}
	e.metrics.ObserveDiscovered(family.Name(), kind.String(), len(sessions))
	return sessions, nil
}

func (e *Engine) enumerateUSB(ctx context.Context, family device.Family, opts Options) ([]*device.Session, error) {
	if e.drivers == nil {
		return nil, ljerrors.Newf(ljerrors.DriverUnavailable, "enumerate usb", "no driver context")
	}
	// Hold the driver for the whole pass so it is not unloaded between
	// candidates.
	if _, err := e.drivers.Acquire(); err != nil {
		return nil, err
	}
	defer e.drivers.Release()

	count, err := e.drivers.DeviceCount(family.ProductID())
	if err != nil {
		return nil, fmt.Errorf("count %s devices: %w", family, err)
	}
	e.log.Verbose("found %d %s device(s) on USB", count, family)

	var sessions []*device.Session
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			closeAll(sessions)
			return nil, err
		}
		if opts.Index != nil && i != *opts.Index {
			continue
		}
		s, err := e.openUSB(family, i)
		if err != nil {
			e.log.Verbose("skip %s USB device %d: %v", family, i, err)
			continue
		}
		if !opts.Match.Matches(s.Identity()) {
			e.log.Debug("%s USB device %d does not match %s", family, i, opts.Match)
			_ = s.Close()
			continue
		}
		sessions = append(sessions, s)
		if opts.FirstOnly {
			break
		}
	}
	return sessions, nil
}

func (e *Engine) openUSB(family device.Family, index int) (*device.Session, error) {
	h, err := e.drivers.Open(family.ProductID(), index)
	if err != nil {
		return nil, err
	}
	b := e.wrap(transport.NewUSB(h, transport.USBOptions{
		ReadTimeout:    e.usbTimeout,
		RegisterAccess: family.USBRegisterAccess(),
	}))
	s := device.NewSession(b, family, device.Identity{}, e.sessionOptions())
	if _, err := s.Identify(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("identify: %w", err)
	}
	return s, nil
}

func (e *Engine) enumerateNetwork(ctx context.Context, family device.Family, opts Options) ([]*device.Session, error) {
	ids, err := e.broadcast(ctx, family, opts)
	if err != nil {
		return nil, err
	}
	var sessions []*device.Session
	for _, id := range ids {
		tcp, err := transport.DialTCP(ctx, id.Address, e.opts, e.log)
		if err != nil {
			e.log.Verbose("skip %s at %s: %v", family, id.Address, err)
			continue
		}
		sessions = append(sessions, device.NewSession(e.wrap(tcp), family, id, e.sessionOptions()))
	}
	return sessions, nil
}

// broadcast sends the discovery datagram and collects distinct replies until
// the listen window closes.
func (e *Engine) broadcast(ctx context.Context, family device.Family, opts Options) ([]device.Identity, error) {
	if !family.SupportsNetwork() {
		return nil, ljerrors.Newf(ljerrors.UnsupportedOnTransport, "discover", "%s has no network interface", family)
	}
	udp, err := transport.ListenUDP(e.opts)
	if err != nil {
		return nil, err
	}
	defer udp.Close()

	window := e.opts.DiscoveryTimeout
	if window <= 0 {
		window = transport.DefaultOptions().DiscoveryTimeout
	}
	deadline := time.Now().Add(window)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	udp.SetDeadline(deadline)

	probe := family.DiscoveryProbe()
	e.log.LogHex(fmt.Sprintf("discovery probe to %s", udp.Destination()), probe)
	if _, err := udp.Write(transport.ChannelCommand, probe); err != nil {
		return nil, fmt.Errorf("send discovery probe: %w", err)
	}
	e.metrics.ObserveFrame("discovery", "tx", len(probe))

	layout := family.Layout()
	seen := make(map[uint32]bool)
	var ids []device.Identity
	for ctx.Err() == nil {
		data, from, err := udp.ReadFrom(maxDatagram)
		if err != nil {
			if ljerrors.Is(err, ljerrors.ShortRead) {
				continue
			}
			if !ljerrors.Is(err, ljerrors.Timeout) {
				e.log.Verbose("discovery receive: %v", err)
			}
			break
		}
		e.metrics.ObserveFrame("discovery", "rx", len(data))
		if len(data) < layout.MinLen() || !frame.VerifyChecksum(data) {
			e.log.Debug("drop malformed discovery reply from %s (%d bytes)", from, len(data))
			continue
		}
		id, err := layout.Decode(data)
		if err != nil {
			continue
		}
		if seen[id.Serial] {
			continue
		}
		seen[id.Serial] = true
		if id.Address == "" || id.Address == "0.0.0.0" {
			id.Address = from.IP.String()
		}
		id.Family = family
		id.Transport = transport.KindTCP
		if !opts.Match.Matches(id) {
			continue
		}
		e.log.Verbose("discovered %s", id)
		ids = append(ids, id)
		if opts.FirstOnly {
			break
		}
	}
	return ids, nil
}

// List enumerates every device and closes the sessions, returning only the
// identities.
func (e *Engine) List(ctx context.Context, family device.Family, kind transport.Kind) ([]device.Identity, error) {
	sessions, err := e.Enumerate(ctx, family, kind, Options{})
	if err != nil {
		return nil, err
	}
	ids := make([]device.Identity, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.Identity())
	}
	closeAll(sessions)
	return ids, nil
}

// Open returns the first device satisfying opts, or DeviceNotFound.
func (e *Engine) Open(ctx context.Context, family device.Family, kind transport.Kind, opts Options) (*device.Session, error) {
	opts.FirstOnly = true
	sessions, err := e.Enumerate(ctx, family, kind, opts)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, ljerrors.Newf(ljerrors.DeviceNotFound, "open", "no %s over %s matching %s", family, kind, opts.Match)
	}
	closeAll(sessions[1:])
	return sessions[0], nil
}

// OpenTCP connects to a device at a known address and identifies it over the
// command socket.
func (e *Engine) OpenTCP(ctx context.Context, family device.Family, address string) (*device.Session, error) {
	if !family.SupportsNetwork() {
		return nil, ljerrors.Newf(ljerrors.UnsupportedOnTransport, "open tcp", "%s has no network interface", family)
	}
	tcp, err := transport.DialTCP(ctx, address, e.opts, e.log)
	if err != nil {
		return nil, err
	}
	s := device.NewSession(e.wrap(tcp), family, device.Identity{Address: address}, e.sessionOptions())
	if _, err := s.Identify(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("identify %s: %w", address, err)
	}
	return s, nil
}

// OpenTarget opens the device named by a parsed target string.
func (e *Engine) OpenTarget(ctx context.Context, family device.Family, target transport.Target, match Match) (*device.Session, error) {
	switch target.Kind {
	case transport.KindTCP:
		s, err := e.OpenTCP(ctx, family, target.Host)
		if err != nil {
			return nil, err
		}
		if !match.Matches(s.Identity()) {
			_ = s.Close()
			return nil, ljerrors.Newf(ljerrors.DeviceNotFound, "open", "%s does not match %s", target, match)
		}
		return s, nil
	default:
		opts := Options{Match: match}
		if target.Index >= 0 {
			opts.Index = AtIndex(target.Index)
		}
		return e.Open(ctx, family, target.Kind, opts)
	}
}

func closeAll(sessions []*device.Session) {
	for _, s := range sessions {
		_ = s.Close()
	}
}
