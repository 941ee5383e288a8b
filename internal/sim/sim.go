// Package sim emulates a networked UE9 on local sockets: the command,
// stream and register TCP ports and the UDP discovery port.
package sim

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/genba/labjackgo/internal/device"
	"github.com/genba/labjackgo/internal/logging"
	"github.com/genba/labjackgo/internal/modbus"
	"github.com/genba/labjackgo/internal/transport"
)

// Config describes the emulated device.
type Config struct {
	// ListenIP is the address every socket binds to. Default 127.0.0.1.
	ListenIP string
	// Ports to listen on. Zero ports are chosen by the OS; read them back
	// with Device.Ports after Start.
	Ports transport.Ports
	// Identity reported by identify and discovery replies. Its serial must
	// start with 0x10. The address defaults to ListenIP.
	Identity device.Identity
	// Registers backs the register port. Nil gets a store seeded by
	// SeedRegisters.
	Registers *modbus.DataStore
	// StreamInterval paces stream packets. Default 10ms.
	StreamInterval time.Duration
	Faults         Faults
}

// Faults injects misbehavior into register replies.
type Faults struct {
	// BadChecksumReplies answers that many register requests with the
	// bad-checksum sentinel before behaving.
	BadChecksumReplies int32
	// DropRegisterReplies closes the register connection instead of
	// answering that many requests.
	DropRegisterReplies int32
}

// Stats counts served requests.
type Stats struct {
	Commands  int64
	Registers int64
	Resets    int64
	Probes    int64
}

// DefaultIdentity is reported when Config.Identity is empty.
var DefaultIdentity = device.Identity{Serial: 0x10053039, LocalID: 1}

// Device is a running emulator.
type Device struct {
	cfg   Config
	log   *logging.Logger
	store *modbus.DataStore
	ident []byte

	listeners [3]*net.TCPListener // indexed by transport.Channel
	udp       *net.UDPConn

	badChecksum atomic.Int32
	drop        atomic.Int32
	commands    atomic.Int64
	registers   atomic.Int64
	resets      atomic.Int64
	probes      atomic.Int64

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New prepares an emulator. Nothing listens until Start.
func New(cfg Config, log *logging.Logger) (*Device, error) {
	if cfg.ListenIP == "" {
		cfg.ListenIP = "127.0.0.1"
	}
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = 10 * time.Millisecond
	}
	if cfg.Identity.Serial == 0 {
		cfg.Identity.Serial = DefaultIdentity.Serial
		cfg.Identity.LocalID = DefaultIdentity.LocalID
	}
	if cfg.Identity.Address == "" {
		cfg.Identity.Address = cfg.ListenIP
	}
	ident, err := device.LayoutA.Encode(cfg.Identity)
	if err != nil {
		return nil, fmt.Errorf("encode identity: %w", err)
	}
	store := cfg.Registers
	if store == nil {
		store = modbus.NewDataStore()
		SeedRegisters(store)
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Device{
		cfg:    cfg,
		log:    logging.OrNop(log),
		store:  store,
		ident:  ident,
		conns:  make(map[net.Conn]struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	d.badChecksum.Store(cfg.Faults.BadChecksumReplies)
	d.drop.Store(cfg.Faults.DropRegisterReplies)
	return d, nil
}

// SeedRegisters fills a store with plausible analog readings and a serial
// number register.
func SeedRegisters(store *modbus.DataStore) {
	store.SetValue(0, 1.25)
	store.SetValue(2, 2.5)
	store.SetValue(4, -0.75)
	store.SetValue(6, 3.3)
	store.SetValue(5000, 0)
	store.SetValue(50100, float64(DefaultIdentity.Serial))
	store.MarkReadOnly(50100)
	store.MarkReadOnly(50101)
}

// Start opens every socket and begins serving.
func (d *Device) Start() error {
	ports := []struct {
		ch   transport.Channel
		port int
	}{
		{transport.ChannelCommand, d.cfg.Ports.Command},
		{transport.ChannelStream, d.cfg.Ports.Stream},
		{transport.ChannelRegister, d.cfg.Ports.Register},
	}
	for _, p := range ports {
		l, err := net.ListenTCP("tcp4", &net.TCPAddr{IP: net.ParseIP(d.cfg.ListenIP), Port: p.port})
		if err != nil {
			d.Stop()
			return fmt.Errorf("listen %s port: %w", p.ch, err)
		}
		d.listeners[p.ch] = l
		d.log.Info("emulator %s port listening on %s", p.ch, l.Addr())
	}

	udp, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP(d.cfg.ListenIP), Port: d.cfg.Ports.Discovery})
	if err != nil {
		d.Stop()
		return fmt.Errorf("listen discovery port: %w", err)
	}
	d.udp = udp
	d.log.Info("emulator discovery port listening on %s", udp.LocalAddr())

	for ch, l := range d.listeners {
		d.wg.Add(1)
		go d.acceptLoop(l, transport.Channel(ch))
	}
	d.wg.Add(1)
	go d.handleUDP()
	return nil
}

// Ports returns the bound ports. Valid after Start.
func (d *Device) Ports() transport.Ports {
	p := d.cfg.Ports
	if l := d.listeners[transport.ChannelCommand]; l != nil {
		p.Command = l.Addr().(*net.TCPAddr).Port
	}
	if l := d.listeners[transport.ChannelStream]; l != nil {
		p.Stream = l.Addr().(*net.TCPAddr).Port
	}
	if l := d.listeners[transport.ChannelRegister]; l != nil {
		p.Register = l.Addr().(*net.TCPAddr).Port
	}
	if d.udp != nil {
		p.Discovery = d.udp.LocalAddr().(*net.UDPAddr).Port
	}
	return p
}

// Identity is the identity the emulator reports.
func (d *Device) Identity() device.Identity {
	return d.cfg.Identity
}

// Store exposes the register store.
func (d *Device) Store() *modbus.DataStore {
	return d.store
}

// Stats returns request counters.
func (d *Device) Stats() Stats {
	return Stats{
		Commands:  d.commands.Load(),
		Registers: d.registers.Load(),
		Resets:    d.resets.Load(),
		Probes:    d.probes.Load(),
	}
}

// Stop closes every socket and waits for the handlers to exit.
func (d *Device) Stop() error {
	d.cancel()
	for _, l := range d.listeners {
		if l != nil {
			l.Close()
		}
	}
	if d.udp != nil {
		d.udp.Close()
	}
	d.connsMu.Lock()
	for c := range d.conns {
		c.Close()
	}
	d.connsMu.Unlock()
	d.wg.Wait()
	d.log.Info("emulator stopped")
	return nil
}

func (d *Device) track(c net.Conn) {
	d.connsMu.Lock()
	d.conns[c] = struct{}{}
	d.connsMu.Unlock()
}

func (d *Device) untrack(c net.Conn) {
	d.connsMu.Lock()
	delete(d.conns, c)
	d.connsMu.Unlock()
	c.Close()
}

func (d *Device) acceptLoop(l *net.TCPListener, ch transport.Channel) {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		default:
		}

		_ = l.SetDeadline(time.Now().Add(time.Second))
		conn, err := l.AcceptTCP()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if d.ctx.Err() != nil {
				return
			}
			d.log.Error("accept on %s port: %v", ch, err)
			continue
		}
		d.track(conn)
		if d.ctx.Err() != nil {
			// Stop may already have swept the tracked connections.
			d.untrack(conn)
			return
		}
		d.log.Verbose("%s connection from %s", ch, conn.RemoteAddr())

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			defer d.untrack(conn)
			switch ch {
			case transport.ChannelCommand:
				d.serveCommands(conn)
			case transport.ChannelStream:
				d.serveStream(conn)
			case transport.ChannelRegister:
				d.serveRegisters(conn)
			}
		}()
	}
}

func (d *Device) handleUDP() {
	defer d.wg.Done()
	buf := make([]byte, 1500)
	probe := device.UE9.DiscoveryProbe()

	for {
		select {
		case <-d.ctx.Done():
			return
		default:
		}

		_ = d.udp.SetReadDeadline(time.Now().Add(time.Second))
		n, addr, err := d.udp.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return
		}
		if string(buf[:n]) != string(probe) {
			d.log.Debug("ignore %d-byte datagram from %s", n, addr)
			continue
		}
		d.probes.Add(1)
		if _, err := d.udp.WriteToUDP(d.ident, addr); err != nil {
			d.log.Error("discovery reply to %s: %v", addr, err)
		}
	}
}
