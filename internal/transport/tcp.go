package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	ljerrors "github.com/genba/labjackgo/internal/errors"
	"github.com/genba/labjackgo/internal/logging"
)

// TCP is a binding over the command, stream and register sockets of one
// networked device. Each socket is connected on first use; the command
// socket is connected by DialTCP so an unreachable device fails at open.
type TCP struct {
	host   string
	opts   Options
	dialer net.Dialer
	conns  [3]net.Conn // indexed by Channel
	closed bool
	log    *logging.Logger
}

var _ Binding = (*TCP)(nil)

// DialTCP connects the command socket of the device at host.
func DialTCP(ctx context.Context, host string, opts Options, log *logging.Logger) (*TCP, error) {
	opts = opts.withDefaults()
	t := &TCP{
		host:   host,
		opts:   opts,
		dialer: net.Dialer{Timeout: opts.ConnectTimeout},
		log:    logging.OrNop(log),
	}
	if _, err := t.connect(ctx, ChannelCommand); err != nil {
		return nil, err
	}
	return t, nil
}

// Host returns the device address the binding dials.
func (t *TCP) Host() string { return t.host }

func (t *TCP) Kind() Kind { return KindTCP }

func (t *TCP) port(ch Channel) int {
	switch ch {
	case ChannelStream:
		return t.opts.Ports.Stream
	case ChannelRegister:
		return t.opts.Ports.Register
	default:
		return t.opts.Ports.Command
	}
}

func (t *TCP) connect(ctx context.Context, ch Channel) (net.Conn, error) {
	addr := net.JoinHostPort(t.host, strconv.Itoa(t.port(ch)))
	conn, err := t.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, mapNetError(fmt.Sprintf("dial %s %s", ch, addr), err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	t.conns[ch] = conn
	t.log.Debug("connected %s socket to %s", ch, addr)
	return conn, nil
}

func (t *TCP) conn(ch Channel) (net.Conn, error) {
	if t.closed {
		return nil, ljerrors.Newf(ljerrors.ConnectionReset, "tcp", "binding closed")
	}
	if ch < ChannelCommand || ch > ChannelRegister {
		return nil, ljerrors.Newf(ljerrors.UnsupportedOnTransport, "tcp", "unknown channel %s", ch)
	}
	if c := t.conns[ch]; c != nil {
		return c, nil
	}
	return t.connect(context.Background(), ch)
}

func (t *TCP) Write(ch Channel, p []byte) (int, error) {
	op := "tcp write " + ch.String()
	c, err := t.conn(ch)
	if err != nil {
		return 0, err
	}
	_ = c.SetWriteDeadline(time.Now().Add(t.opts.ReadTimeout))
	n, err := c.Write(p)
	if err != nil && n == 0 {
		return 0, mapNetError(op, err)
	}
	if n != len(p) {
		return n, ljerrors.Newf(ljerrors.ShortWrite, op, "could only write %d of %d bytes", n, len(p))
	}
	return n, nil
}

// Read receives up to n bytes. A failed register read triggers exactly one
// reconnect of the register socket: if it fails the original error is
// returned, otherwise the original error comes back wrapped in Recoverable.
func (t *TCP) Read(ch Channel, n int) ([]byte, error) {
	op := "tcp read " + ch.String()
	c, err := t.conn(ch)
	if err != nil {
		return nil, err
	}
	_ = c.SetReadDeadline(time.Now().Add(t.opts.ReadTimeout))
	buf := make([]byte, n)
	got, err := c.Read(buf)
	if err == nil {
		if got == 0 && n > 0 {
			return nil, ljerrors.Newf(ljerrors.ShortRead, op, "no data")
		}
		return buf[:got], nil
	}

	orig := mapNetError(op, err)
	if ch != ChannelRegister {
		return nil, orig
	}

	_ = c.Close()
	t.conns[ch] = nil
	if _, rerr := t.connect(context.Background(), ch); rerr != nil {
		t.log.Verbose("register reconnect to %s failed: %v", t.host, rerr)
		return nil, orig
	}
	t.log.Verbose("register socket to %s reconnected after: %v", t.host, orig)
	return nil, &Recoverable{Err: orig}
}

func (t *TCP) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	var first error
	for i, c := range t.conns {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && first == nil {
			first = fmt.Errorf("close %s socket: %w", Channel(i), err)
		}
		t.conns[i] = nil
	}
	return first
}
