package transport

import (
	"fmt"
	"net"
	"strconv"
	"time"

	ljerrors "github.com/genba/labjackgo/internal/errors"
)

// UDP is a connectionless broadcast binding used only for discovery. Write
// broadcasts on the command channel and every Read returns one datagram.
// Go enables SO_BROADCAST on UDP sockets by default.
type UDP struct {
	conn     *net.UDPConn
	dest     *net.UDPAddr
	deadline time.Time
	timeout  time.Duration
	closed   bool
}

var _ Binding = (*UDP)(nil)

// ListenUDP opens a broadcast socket aimed at the discovery port.
func ListenUDP(opts Options) (*UDP, error) {
	opts = opts.withDefaults()
	dest, err := BroadcastAddr(opts.Interface, opts.BroadcastAddress, opts.Ports.Discovery)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("listen UDP: %w", err)
	}
	return &UDP{conn: conn, dest: dest, timeout: opts.DiscoveryTimeout}, nil
}

// BroadcastAddr resolves the discovery destination. When iface is set the
// directed broadcast address of its first IPv4 network is used; otherwise
// address (default 255.255.255.255).
func BroadcastAddr(iface, address string, port int) (*net.UDPAddr, error) {
	if iface != "" {
		ief, err := net.InterfaceByName(iface)
		if err != nil {
			return nil, fmt.Errorf("interface %s: %w", iface, err)
		}
		addrs, err := ief.Addrs()
		if err != nil {
			return nil, fmt.Errorf("get interface addresses: %w", err)
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP.IsLoopback() {
				continue
			}
			ip := ipnet.IP.To4()
			if ip == nil {
				continue
			}
			mask := ipnet.Mask
			if len(mask) == net.IPv6len {
				mask = mask[12:]
			}
			broadcast := make(net.IP, 4)
			for i := range ip {
				broadcast[i] = ip[i] | ^mask[i]
			}
			return &net.UDPAddr{IP: broadcast, Port: port}, nil
		}
		return nil, fmt.Errorf("no IPv4 address found on interface %s", iface)
	}
	if address == "" {
		address = "255.255.255.255"
	}
	dest, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(address, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("resolve broadcast address: %w", err)
	}
	return dest, nil
}

func (u *UDP) Kind() Kind { return KindUDP }

// Destination returns the broadcast address datagrams are sent to.
func (u *UDP) Destination() *net.UDPAddr { return u.dest }

// SetDeadline bounds every following read by t instead of the per-read
// discovery timeout.
func (u *UDP) SetDeadline(t time.Time) {
	u.deadline = t
}

func (u *UDP) Write(ch Channel, p []byte) (int, error) {
	const op = "udp broadcast"
	if u.closed {
		return 0, ljerrors.Newf(ljerrors.ConnectionReset, op, "binding closed")
	}
	if ch != ChannelCommand {
		return 0, ljerrors.Newf(ljerrors.UnsupportedOnTransport, op, "%s channel", ch)
	}
	n, err := u.conn.WriteToUDP(p, u.dest)
	if err != nil {
		return n, mapNetError(op, err)
	}
	if n != len(p) {
		return n, ljerrors.Newf(ljerrors.ShortWrite, op, "could only write %d of %d bytes", n, len(p))
	}
	return n, nil
}

func (u *UDP) Read(ch Channel, n int) ([]byte, error) {
	if ch != ChannelCommand {
		return nil, ljerrors.Newf(ljerrors.UnsupportedOnTransport, "udp read", "%s channel", ch)
	}
	data, _, err := u.ReadFrom(n)
	return data, err
}

// ReadFrom receives one datagram of at most n bytes and its sender.
func (u *UDP) ReadFrom(n int) ([]byte, *net.UDPAddr, error) {
	const op = "udp read"
	if u.closed {
		return nil, nil, ljerrors.Newf(ljerrors.ConnectionReset, op, "binding closed")
	}
	deadline := u.deadline
	if deadline.IsZero() {
		deadline = time.Now().Add(u.timeout)
	}
	if err := u.conn.SetReadDeadline(deadline); err != nil {
		return nil, nil, mapNetError(op, err)
	}
	buf := make([]byte, n)
	got, from, err := u.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, nil, mapNetError(op, err)
	}
	if got == 0 {
		return nil, from, ljerrors.Newf(ljerrors.ShortRead, op, "empty datagram")
	}
	return buf[:got], from, nil
}

func (u *UDP) Close() error {
	if u.closed {
		return nil
	}
	u.closed = true
	return u.conn.Close()
}
