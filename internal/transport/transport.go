// Package transport moves frames between the host and a device over USB bulk
// endpoints, a trio of TCP sockets, or a UDP broadcast socket.
package transport

import (
	"fmt"
	"time"
)

// Kind identifies a binding variant.
type Kind int

const (
	KindUSB Kind = iota
	KindTCP
	KindUDP
)

func (k Kind) String() string {
	switch k {
	case KindUSB:
		return "usb"
	case KindTCP:
		return "tcp"
	case KindUDP:
		return "udp"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses "usb", "tcp"/"ethernet" or "udp".
func ParseKind(s string) (Kind, error) {
	switch s {
	case "usb", "USB":
		return KindUSB, nil
	case "tcp", "ethernet", "eth", "TCP":
		return KindTCP, nil
	case "udp", "UDP":
		return KindUDP, nil
	}
	return KindUSB, fmt.Errorf("unknown transport %q", s)
}

// Channel selects one of the logical channels a binding carries.
type Channel int

const (
	// ChannelCommand carries native command/response frames.
	ChannelCommand Channel = iota
	// ChannelStream carries continuous sample data from the device.
	ChannelStream
	// ChannelRegister carries Modbus/TCP register traffic.
	ChannelRegister
)

func (c Channel) String() string {
	switch c {
	case ChannelCommand:
		return "command"
	case ChannelStream:
		return "stream"
	case ChannelRegister:
		return "register"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// Binding is the uniform byte transport a device session drives.
// Bindings are not safe for concurrent use.
type Binding interface {
	Kind() Kind
	// Write sends p on ch. A partial write fails with ShortWrite.
	Write(ch Channel, p []byte) (int, error)
	// Read blocks for up to n bytes from ch. It returns whatever arrived and
	// fails with ShortRead if nothing did, Timeout or ConnectionReset.
	Read(ch Channel, n int) ([]byte, error)
	// Close releases every OS resource. Closing twice is a no-op.
	Close() error
}

// Ports holds the network ports of a device.
type Ports struct {
	Command   int
	Stream    int
	Register  int
	Discovery int
}

// DefaultPorts returns the factory port assignment.
func DefaultPorts() Ports {
	return Ports{
		Command:   52360,
		Stream:    52361,
		Register:  502,
		Discovery: 52362,
	}
}

// Options configures transport behavior.
type Options struct {
	ConnectTimeout   time.Duration // TCP dial timeout
	ReadTimeout      time.Duration // per-read deadline on TCP sockets and USB endpoints
	DiscoveryTimeout time.Duration // UDP broadcast listen window
	BroadcastAddress string        // discovery destination, without port
	Interface        string        // optional interface to derive the broadcast address from
	Ports            Ports
}

// DefaultOptions returns sensible default options.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout:   10 * time.Second,
		ReadTimeout:      10 * time.Second,
		DiscoveryTimeout: time.Second,
		BroadcastAddress: "255.255.255.255",
		Ports:            DefaultPorts(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = d.ConnectTimeout
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = d.ReadTimeout
	}
	if o.DiscoveryTimeout <= 0 {
		o.DiscoveryTimeout = d.DiscoveryTimeout
	}
	if o.BroadcastAddress == "" {
		o.BroadcastAddress = d.BroadcastAddress
	}
	if o.Ports.Command == 0 {
		o.Ports.Command = d.Ports.Command
	}
	if o.Ports.Stream == 0 {
		o.Ports.Stream = d.Ports.Stream
	}
	if o.Ports.Register == 0 {
		o.Ports.Register = d.Ports.Register
	}
	if o.Ports.Discovery == 0 {
		o.Ports.Discovery = d.Ports.Discovery
	}
	return o
}
