// Package capture records device traffic as pcap files. A Tap wraps a
// transport binding and synthesizes Ethernet/IPv4/TCP packets for every
// frame it moves, so USB sessions can be inspected in Wireshark next to
// real network captures. Live captures the wire with libpcap.
package capture

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/genba/labjackgo/internal/transport"
)

const snapLen = 65535

var (
	hostMAC   = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	deviceMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}

	// HostIP and DefaultDeviceIP address synthesized packets when the
	// binding has no IP of its own.
	HostIP          = net.IPv4(10, 0, 0, 1).To4()
	DefaultDeviceIP = net.IPv4(10, 0, 0, 2).To4()
)

// hostPortBase is added to the channel number to form the host-side port.
const hostPortBase = 49152

// Writer appends synthesized packets to a pcap file. It is safe for
// concurrent use by several taps.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	pw   *pcapgo.Writer
	seq  map[flowKey]uint32
	now  func() time.Time
	n    int
}

type flowKey struct {
	src, dst string
	sport    uint16
	dport    uint16
}

// Create opens path for writing and emits the pcap file header.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create pcap file: %w", err)
	}
	pw := pcapgo.NewWriter(f)
	if err := pw.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		f.Close()
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	return &Writer{file: f, pw: pw, seq: make(map[flowKey]uint32), now: time.Now}, nil
}

// Packets returns how many packets were written.
func (w *Writer) Packets() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Close flushes and closes the file. Closing twice is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// WriteSegment writes payload as one TCP segment from src:sport to
// dst:dport. Sequence numbers advance per direction.
func (w *Writer) WriteSegment(src, dst net.IP, sport, dport uint16, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return fmt.Errorf("pcap writer closed")
	}

	key := flowKey{src: src.String(), dst: dst.String(), sport: sport, dport: dport}
	seq := w.seq[key]
	ack := w.seq[flowKey{src: key.dst, dst: key.src, sport: dport, dport: sport}]
	if seq == 0 {
		seq = 1
	}

	srcMAC, dstMAC := hostMAC, deviceMAC
	if !src.Equal(HostIP) {
		srcMAC, dstMAC = deviceMAC, hostMAC
	}
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP, SrcIP: src.To4(), DstIP: dst.To4()}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(sport),
		DstPort: layers.TCPPort(dport),
		Seq:     seq,
		Ack:     ack,
		ACK:     ack != 0,
		PSH:     true,
		Window:  65535,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		return fmt.Errorf("set checksum layer: %w", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(payload)); err != nil {
		return fmt.Errorf("serialize packet: %w", err)
	}
	data := buf.Bytes()
	ci := gopacket.CaptureInfo{Timestamp: w.now(), CaptureLength: len(data), Length: len(data)}
	if err := w.pw.WritePacket(ci, data); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	w.seq[key] = seq + uint32(len(payload))
	w.n++
	return nil
}

// Tap is a transport.Binding that records everything passing through the
// binding it wraps.
type Tap struct {
	inner    transport.Binding
	w        *Writer
	ports    transport.Ports
	deviceIP net.IP
}

// NewTap wraps b. Device-side ports come from ports; the device IP is
// resolved from b when it is a TCP binding.
func NewTap(b transport.Binding, w *Writer, ports transport.Ports) *Tap {
	ip := DefaultDeviceIP
	if h, ok := b.(interface{ Host() string }); ok {
		if parsed := net.ParseIP(h.Host()); parsed != nil && parsed.To4() != nil {
			ip = parsed.To4()
		}
	}
	return &Tap{inner: b, w: w, ports: ports, deviceIP: ip}
}

// Wrapper returns a function suitable for discovery.Config.Wrap.
func Wrapper(w *Writer, ports transport.Ports) func(transport.Binding) transport.Binding {
	return func(b transport.Binding) transport.Binding {
		return NewTap(b, w, ports)
	}
}

// Unwrap returns the wrapped binding.
func (t *Tap) Unwrap() transport.Binding { return t.inner }

func (t *Tap) Kind() transport.Kind { return t.inner.Kind() }

// Host reports the device address so nested taps resolve the same IP.
func (t *Tap) Host() string { return t.deviceIP.String() }

func (t *Tap) devicePort(ch transport.Channel) uint16 {
	switch ch {
	case transport.ChannelStream:
		return uint16(t.ports.Stream)
	case transport.ChannelRegister:
		return uint16(t.ports.Register)
	default:
		return uint16(t.ports.Command)
	}
}

func (t *Tap) Write(ch transport.Channel, p []byte) (int, error) {
	n, err := t.inner.Write(ch, p)
	if n > 0 {
		_ = t.w.WriteSegment(HostIP, t.deviceIP, hostPortBase+uint16(ch), t.devicePort(ch), p[:n])
	}
	return n, err
}

func (t *Tap) Read(ch transport.Channel, n int) ([]byte, error) {
	data, err := t.inner.Read(ch, n)
	if len(data) > 0 {
		_ = t.w.WriteSegment(t.deviceIP, HostIP, t.devicePort(ch), hostPortBase+uint16(ch), data)
	}
	return data, err
}

func (t *Tap) Close() error { return t.inner.Close() }
