package capture

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Segment is one TCP payload read back from a capture file.
type Segment struct {
	Timestamp time.Time
	Src, Dst  string
	SrcPort   uint16
	DstPort   uint16
	Payload   []byte
}

// ReadSegments decodes every TCP packet with a payload in a pcap file.
// Other packets are skipped.
func ReadSegments(path string) ([]Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pcap file: %w", err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("read pcap header: %w", err)
	}

	var out []Segment
	for {
		data, ci, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("read packet: %w", err)
		}
		pkt := gopacket.NewPacket(data, r.LinkType(), gopacket.NoCopy)
		ipLayer, _ := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
		tcpLayer, _ := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
		if ipLayer == nil || tcpLayer == nil || len(tcpLayer.Payload) == 0 {
			continue
		}
		out = append(out, Segment{
			Timestamp: ci.Timestamp,
			Src:       ipLayer.SrcIP.String(),
			Dst:       ipLayer.DstIP.String(),
			SrcPort:   uint16(tcpLayer.SrcPort),
			DstPort:   uint16(tcpLayer.DstPort),
			Payload:   append([]byte(nil), tcpLayer.Payload...),
		})
	}
	return out, nil
}
