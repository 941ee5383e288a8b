package capture

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	"github.com/google/gopacket/pcapgo"

	"github.com/genba/labjackgo/internal/logging"
	"github.com/genba/labjackgo/internal/transport"
)

// Live captures device traffic from a network interface with libpcap.
type Live struct {
	handle   *pcap.Handle
	writer   *pcapgo.Writer
	file     *os.File
	log      *logging.Logger
	packets  atomic.Int64
	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Filter returns the BPF expression matching the device ports.
func Filter(p transport.Ports) string {
	return fmt.Sprintf("tcp port %d or tcp port %d or tcp port %d or udp port %d",
		p.Command, p.Stream, p.Register, p.Discovery)
}

// StartLive opens iface and writes matching packets to outputFile until Stop.
func StartLive(iface, outputFile string, ports transport.Ports, log *logging.Logger) (*Live, error) {
	handle, err := pcap.OpenLive(iface, snapLen, true, pcap.BlockForever)
	if err != nil {
		return nil, fmt.Errorf("open live capture: %w", err)
	}
	if err := handle.SetBPFFilter(Filter(ports)); err != nil {
		handle.Close()
		return nil, fmt.Errorf("set BPF filter: %w", err)
	}

	file, err := os.Create(outputFile)
	if err != nil {
		handle.Close()
		return nil, fmt.Errorf("create pcap file: %w", err)
	}
	writer := pcapgo.NewWriter(file)
	if err := writer.WriteFileHeader(snapLen, handle.LinkType()); err != nil {
		file.Close()
		handle.Close()
		return nil, fmt.Errorf("write pcap header: %w", err)
	}

	l := &Live{
		handle:   handle,
		writer:   writer,
		file:     file,
		log:      logging.OrNop(log),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go l.loop()
	return l, nil
}

// LoopbackInterface finds the loopback device name.
func LoopbackInterface() (string, error) {
	devices, err := pcap.FindAllDevs()
	if err != nil {
		return "", fmt.Errorf("find network devices: %w", err)
	}
	for _, d := range devices {
		for _, addr := range d.Addresses {
			if addr.IP.IsLoopback() {
				return d.Name, nil
			}
		}
		switch d.Name {
		case "lo", "lo0", "Loopback", "Loopback Pseudo-Interface 1":
			return d.Name, nil
		}
	}
	return "", fmt.Errorf("could not find loopback interface")
}

func (l *Live) loop() {
	defer close(l.done)
	source := gopacket.NewPacketSource(l.handle, l.handle.LinkType())
	packets := source.Packets()
	for {
		select {
		case <-l.stopChan:
			return
		case pkt, ok := <-packets:
			if !ok {
				return
			}
			ci := pkt.Metadata().CaptureInfo
			if err := l.writer.WritePacket(ci, pkt.Data()); err != nil {
				l.log.Error("write captured packet: %v", err)
				continue
			}
			l.packets.Add(1)
		}
	}
}

// Packets returns how many packets were written so far.
func (l *Live) Packets() int64 {
	return l.packets.Load()
}

// Stop ends the capture and closes the file. Stopping twice is a no-op.
func (l *Live) Stop() error {
	var err error
	l.stopOnce.Do(func() {
		close(l.stopChan)
		l.handle.Close()
		<-l.done
		err = l.file.Close()
	})
	return err
}
