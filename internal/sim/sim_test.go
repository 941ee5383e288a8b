package sim

import (
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genba/labjackgo/internal/device"
	"github.com/genba/labjackgo/internal/frame"
	"github.com/genba/labjackgo/internal/modbus"
)

func TestCommandLen(t *testing.T) {
	assert.Equal(t, 2, commandLen([]byte{0x70, 0x70}))
	assert.Equal(t, 4, commandLen([]byte{0x9B, 0x99}))
	assert.Equal(t, 38, commandLen([]byte{0x00, 0x78, 0x10}))
	assert.Equal(t, 26, commandLen([]byte{0x00, 0xF8, 0x0A}))
}

func TestValidChecksum(t *testing.T) {
	assert.True(t, validChecksum([]byte{0x70, 0x70}))
	assert.True(t, validChecksum(device.UE9.ResetFrame()))
	assert.False(t, validChecksum([]byte{0x00, 0x99, 0x02, 0x00}))
}

func TestNewRejectsUnencodableIdentity(t *testing.T) {
	_, err := New(Config{Identity: device.Identity{Serial: 42}}, nil)
	assert.Error(t, err)
}

func startDevice(t *testing.T, cfg Config) *Device {
	t.Helper()
	d, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, d.Start())
	t.Cleanup(func() { d.Stop() })
	return d
}

func dial(t *testing.T, port int) net.Conn {
	t.Helper()
	c, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.SetDeadline(time.Now().Add(2*time.Second)))
	return c
}

func TestCommandPortIdentify(t *testing.T) {
	d := startDevice(t, Config{})
	c := dial(t, d.Ports().Command)

	req, err := frame.BuildRequest(device.UE9.IdentifyFrame(), true)
	require.NoError(t, err)
	_, err = c.Write(req)
	require.NoError(t, err)

	resp := make([]byte, 38)
	_, err = io.ReadFull(c, resp)
	require.NoError(t, err)
	require.NoError(t, frame.ValidateResponse(resp, device.UE9.IdentifyEcho()))
	id, err := device.LayoutA.Decode(resp)
	require.NoError(t, err)
	assert.Equal(t, DefaultIdentity.Serial, id.Serial)
	assert.Equal(t, "127.0.0.1", id.Address)
}

func TestCommandPortBadChecksum(t *testing.T) {
	d := startDevice(t, Config{})
	c := dial(t, d.Ports().Command)

	req := device.UE9.IdentifyFrame() // checksum never applied
	req[10] = 1
	_, err := c.Write(req)
	require.NoError(t, err)

	resp := make([]byte, 2)
	_, err = io.ReadFull(c, resp)
	require.NoError(t, err)
	assert.True(t, frame.HasBadChecksumSentinel(resp))
}

func TestRegisterPort(t *testing.T) {
	store := modbus.NewDataStore()
	store.SetValue(0, 9.5)
	d := startDevice(t, Config{Registers: store})
	c := dial(t, d.Ports().Register)

	_, err := c.Write(modbus.EncodeReadRequest(0, 2))
	require.NoError(t, err)
	resp := make([]byte, modbus.ReadResponseLen(2))
	_, err = io.ReadFull(c, resp)
	require.NoError(t, err)
	v, err := modbus.DecodeReadResponse(resp, 0, modbus.FormatDefault)
	require.NoError(t, err)
	assert.Equal(t, 9.5, v)
	assert.Equal(t, int64(1), d.Stats().Registers)
}

func TestDiscoveryReply(t *testing.T) {
	d := startDevice(t, Config{Identity: device.Identity{Serial: 0x10000009, LocalID: 4}})

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()
	dest := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: d.Ports().Discovery}

	_, err = conn.WriteToUDP([]byte{1, 2, 3}, dest)
	require.NoError(t, err)
	_, err = conn.WriteToUDP(device.UE9.DiscoveryProbe(), dest)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1500)
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.True(t, frame.VerifyChecksum(buf[:n]))
	id, err := device.LayoutA.Decode(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, uint32(0x10000009), id.Serial)
	assert.Equal(t, uint8(4), id.LocalID)
	assert.Equal(t, int64(1), d.Stats().Probes)
}

func TestStopWhileClientsConnect(t *testing.T) {
	for i := 0; i < 20; i++ {
		d, err := New(Config{}, nil)
		require.NoError(t, err)
		require.NoError(t, d.Start())
		addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(d.Ports().Command))

		quit := make(chan struct{})
		dialed := make(chan struct{})
		go func() {
			defer close(dialed)
			for {
				select {
				case <-quit:
					return
				default:
				}
				c, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
				if err != nil {
					continue
				}
				defer c.Close()
			}
		}()

		stopped := make(chan struct{})
		go func() {
			d.Stop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(5 * time.Second):
			t.Fatal("Stop blocked on a connection accepted during shutdown")
		}
		close(quit)
		<-dialed
	}
}
