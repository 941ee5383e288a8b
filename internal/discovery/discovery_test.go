package discovery_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genba/labjackgo/internal/device"
	"github.com/genba/labjackgo/internal/discovery"
	"github.com/genba/labjackgo/internal/driver"
	"github.com/genba/labjackgo/internal/driver/drivertest"
	ljerrors "github.com/genba/labjackgo/internal/errors"
	"github.com/genba/labjackgo/internal/modbus"
	"github.com/genba/labjackgo/internal/sim"
	"github.com/genba/labjackgo/internal/transport"
)

// u3Responder answers the configuration read with a layout-B identity.
func u3Responder(t *testing.T, serial uint32, localID uint8) drivertest.Responder {
	t.Helper()
	resp, err := device.LayoutB.Encode(device.Identity{Serial: serial, LocalID: localID})
	require.NoError(t, err)
	return func(frame []byte) []byte {
		if len(frame) > 3 && frame[1] == 0xF8 && frame[3] == 0x08 {
			return resp
		}
		return nil
	}
}

func newUSBEngine(t *testing.T, fake *drivertest.Driver) (*discovery.Engine, *driver.Context) {
	t.Helper()
	ctx := driver.NewContext(fake.Loader(), nil)
	e := discovery.NewEngine(discovery.Config{
		Drivers:   ctx,
		Transport: transport.DefaultOptions(),
	})
	return e, ctx
}

func TestEnumerateUSBSkipsFailedCandidates(t *testing.T) {
	fake := &drivertest.Driver{Devices: []*drivertest.Device{
		{Product: 3, Respond: u3Responder(t, 320000001, 1)},
		{Product: 3, Respond: u3Responder(t, 320000002, 2)},
		{Product: 3}, // never answers
		{Product: 6, Respond: u3Responder(t, 360000001, 1)},
	}}
	e, drivers := newUSBEngine(t, fake)

	sessions, err := e.Enumerate(context.Background(), device.U3, transport.KindUSB, discovery.Options{})
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, uint32(320000001), sessions[0].Identity().Serial)
	assert.Equal(t, uint32(320000002), sessions[1].Identity().Serial)
	assert.Equal(t, transport.KindUSB, sessions[0].Identity().Transport)

	// The silent device was opened, failed to identify and was closed.
	require.Len(t, fake.Handles, 3)
	assert.True(t, fake.Handles[2].IsClosed())
	assert.Len(t, fake.OpenHandles(), 2)
	assert.Equal(t, 2, drivers.Refs())

	for _, s := range sessions {
		require.NoError(t, s.Close())
	}
	assert.Empty(t, fake.OpenHandles())
	assert.Equal(t, 0, drivers.Refs())
	assert.True(t, fake.Closed, "driver unloads with the last session")
}

func TestEnumerateUSBOpenFailureIsSkipped(t *testing.T) {
	fake := &drivertest.Driver{Devices: []*drivertest.Device{
		{Product: 3, OpenErr: errors.New("busy")},
		{Product: 3, Respond: u3Responder(t, 320000002, 2)},
	}}
	e, _ := newUSBEngine(t, fake)

	sessions, err := e.Enumerate(context.Background(), device.U3, transport.KindUSB, discovery.Options{})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, uint32(320000002), sessions[0].Identity().Serial)
	require.NoError(t, sessions[0].Close())
}

func TestEnumerateUSBMatchAndFirstOnly(t *testing.T) {
	fake := &drivertest.Driver{Devices: []*drivertest.Device{
		{Product: 3, Respond: u3Responder(t, 320000001, 1)},
		{Product: 3, Respond: u3Responder(t, 320000002, 2)},
		{Product: 3, Respond: u3Responder(t, 320000003, 2)},
	}}
	e, _ := newUSBEngine(t, fake)

	sessions, err := e.Enumerate(context.Background(), device.U3, transport.KindUSB, discovery.Options{
		Match:     discovery.Match{By: discovery.MatchLocalID, Number: 2},
		FirstOnly: true,
	})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, uint32(320000002), sessions[0].Identity().Serial)
	assert.True(t, fake.Handles[0].IsClosed(), "non-matching session is closed")
	assert.Len(t, fake.Handles, 2, "enumeration stops after the first match")
	require.NoError(t, sessions[0].Close())
}

func TestEnumerateUSBIndex(t *testing.T) {
	fake := &drivertest.Driver{Devices: []*drivertest.Device{
		{Product: 3, Respond: u3Responder(t, 320000001, 1)},
		{Product: 3, Respond: u3Responder(t, 320000002, 2)},
	}}
	e, _ := newUSBEngine(t, fake)

	s, err := e.Open(context.Background(), device.U3, transport.KindUSB, discovery.Options{Index: discovery.AtIndex(1)})
	require.NoError(t, err)
	assert.Equal(t, uint32(320000002), s.Identity().Serial)
	assert.Len(t, fake.Handles, 1)
	require.NoError(t, s.Close())
}

func TestOpenMatchSearchesEveryPosition(t *testing.T) {
	fake := &drivertest.Driver{Devices: []*drivertest.Device{
		{Product: 3, Respond: u3Responder(t, 320000001, 1)},
		{Product: 3, Respond: u3Responder(t, 320000002, 2)},
	}}
	e, _ := newUSBEngine(t, fake)

	s, err := e.Open(context.Background(), device.U3, transport.KindUSB, discovery.Options{
		Match: discovery.Match{By: discovery.MatchSerial, Number: 320000002},
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(320000002), s.Identity().Serial)
	assert.Len(t, fake.Handles, 2)
	assert.True(t, fake.Handles[0].IsClosed())
	require.NoError(t, s.Close())
}

func TestOpenNotFound(t *testing.T) {
	fake := &drivertest.Driver{Devices: []*drivertest.Device{
		{Product: 3, Respond: u3Responder(t, 320000001, 1)},
	}}
	e, _ := newUSBEngine(t, fake)

	_, err := e.Open(context.Background(), device.U3, transport.KindUSB, discovery.Options{
		Match: discovery.Match{By: discovery.MatchSerial, Number: 42},
	})
	assert.True(t, ljerrors.Is(err, ljerrors.DeviceNotFound))
	assert.Empty(t, fake.OpenHandles())
}

func TestListClosesSessions(t *testing.T) {
	fake := &drivertest.Driver{Devices: []*drivertest.Device{
		{Product: 6, Respond: u3Responder(t, 360000001, 7)},
	}}
	e, drivers := newUSBEngine(t, fake)

	ids, err := e.List(context.Background(), device.U6, transport.KindUSB)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, uint8(7), ids[0].LocalID)
	assert.Equal(t, "U6", ids[0].Family.Name())
	assert.Empty(t, fake.OpenHandles())
	assert.Equal(t, 0, drivers.Refs())
}

func TestEnumerateDriverUnavailable(t *testing.T) {
	drivers := driver.NewContext(func() (driver.Driver, error) {
		return nil, errors.New("libusb missing")
	}, nil)
	e := discovery.NewEngine(discovery.Config{Drivers: drivers})

	_, err := e.Enumerate(context.Background(), device.U3, transport.KindUSB, discovery.Options{})
	assert.True(t, ljerrors.Is(err, ljerrors.DriverUnavailable))
}

func TestNetworkUnsupportedForUSBOnlyFamilies(t *testing.T) {
	e := discovery.NewEngine(discovery.Config{Transport: transport.DefaultOptions()})
	_, err := e.Enumerate(context.Background(), device.U3, transport.KindUDP, discovery.Options{})
	assert.True(t, ljerrors.Is(err, ljerrors.UnsupportedOnTransport))
	_, err = e.OpenTCP(context.Background(), device.U6, "127.0.0.1")
	assert.True(t, ljerrors.Is(err, ljerrors.UnsupportedOnTransport))
}

func startSim(t *testing.T, cfg sim.Config) (*sim.Device, transport.Options) {
	t.Helper()
	d, err := sim.New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, d.Start())
	t.Cleanup(func() { d.Stop() })

	opts := transport.DefaultOptions()
	opts.BroadcastAddress = "127.0.0.1"
	opts.Ports = d.Ports()
	opts.DiscoveryTimeout = 300 * time.Millisecond
	opts.ReadTimeout = 2 * time.Second
	opts.ConnectTimeout = 2 * time.Second
	return d, opts
}

func TestEnumerateNetwork(t *testing.T) {
	dev, opts := startSim(t, sim.Config{})
	e := discovery.NewEngine(discovery.Config{Transport: opts})

	sessions, err := e.Enumerate(context.Background(), device.UE9, transport.KindUDP, discovery.Options{})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	s := sessions[0]
	defer s.Close()

	id := s.Identity()
	assert.Equal(t, dev.Identity().Serial, id.Serial)
	assert.Equal(t, "127.0.0.1", id.Address)
	assert.Equal(t, transport.KindTCP, id.Transport)
	assert.Equal(t, int64(1), dev.Stats().Probes)

	assert.True(t, s.Ping())
	v, err := s.ReadRegister(0, 0, modbus.FormatDefault)
	require.NoError(t, err)
	assert.Equal(t, 1.25, v)
	require.NoError(t, s.Reset())
	assert.Equal(t, int64(1), dev.Stats().Resets)

	stream, err := s.Read(46, device.ReadOptions{Stream: true})
	require.NoError(t, err)
	assert.NotEmpty(t, stream)
}

func TestEnumerateNetworkMatchFilters(t *testing.T) {
	_, opts := startSim(t, sim.Config{})
	e := discovery.NewEngine(discovery.Config{Transport: opts})

	sessions, err := e.Enumerate(context.Background(), device.UE9, transport.KindUDP, discovery.Options{
		Match: discovery.Match{By: discovery.MatchAddress, Address: "10.9.9.9"},
	})
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestOpenTCP(t *testing.T) {
	dev, opts := startSim(t, sim.Config{})
	e := discovery.NewEngine(discovery.Config{Transport: opts})

	s, err := e.OpenTCP(context.Background(), device.UE9, "127.0.0.1")
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, dev.Identity().Serial, s.Identity().Serial)
	assert.Equal(t, int64(1), dev.Stats().Commands)

	require.NoError(t, s.WriteRegister(6001, 1))
	assert.Equal(t, uint16(1), dev.Store().Register(6001))

	require.NoError(t, s.WriteRegister(2, 4.5))
	v, err := s.ReadRegister(2, 2, modbus.FormatFloat32)
	require.NoError(t, err)
	assert.Equal(t, 4.5, v)
}

func TestOpenTargetTCPMatch(t *testing.T) {
	_, opts := startSim(t, sim.Config{})
	e := discovery.NewEngine(discovery.Config{Transport: opts})
	target, err := transport.ParseTarget("tcp://127.0.0.1")
	require.NoError(t, err)

	_, err = e.OpenTarget(context.Background(), device.UE9, target, discovery.Match{By: discovery.MatchSerial, Number: 1})
	assert.True(t, ljerrors.Is(err, ljerrors.DeviceNotFound))

	s, err := e.OpenTarget(context.Background(), device.UE9, target, discovery.Match{})
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestRegisterRetryAgainstEmulator(t *testing.T) {
	t.Run("bad checksum sentinel", func(t *testing.T) {
		dev, opts := startSim(t, sim.Config{Faults: sim.Faults{BadChecksumReplies: 1}})
		e := discovery.NewEngine(discovery.Config{Transport: opts})
		s, err := e.OpenTCP(context.Background(), device.UE9, "127.0.0.1")
		require.NoError(t, err)
		defer s.Close()

		v, err := s.ReadRegister(4, 0, modbus.FormatDefault)
		require.NoError(t, err)
		assert.Equal(t, -0.75, v)
		assert.Equal(t, int64(2), dev.Stats().Registers)
	})
	t.Run("dropped connection", func(t *testing.T) {
		dev, opts := startSim(t, sim.Config{Faults: sim.Faults{DropRegisterReplies: 1}})
		e := discovery.NewEngine(discovery.Config{Transport: opts})
		s, err := e.OpenTCP(context.Background(), device.UE9, "127.0.0.1")
		require.NoError(t, err)
		defer s.Close()

		v, err := s.ReadRegister(6, 0, modbus.FormatDefault)
		require.NoError(t, err)
		assert.InDelta(t, 3.3, v, 1e-6)
		assert.Equal(t, int64(2), dev.Stats().Registers)
	})
}
