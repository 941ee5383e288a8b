package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ljerrors "github.com/genba/labjackgo/internal/errors"
	"github.com/genba/labjackgo/internal/frame"
	"github.com/genba/labjackgo/internal/transport"
)

func TestAddressRoundTrip(t *testing.T) {
	tests := []struct {
		v uint32
		s string
	}{
		{3232235985, "192.168.1.209"},
		{0, "0.0.0.0"},
		{0xFFFFFFFF, "255.255.255.255"},
		{0x0A000002, "10.0.0.2"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.s, AddressString(tt.v))
		v, err := ParseAddress(tt.s)
		require.NoError(t, err)
		assert.Equal(t, tt.v, v)
	}
}

func TestParseAddressInvalid(t *testing.T) {
	for _, s := range []string{"", "1.2.3", "1.2.3.256", "a.b.c.d", "1.2.3.4.5"} {
		_, err := ParseAddress(s)
		assert.True(t, ljerrors.Is(err, ljerrors.InvalidAddress), "input %q", s)
	}
}

func TestLayoutADecode(t *testing.T) {
	resp := make([]byte, 38)
	resp[8] = 7
	resp[10], resp[11], resp[12], resp[13] = 209, 1, 168, 192
	resp[28], resp[29], resp[30] = 0x39, 0x30, 0x05

	id, err := LayoutA.Decode(resp)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x10053039), id.Serial)
	assert.Equal(t, uint8(7), id.LocalID)
	assert.Equal(t, "192.168.1.209", id.Address)
}

func TestLayoutBDecode(t *testing.T) {
	resp := make([]byte, 38)
	resp[15], resp[16], resp[17], resp[18] = 0x39, 0x30, 0x12, 0x13
	resp[21] = 2
	resp[37] = 12

	id, err := LayoutB.Decode(resp)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x13123039), id.Serial)
	assert.Equal(t, uint8(2), id.LocalID)
	assert.True(t, id.Pro)
	assert.Empty(t, id.Address)
}

func TestLayoutDecodeShort(t *testing.T) {
	_, err := LayoutA.Decode(make([]byte, 33))
	assert.True(t, ljerrors.Is(err, ljerrors.ShortRead))
	_, err = LayoutB.Decode(make([]byte, 21))
	assert.True(t, ljerrors.Is(err, ljerrors.ShortRead))

	// 22 bytes is enough for layout B.
	_, err = LayoutB.Decode(make([]byte, 22))
	assert.NoError(t, err)
}

func TestLayoutEncodeRoundTrip(t *testing.T) {
	a := Identity{Serial: 0x10053039, LocalID: 3, Address: "192.168.1.209"}
	resp, err := LayoutA.Encode(a)
	require.NoError(t, err)
	assert.True(t, frame.VerifyChecksum(resp))
	got, err := LayoutA.Decode(resp)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	b := Identity{Serial: 360012345, LocalID: 9, Pro: true}
	resp, err = LayoutB.Encode(b)
	require.NoError(t, err)
	assert.True(t, frame.VerifyChecksum(resp))
	got, err = LayoutB.Decode(resp)
	require.NoError(t, err)
	assert.Equal(t, b, got)

	_, err = LayoutA.Encode(Identity{Serial: 320000000})
	assert.Error(t, err)
}

func TestFamilies(t *testing.T) {
	tests := []struct {
		fam      Family
		product  int
		network  bool
		usbRegs  bool
		layout   Layout
		pingLen  int
		identLen int
	}{
		{UE9, 9, true, false, LayoutA, 2, 38},
		{U3, 3, false, true, LayoutB, 40, 26},
		{U6, 6, false, true, LayoutB, 38, 26},
	}
	for _, tt := range tests {
		t.Run(tt.fam.Name(), func(t *testing.T) {
			assert.Equal(t, tt.product, tt.fam.ProductID())
			assert.Equal(t, tt.network, tt.fam.SupportsNetwork())
			assert.Equal(t, tt.usbRegs, tt.fam.USBRegisterAccess())
			assert.Equal(t, tt.layout, tt.fam.Layout())
			assert.Equal(t, tt.pingLen, tt.fam.PingResponseLen())
			assert.Len(t, tt.fam.IdentifyFrame(), tt.identLen)
			assert.Equal(t, []byte{0x9B, 0x99, 0x02, 0x00}, tt.fam.ResetFrame())
			assert.Equal(t, 4, tt.fam.ResetResponseLen())
			assert.True(t, tt.fam.SupportsTransport(transport.KindUSB))
			assert.Equal(t, tt.network, tt.fam.SupportsTransport(transport.KindTCP))

			byName, err := FamilyByName(tt.fam.Name())
			require.NoError(t, err)
			assert.Equal(t, tt.product, byName.ProductID())
			byID, err := FamilyByProductID(tt.product)
			require.NoError(t, err)
			assert.Equal(t, tt.fam.Name(), byID.Name())
		})
	}

	_, err := FamilyByName("U12")
	assert.Error(t, err)
	assert.True(t, Family{}.IsZero())
}

func TestFamilyFrames(t *testing.T) {
	assert.Equal(t, []byte{0x22, 0x78, 0x00, 0xA9, 0x00, 0x00}, UE9.DiscoveryProbe())
	assert.Nil(t, U3.DiscoveryProbe())
	assert.Equal(t, []byte{0x70, 0x70}, UE9.PingFrame())
	assert.Equal(t, []byte{0x24, 0xF8, 0x01, 0x2A, 0, 0, 0, 0}, U3.PingFrame())

	// Accessors hand out copies.
	f := UE9.IdentifyFrame()
	f[1] = 0
	assert.Equal(t, byte(0x78), UE9.IdentifyFrame()[1])
}
