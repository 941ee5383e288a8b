package frame

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ljerrors "github.com/genba/labjackgo/internal/errors"
)

func TestApplyChecksumKnownFrames(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{
			name: "extended config frame",
			in:   []byte{0, 0xF8, 0x03, 0x0B, 0, 0, 0, 0, 0, 0, 0, 0},
			want: []byte{0x07, 0xF8, 0x03, 0x0B, 0, 0, 0, 0, 0, 0, 0, 0},
		},
		{
			name: "extended ping frame",
			in:   []byte{0, 0xF8, 0x01, 0x2A, 0, 0, 0, 0},
			want: []byte{0x24, 0xF8, 0x01, 0x2A, 0, 0, 0, 0},
		},
		{
			name: "extended frame with payload",
			in:   []byte{0, 0xF8, 0x02, 0x00, 0, 0, 0xFF, 0xFF, 0x10},
			want: []byte{0x0B, 0xF8, 0x02, 0x00, 0x0E, 0x02, 0xFF, 0xFF, 0x10},
		},
		{
			name: "normal frame",
			in:   []byte{0, 0x99, 0x02, 0x00, 0, 0, 0, 0},
			want: []byte{0x9B, 0x99, 0x02, 0x00, 0, 0, 0, 0},
		},
		{
			name: "normal frame carry fold",
			in:   []byte{0, 0x87, 0xFF, 0x79, 0, 0, 0, 0},
			want: []byte{0x01, 0x87, 0xFF, 0x79, 0, 0, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := append([]byte(nil), tt.in...)
			require.NoError(t, ApplyChecksum(buf))
			assert.Equal(t, tt.want, buf)
			assert.True(t, VerifyChecksum(buf))
		})
	}
}

func TestApplyChecksumTooShort(t *testing.T) {
	for n := 0; n < MinFrameSize; n++ {
		err := ApplyChecksum(make([]byte, n))
		require.Error(t, err, "len %d", n)
		assert.True(t, ljerrors.Is(err, ljerrors.FrameTooShort))
	}
	assert.False(t, VerifyChecksum([]byte{0x70, 0x70}))
}

func TestChecksumRoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		buf := make([]byte, MinFrameSize+rng.Intn(120))
		rng.Read(buf)
		if i%2 == 0 {
			buf[1] |= classMask // force an extended frame half the time
		}
		require.NoError(t, ApplyChecksum(buf))
		require.True(t, VerifyChecksum(buf), "frame % X", buf)

		again := append([]byte(nil), buf...)
		require.NoError(t, ApplyChecksum(again))
		require.Equal(t, buf, again, "re-applying must reproduce the checksum bytes")
	}
}

func TestVerifyChecksumDetectsCorruption(t *testing.T) {
	buf := make([]byte, 38)
	buf[1], buf[2], buf[3] = 0x78, 0x10, 0x01
	buf[20] = 0x42
	require.NoError(t, ApplyChecksum(buf))

	buf[20]++
	assert.False(t, VerifyChecksum(buf))
}

func TestVerifyChecksumDoesNotMutate(t *testing.T) {
	buf := []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77}
	orig := append([]byte(nil), buf...)
	VerifyChecksum(buf)
	assert.Equal(t, orig, buf)
}

func TestClass(t *testing.T) {
	assert.True(t, IsExtended([]byte{0, 0xF8}))
	assert.True(t, IsExtended([]byte{0, 0x78}))
	assert.False(t, IsExtended([]byte{0, 0x99}))
	assert.Equal(t, byte(0x03), Class([]byte{0, 0x99}))
	assert.Equal(t, byte(0), Class(nil))
}
