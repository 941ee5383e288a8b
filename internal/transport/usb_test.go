package transport

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ljerrors "github.com/genba/labjackgo/internal/errors"
)

// scriptedHandle records writes and serves queued reads per endpoint.
type scriptedHandle struct {
	writes    map[int][][]byte
	reads     map[int][][]byte
	shortBy   int
	readErr   error
	closeCall int
}

func newScriptedHandle() *scriptedHandle {
	return &scriptedHandle{writes: map[int][][]byte{}, reads: map[int][][]byte{}}
}

func (h *scriptedHandle) BulkWrite(ep int, p []byte) (int, error) {
	h.writes[ep] = append(h.writes[ep], append([]byte(nil), p...))
	return len(p) - h.shortBy, nil
}

func (h *scriptedHandle) BulkRead(ep int, buf []byte, _ time.Duration) (int, error) {
	if h.readErr != nil {
		return 0, h.readErr
	}
	q := h.reads[ep]
	if len(q) == 0 {
		return 0, nil
	}
	h.reads[ep] = q[1:]
	return copy(buf, q[0]), nil
}

func (h *scriptedHandle) Close() error {
	h.closeCall++
	return nil
}

func TestUSBCommandEndpoints(t *testing.T) {
	h := newScriptedHandle()
	h.reads[EndpointCommandIn] = [][]byte{{1, 2, 3}}
	h.reads[EndpointStreamIn] = [][]byte{{9, 9}}
	u := NewUSB(h, USBOptions{})

	n, err := u.Write(ChannelCommand, []byte{0xAA, 0xBB})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, [][]byte{{0xAA, 0xBB}}, h.writes[EndpointCommandOut])

	got, err := u.Read(ChannelCommand, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)

	got, err = u.Read(ChannelStream, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9}, got)
	assert.Equal(t, KindUSB, u.Kind())
}

func TestUSBRegisterPad(t *testing.T) {
	h := newScriptedHandle()
	u := NewUSB(h, USBOptions{RegisterAccess: true})

	n, err := u.Write(ChannelRegister, []byte{0x00, 0x01, 0x02})
	require.NoError(t, err)
	assert.Equal(t, 3, n, "pad is not counted")
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x01, 0x02}, h.writes[EndpointCommandOut][0])
}

func TestUSBRegisterUnsupported(t *testing.T) {
	u := NewUSB(newScriptedHandle(), USBOptions{})

	_, err := u.Write(ChannelRegister, []byte{1})
	assert.True(t, ljerrors.Is(err, ljerrors.UnsupportedOnTransport))
	_, err = u.Read(ChannelRegister, 12)
	assert.True(t, ljerrors.Is(err, ljerrors.UnsupportedOnTransport))
	_, err = u.Write(ChannelStream, []byte{1})
	assert.True(t, ljerrors.Is(err, ljerrors.UnsupportedOnTransport))
}

func TestUSBShortWriteAndRead(t *testing.T) {
	h := newScriptedHandle()
	h.shortBy = 1
	u := NewUSB(h, USBOptions{})

	_, err := u.Write(ChannelCommand, []byte{1, 2, 3})
	assert.True(t, ljerrors.Is(err, ljerrors.ShortWrite))

	_, err = u.Read(ChannelCommand, 4)
	assert.True(t, ljerrors.Is(err, ljerrors.ShortRead))
}

func TestUSBReadErrorKinds(t *testing.T) {
	h := newScriptedHandle()
	h.readErr = ljerrors.New(ljerrors.Timeout, "usb transfer", nil)
	u := NewUSB(h, USBOptions{})
	_, err := u.Read(ChannelCommand, 4)
	assert.True(t, ljerrors.Is(err, ljerrors.Timeout))

	h.readErr = errors.New("pipe broke")
	_, err = u.Read(ChannelCommand, 4)
	assert.True(t, ljerrors.Is(err, ljerrors.ConnectionReset))
}

func TestUSBCloseIdempotent(t *testing.T) {
	h := newScriptedHandle()
	u := NewUSB(h, USBOptions{})
	require.NoError(t, u.Close())
	require.NoError(t, u.Close())
	assert.Equal(t, 1, h.closeCall)

	_, err := u.Write(ChannelCommand, []byte{1})
	assert.Error(t, err)
}
