package modbus

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ljerrors "github.com/genba/labjackgo/internal/errors"
)

func TestRegisterMap(t *testing.T) {
	tests := []struct {
		addr   uint16
		count  int
		format Format
	}{
		{0, 2, FormatFloat32},
		{5000, 2, FormatFloat32},
		{6003, 1, FormatUint16},
		{7100, 2, FormatUint32},
		{50100, 2, FormatUint32},
		{9000, 1, FormatUint16},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.count, RegisterCountFor(tt.addr), "count for %d", tt.addr)
		assert.Equal(t, tt.format, FormatFor(tt.addr), "format for %d", tt.addr)
	}
}

func TestEncodeReadRequest(t *testing.T) {
	frame := EncodeReadRequest(5000, 2)
	require.Len(t, frame, 12)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 6, UnitID, byte(FcReadHoldingRegisters), 0x13, 0x88, 0x00, 0x02}, frame)
	assert.Equal(t, 13, ReadResponseLen(2))
}

func TestEncodeWriteFloatRequest(t *testing.T) {
	frame := EncodeWriteFloatRequest(5000, 1.5)
	require.Len(t, frame, 17)

	hdr, err := DecodeMBAPHeader(frame)
	require.NoError(t, err)
	assert.Equal(t, uint16(11), hdr.Length)
	assert.Equal(t, uint8(UnitID), hdr.UnitID)

	pdu := frame[MBAPHeaderSize:]
	assert.Equal(t, byte(FcWriteMultipleRegisters), pdu[0])
	assert.Equal(t, uint16(5000), binary.BigEndian.Uint16(pdu[1:3]))
	assert.Equal(t, uint16(2), binary.BigEndian.Uint16(pdu[3:5]))
	assert.Equal(t, byte(4), pdu[5])
	assert.Equal(t, float32(1.5), math.Float32frombits(binary.BigEndian.Uint32(pdu[6:10])))
}

func TestDecodeReadResponseFormats(t *testing.T) {
	ds := NewDataStore()
	ds.SetValue(0, 2.5)
	ds.SetValue(5000, 2.5)
	ds.SetValue(7000, 123456)
	ds.SetValue(6002, 1)

	read := func(addr uint16, count int, format Format) float64 {
		req, err := DecodeRequestTCP(EncodeReadRequest(addr, count))
		require.NoError(t, err)
		frame := EncodeResponseTCP(ds.HandleRequest(req))
		v, err := DecodeReadResponse(frame, addr, format)
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, 2.5, read(0, 2, FormatDefault))
	assert.Equal(t, 2.5, read(5000, 2, FormatDefault))
	assert.Equal(t, float64(123456), read(7000, 2, FormatDefault))
	assert.Equal(t, float64(1), read(6002, 1, FormatDefault))
}

func TestDecodeReadResponseException(t *testing.T) {
	frame := EncodeExceptionResponse(0, UnitID, FcReadHoldingRegisters, ExceptionIllegalDataAddress)
	_, err := DecodeReadResponse(frame, 0, FormatDefault)
	require.Error(t, err)
	assert.True(t, ljerrors.Is(err, ljerrors.ModbusException))
	code, ok := ljerrors.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, byte(ExceptionIllegalDataAddress), code)
}

func TestValueRegisterConversions(t *testing.T) {
	for _, f := range []Format{FormatFloat32, FormatUint32, FormatInt32, FormatUint16} {
		v, err := RegistersToValue(ValueToRegisters(42, f), f)
		require.NoError(t, err, f.String())
		assert.Equal(t, float64(42), v, f.String())
	}

	v, err := RegistersToValue(ValueToRegisters(-7, FormatInt32), FormatInt32)
	require.NoError(t, err)
	assert.Equal(t, float64(-7), v)

	_, err = RegistersToValue([]uint16{1}, FormatFloat32)
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("float32")
	require.NoError(t, err)
	assert.Equal(t, FormatFloat32, f)

	_, err = ParseFormat("complex128")
	assert.Error(t, err)
}

func TestDataStoreWrites(t *testing.T) {
	ds := NewDataStore()
	ds.MarkReadOnly(50100)

	req, err := DecodeRequestTCP(EncodeWriteRequest(6000, 1))
	require.NoError(t, err)
	resp := ds.HandleRequest(req)
	assert.False(t, resp.IsException())
	assert.Equal(t, uint16(1), ds.Register(6000))

	req, err = DecodeRequestTCP(EncodeWriteMultipleRequest(50100, []uint16{1, 2}))
	require.NoError(t, err)
	resp = ds.HandleRequest(req)
	assert.True(t, resp.IsException())
	assert.Equal(t, ExceptionIllegalDataAddress, resp.ExceptionCode())
}
