package modbus

// Register map and typed request/response helpers used by the device session.
//
// Address ranges:
//   - 0-4999      analog inputs and configuration, float32 (2 registers)
//   - 5000-5999   analog outputs (DAC0 at 5000), float32 (2 registers)
//   - 6000-6999   digital I/O state, uint16 (1 register)
//   - 7000-7999   timers and counters, uint32 (2 registers)
//   - 50000-50999 device identity, uint32 (2 registers)
//
// Anything else is treated as a single uint16 register.

import (
	"encoding/binary"
	"fmt"
	"math"

	ljerrors "github.com/genba/labjackgo/internal/errors"
)

// Format selects how register words are turned into a value.
type Format int

const (
	FormatDefault Format = iota // pick from the register map
	FormatFloat32
	FormatUint32
	FormatInt32
	FormatUint16
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatFloat32:
		return "float32"
	case FormatUint32:
		return "uint32"
	case FormatInt32:
		return "int32"
	case FormatUint16:
		return "uint16"
	default:
		return "default"
	}
}

// ParseFormat parses a format name as printed by Format.String.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "default":
		return FormatDefault, nil
	case "float32", "float", "f":
		return FormatFloat32, nil
	case "uint32", "I":
		return FormatUint32, nil
	case "int32", "i":
		return FormatInt32, nil
	case "uint16", "H":
		return FormatUint16, nil
	}
	return FormatDefault, fmt.Errorf("unknown register format %q", s)
}

type registerRange struct {
	start, end int // [start, end)
	count      int
	format     Format
}

var registerMap = []registerRange{
	{start: 0, end: 5000, count: 2, format: FormatFloat32},
	{start: 5000, end: 6000, count: 2, format: FormatFloat32},
	{start: 6000, end: 7000, count: 1, format: FormatUint16},
	{start: 7000, end: 8000, count: 2, format: FormatUint32},
	{start: 50000, end: 51000, count: 2, format: FormatUint32},
}

func lookup(addr uint16) registerRange {
	for _, r := range registerMap {
		if int(addr) >= r.start && int(addr) < r.end {
			return r
		}
	}
	return registerRange{count: 1, format: FormatUint16}
}

// RegisterCountFor returns how many 16-bit registers the value at addr spans.
func RegisterCountFor(addr uint16) int {
	return lookup(addr).count
}

// FormatFor returns the native value format at addr.
func FormatFor(addr uint16) Format {
	return lookup(addr).format
}

// ReadResponseLen is the byte length of a read response for count registers:
// MBAP header, function code, byte count and the register data.
func ReadResponseLen(count int) int {
	return MBAPHeaderSize + 2 + 2*count
}

// WriteResponseLen is the byte length of a single or multiple register write response.
const WriteResponseLen = MBAPHeaderSize + 5

// EncodeReadRequest builds a read-holding-registers request frame.
func EncodeReadRequest(addr uint16, count int) []byte {
	return EncodeRequestTCP(Request{
		UnitID:   UnitID,
		Function: FcReadHoldingRegisters,
		Data:     ReadHoldingRegistersRequest(addr, uint16(count)),
	})
}

// EncodeWriteRequest builds a write-single-register request frame.
func EncodeWriteRequest(addr uint16, value uint16) []byte {
	return EncodeRequestTCP(Request{
		UnitID:   UnitID,
		Function: FcWriteSingleRegister,
		Data:     WriteSingleRegisterRequest(addr, value),
	})
}

// EncodeWriteMultipleRequest builds a write-multiple-registers request frame.
func EncodeWriteMultipleRequest(addr uint16, values []uint16) []byte {
	return EncodeRequestTCP(Request{
		UnitID:   UnitID,
		Function: FcWriteMultipleRegisters,
		Data:     WriteMultipleRegistersRequest(addr, values),
	})
}

// EncodeWriteFloatRequest builds the fixed float write layout: function code,
// address, register count 2, byte count 4, big-endian float32.
func EncodeWriteFloatRequest(addr uint16, value float32) []byte {
	data := make([]byte, 9)
	binary.BigEndian.PutUint16(data[0:2], addr)
	binary.BigEndian.PutUint16(data[2:4], 2)
	data[4] = 4
	binary.BigEndian.PutUint32(data[5:9], math.Float32bits(value))
	return EncodeRequestTCP(Request{
		UnitID:   UnitID,
		Function: FcWriteMultipleRegisters,
		Data:     data,
	})
}

// DecodeReadResponse decodes a read-holding-registers response frame into a
// single value. With FormatDefault, two registers decode as float32 and any
// other count uses the register map's format for addr.
func DecodeReadResponse(data []byte, addr uint16, format Format) (float64, error) {
	regs, err := DecodeRegisters(data)
	if err != nil {
		return 0, err
	}
	if format == FormatDefault {
		if len(regs) == 2 {
			format = FormatFloat32
		} else {
			format = FormatFor(addr)
		}
	}
	return RegistersToValue(regs, format)
}

// DecodeRegisters decodes a read response frame into raw register words,
// mapping Modbus exceptions to ModbusException errors.
func DecodeRegisters(data []byte) ([]uint16, error) {
	resp, err := DecodeResponseTCP(data)
	if err != nil {
		return nil, ljerrors.New(ljerrors.ShortRead, "decode registers", err)
	}
	if err := CheckException(resp); err != nil {
		return nil, err
	}
	if resp.Function != FcReadHoldingRegisters && resp.Function != FcReadInputRegisters {
		return nil, fmt.Errorf("unexpected function %s in read response", resp.Function)
	}
	return DecodeReadRegistersResponse(resp.Data)
}

// CheckException returns a ModbusException error for exception responses.
func CheckException(resp Response) error {
	if !resp.IsException() {
		return nil
	}
	return ljerrors.WithCode(ljerrors.ModbusException, (resp.Function & 0x7F).String(), byte(resp.ExceptionCode()))
}

// RegistersToValue converts big-endian register words to a value.
func RegistersToValue(regs []uint16, format Format) (float64, error) {
	switch format {
	case FormatUint16:
		if len(regs) < 1 {
			return 0, errTooShort("uint16 register value", len(regs), 1)
		}
		return float64(regs[0]), nil
	case FormatFloat32, FormatUint32, FormatInt32:
		if len(regs) < 2 {
			return 0, errTooShort(format.String()+" register value", len(regs), 2)
		}
		raw := uint32(regs[0])<<16 | uint32(regs[1])
		switch format {
		case FormatFloat32:
			return float64(math.Float32frombits(raw)), nil
		case FormatInt32:
			return float64(int32(raw)), nil
		default:
			return float64(raw), nil
		}
	}
	return 0, fmt.Errorf("unsupported register format %s", format)
}

// ValueToRegisters converts a value to big-endian register words.
func ValueToRegisters(value float64, format Format) []uint16 {
	var raw uint32
	switch format {
	case FormatUint16:
		return []uint16{uint16(value)}
	case FormatFloat32, FormatDefault:
		raw = math.Float32bits(float32(value))
	case FormatInt32:
		raw = uint32(int32(value))
	default:
		raw = uint32(value)
	}
	return []uint16{uint16(raw >> 16), uint16(raw)}
}
