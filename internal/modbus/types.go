// Package modbus encodes and decodes the register protocol spoken on the
// device's secondary channel: Modbus/TCP (MBAP header + PDU) addressed to
// unit 0xFF, with transaction ID 0.
package modbus

import "encoding/binary"

// FunctionCode is a Modbus function code. Bit 7 marks an exception reply.
type FunctionCode uint8

const (
	// MBAPHeaderSize is the fixed header length ahead of the function code.
	MBAPHeaderSize = 7
	// UnitID is the unit identifier the devices answer to.
	UnitID = 0xFF

	exceptionBit FunctionCode = 0x80
)

// MBAPHeader is the Modbus/TCP framing header. Length counts the unit byte
// plus the PDU.
type MBAPHeader struct {
	TransactionID uint16
	ProtocolID    uint16
	Length        uint16
	UnitID        uint8
}

// Request is a decoded register request.
type Request struct {
	TransactionID uint16
	UnitID        uint8
	Function      FunctionCode
	Data          []byte
}

// Response is a decoded register reply.
type Response struct {
	TransactionID uint16
	UnitID        uint8
	Function      FunctionCode
	Data          []byte
}

// ExceptionCode is the single data byte of an exception reply.
type ExceptionCode uint8

const (
	ExceptionIllegalFunction    ExceptionCode = 0x01
	ExceptionIllegalDataAddress ExceptionCode = 0x02
	ExceptionIllegalDataValue   ExceptionCode = 0x03
	ExceptionSlaveDeviceFailure ExceptionCode = 0x04
)

var exceptionNames = map[ExceptionCode]string{
	ExceptionIllegalFunction:    "illegal function",
	ExceptionIllegalDataAddress: "illegal register address",
	ExceptionIllegalDataValue:   "illegal register value",
	ExceptionSlaveDeviceFailure: "device failure",
}

func (e ExceptionCode) String() string {
	if n, ok := exceptionNames[e]; ok {
		return n
	}
	return "unknown exception"
}

// IsException reports whether the reply carries an exception code.
func (r Response) IsException() bool {
	return r.Function&exceptionBit != 0
}

// ExceptionCode returns the exception carried by an exception reply, or 0.
func (r Response) ExceptionCode() ExceptionCode {
	if !r.IsException() || len(r.Data) == 0 {
		return 0
	}
	return ExceptionCode(r.Data[0])
}

// EncodeMBAPHeader returns the 7 header bytes.
func EncodeMBAPHeader(h MBAPHeader) []byte {
	return h.appendTo(make([]byte, 0, MBAPHeaderSize))
}

func (h MBAPHeader) appendTo(b []byte) []byte {
	b = binary.BigEndian.AppendUint16(b, h.TransactionID)
	b = binary.BigEndian.AppendUint16(b, h.ProtocolID)
	b = binary.BigEndian.AppendUint16(b, h.Length)
	return append(b, h.UnitID)
}

// DecodeMBAPHeader parses the first 7 bytes of data.
func DecodeMBAPHeader(data []byte) (MBAPHeader, error) {
	if len(data) < MBAPHeaderSize {
		return MBAPHeader{}, errTooShort("MBAP header", len(data), MBAPHeaderSize)
	}
	be := binary.BigEndian
	return MBAPHeader{
		TransactionID: be.Uint16(data),
		ProtocolID:    be.Uint16(data[2:]),
		Length:        be.Uint16(data[4:]),
		UnitID:        data[6],
	}, nil
}
