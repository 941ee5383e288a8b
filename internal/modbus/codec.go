package modbus

// MBAP framing: encode and decode Modbus PDUs behind the 7-byte header.

import (
	"encoding/binary"
	"fmt"
)

func errTooShort(what string, got, need int) error {
	return fmt.Errorf("%s too short: %d bytes (minimum %d)", what, got, need)
}

// MaxPDUSize is the largest PDU a Modbus/TCP frame may carry.
const MaxPDUSize = 253

// EncodeRequestTCP encodes a Modbus request into an MBAP frame.
func EncodeRequestTCP(req Request) []byte {
	return encodeFrame(req.TransactionID, req.UnitID, req.Function, req.Data)
}

// EncodeResponseTCP encodes a Modbus response into an MBAP frame.
func EncodeResponseTCP(resp Response) []byte {
	return encodeFrame(resp.TransactionID, resp.UnitID, resp.Function, resp.Data)
}

// DecodeRequestTCP decodes an MBAP frame into a Request.
func DecodeRequestTCP(data []byte) (Request, error) {
	hdr, fc, pdu, err := decodeFrame(data)
	if err != nil {
		return Request{}, err
	}
	return Request{
		TransactionID: hdr.TransactionID,
		UnitID:        hdr.UnitID,
		Function:      fc,
		Data:          pdu,
	}, nil
}

// DecodeResponseTCP decodes an MBAP frame into a Response.
func DecodeResponseTCP(data []byte) (Response, error) {
	hdr, fc, pdu, err := decodeFrame(data)
	if err != nil {
		return Response{}, err
	}
	return Response{
		TransactionID: hdr.TransactionID,
		UnitID:        hdr.UnitID,
		Function:      fc,
		Data:          pdu,
	}, nil
}

// EncodeExceptionResponse creates an exception response frame.
func EncodeExceptionResponse(transactionID uint16, unitID uint8, fc FunctionCode, exc ExceptionCode) []byte {
	return EncodeResponseTCP(Response{
		TransactionID: transactionID,
		UnitID:        unitID,
		Function:      fc | exceptionBit,
		Data:          []byte{byte(exc)},
	})
}

// ReadHoldingRegistersRequest builds the data payload for FC 0x03.
func ReadHoldingRegistersRequest(startAddr uint16, quantity uint16) []byte {
	return encodeAddrQty(startAddr, quantity)
}

// WriteSingleRegisterRequest builds the data payload for FC 0x06.
func WriteSingleRegisterRequest(addr uint16, value uint16) []byte {
	return encodeAddrQty(addr, value)
}

// WriteMultipleRegistersRequest builds the data payload for FC 0x10.
func WriteMultipleRegistersRequest(startAddr uint16, values []uint16) []byte {
	buf := make([]byte, 5+2*len(values))
	binary.BigEndian.PutUint16(buf[0:2], startAddr)
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(values)))
	buf[4] = byte(2 * len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(buf[5+2*i:], v)
	}
	return buf
}

// DecodeReadRegistersResponse parses the data field of a read registers
// response (FC 0x03 or 0x04) into a slice of uint16 register values.
func DecodeReadRegistersResponse(data []byte) ([]uint16, error) {
	if len(data) < 1 {
		return nil, errTooShort("read registers response", len(data), 1)
	}
	byteCount := int(data[0])
	if len(data) < 1+byteCount {
		return nil, errTooShort("read registers response data", len(data), 1+byteCount)
	}
	if byteCount%2 != 0 {
		return nil, fmt.Errorf("odd byte count in register response: %d", byteCount)
	}
	regs := make([]uint16, byteCount/2)
	for i := range regs {
		regs[i] = binary.BigEndian.Uint16(data[1+i*2 : 1+i*2+2])
	}
	return regs, nil
}

func encodeFrame(txID uint16, unit uint8, fc FunctionCode, data []byte) []byte {
	h := MBAPHeader{TransactionID: txID, Length: uint16(2 + len(data)), UnitID: unit}
	buf := h.appendTo(make([]byte, 0, MBAPHeaderSize+1+len(data)))
	buf = append(buf, byte(fc))
	return append(buf, data...)
}

// decodeFrame splits an ADU into header, function code and a copy of the PDU
// data. Bytes past the declared length are ignored.
func decodeFrame(data []byte) (MBAPHeader, FunctionCode, []byte, error) {
	hdr, err := DecodeMBAPHeader(data)
	if err != nil {
		return MBAPHeader{}, 0, nil, err
	}
	if hdr.ProtocolID != 0 {
		return MBAPHeader{}, 0, nil, fmt.Errorf("invalid Modbus protocol ID: 0x%04X", hdr.ProtocolID)
	}
	if hdr.Length < 2 {
		return MBAPHeader{}, 0, nil, errTooShort("Modbus PDU", int(hdr.Length), 2)
	}
	end := MBAPHeaderSize + int(hdr.Length) - 1
	if end > len(data) {
		return MBAPHeader{}, 0, nil, errTooShort("Modbus TCP frame", len(data), end)
	}
	return hdr, FunctionCode(data[MBAPHeaderSize]), cloneBytes(data[MBAPHeaderSize+1 : end]), nil
}

func encodeAddrQty(addr, qty uint16) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint16(buf[0:2], addr)
	binary.BigEndian.PutUint16(buf[2:4], qty)
	return buf
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
