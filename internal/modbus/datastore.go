package modbus

// Register store for device emulation. Registers are sparse: an address reads
// as zero until written.

import (
	"encoding/binary"
	"sync"
)

// DataStore holds the holding-register address space.
type DataStore struct {
	mu        sync.RWMutex
	registers map[uint16]uint16
	readOnly  map[uint16]bool
}

// NewDataStore creates an empty data store.
func NewDataStore() *DataStore {
	return &DataStore{
		registers: make(map[uint16]uint16),
		readOnly:  make(map[uint16]bool),
	}
}

// SetRegister sets a single register value.
func (ds *DataStore) SetRegister(addr uint16, value uint16) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.registers[addr] = value
}

// SetValue stores value at addr using the register map's width and format.
func (ds *DataStore) SetValue(addr uint16, value float64) {
	regs := ValueToRegisters(value, FormatFor(addr))
	ds.mu.Lock()
	defer ds.mu.Unlock()
	for i, r := range regs {
		ds.registers[addr+uint16(i)] = r
	}
}

// MarkReadOnly makes writes to addr fail with an illegal-address exception.
func (ds *DataStore) MarkReadOnly(addr uint16) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.readOnly[addr] = true
}

// Register reads a single register.
func (ds *DataStore) Register(addr uint16) uint16 {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.registers[addr]
}

// HandleRequest processes a Modbus request and returns the response.
func (ds *DataStore) HandleRequest(req Request) Response {
	switch req.Function {
	case FcReadHoldingRegisters, FcReadInputRegisters:
		return ds.handleReadRegisters(req)
	case FcWriteSingleRegister:
		return ds.handleWriteSingleRegister(req)
	case FcWriteMultipleRegisters:
		return ds.handleWriteMultipleRegisters(req)
	default:
		return exceptionResponse(req, ExceptionIllegalFunction)
	}
}

func (ds *DataStore) handleReadRegisters(req Request) Response {
	if len(req.Data) < 4 {
		return exceptionResponse(req, ExceptionIllegalDataValue)
	}
	startAddr := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	if quantity < 1 || quantity > 125 {
		return exceptionResponse(req, ExceptionIllegalDataValue)
	}

	ds.mu.RLock()
	defer ds.mu.RUnlock()

	byteCount := quantity * 2
	data := make([]byte, 1+byteCount)
	data[0] = byte(byteCount)
	for i := uint16(0); i < quantity; i++ {
		binary.BigEndian.PutUint16(data[1+i*2:], ds.registers[startAddr+i])
	}
	return reply(req, data)
}

func (ds *DataStore) handleWriteSingleRegister(req Request) Response {
	if len(req.Data) < 4 {
		return exceptionResponse(req, ExceptionIllegalDataValue)
	}
	addr := binary.BigEndian.Uint16(req.Data[0:2])
	val := binary.BigEndian.Uint16(req.Data[2:4])

	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.readOnly[addr] {
		return exceptionResponse(req, ExceptionIllegalDataAddress)
	}
	ds.registers[addr] = val
	return reply(req, cloneBytes(req.Data[:4]))
}

func (ds *DataStore) handleWriteMultipleRegisters(req Request) Response {
	if len(req.Data) < 5 {
		return exceptionResponse(req, ExceptionIllegalDataValue)
	}
	startAddr := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	byteCount := int(req.Data[4])
	if quantity < 1 || quantity > 123 {
		return exceptionResponse(req, ExceptionIllegalDataValue)
	}
	if byteCount != int(quantity)*2 || len(req.Data) < 5+byteCount {
		return exceptionResponse(req, ExceptionIllegalDataValue)
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	for i := uint16(0); i < quantity; i++ {
		if ds.readOnly[startAddr+i] {
			return exceptionResponse(req, ExceptionIllegalDataAddress)
		}
	}
	for i := uint16(0); i < quantity; i++ {
		ds.registers[startAddr+i] = binary.BigEndian.Uint16(req.Data[5+i*2:])
	}

	// Response echoes start address and quantity
	return reply(req, encodeAddrQty(startAddr, quantity))
}

func reply(req Request, data []byte) Response {
	return Response{
		TransactionID: req.TransactionID,
		UnitID:        req.UnitID,
		Function:      req.Function,
		Data:          data,
	}
}

func exceptionResponse(req Request, exc ExceptionCode) Response {
	return Response{
		TransactionID: req.TransactionID,
		UnitID:        req.UnitID,
		Function:      req.Function | 0x80,
		Data:          []byte{byte(exc)},
	}
}
