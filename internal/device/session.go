package device

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	ljerrors "github.com/genba/labjackgo/internal/errors"
	"github.com/genba/labjackgo/internal/frame"
	"github.com/genba/labjackgo/internal/logging"
	"github.com/genba/labjackgo/internal/metrics"
	"github.com/genba/labjackgo/internal/modbus"
	"github.com/genba/labjackgo/internal/transport"
)

// DigitalStateBase is the register of digital line 0.
const DigitalStateBase = 6000

// Options carries the ambient collaborators of a session. Zero values are
// valid.
type Options struct {
	Log     *logging.Logger
	Metrics *metrics.Driver
}

// WriteOptions selects how Write frames a payload.
type WriteOptions struct {
	Register   bool // route to the register channel, never checksummed
	NoChecksum bool // payload already carries its checksums
}

// ReadOptions selects the channel Read receives from.
type ReadOptions struct {
	Stream   bool
	Register bool
}

// WriteReadOptions controls a command cycle.
type WriteReadOptions struct {
	NoChecksum     bool
	SkipValidation bool
}

// Session is one open device. It owns its binding.
//
// A Session is not safe for concurrent use. A failed operation never closes
// the session; the caller decides when to Close.
type Session struct {
	id       string
	binding  transport.Binding
	family   Family
	identity Identity
	closed   bool
	log      *logging.Logger
	metrics  *metrics.Driver
}

// NewSession wraps an open binding. Discovery calls it once the identify
// exchange has succeeded.
func NewSession(b transport.Binding, family Family, id Identity, opts Options) *Session {
	id.Family = family
	id.Transport = b.Kind()
	sid := uuid.NewString()
	log := logging.OrNop(opts.Log)
	return &Session{
		id:       sid,
		binding:  b,
		family:   family,
		identity: id,
		log:      log,
		metrics:  opts.Metrics,
	}
}

// ID is a per-session correlation ID used in logs.
func (s *Session) ID() string { return s.id }

func (s *Session) Family() Family { return s.family }

// Identity returns the identity read at open. It is zero after Close.
func (s *Session) Identity() Identity { return s.identity }

func (s *Session) Closed() bool { return s.closed }

func (s *Session) target() string {
	if s.identity.Address != "" {
		return s.identity.Address
	}
	return fmt.Sprintf("%s/%d", s.family, s.identity.Serial)
}

func (s *Session) checkOpen(op string) error {
	if s.closed {
		return ljerrors.New(ljerrors.SessionClosed, op, nil)
	}
	return nil
}

// Write sends payload. Checksums are applied unless NoChecksum is set or the
// write targets the register channel. It returns the number of payload bytes
// written.
func (s *Session) Write(payload []byte, opts WriteOptions) (int, error) {
	if err := s.checkOpen("write"); err != nil {
		return 0, err
	}
	ch := transport.ChannelCommand
	withChecksum := !opts.NoChecksum
	if opts.Register {
		ch = transport.ChannelRegister
		withChecksum = false
	}
	out, err := frame.BuildRequest(payload, withChecksum)
	if err != nil {
		return 0, err
	}
	s.log.LogHex(fmt.Sprintf("[%s] tx %s", s.id, ch), out)
	n, err := s.binding.Write(ch, out)
	if err != nil {
		return n, err
	}
	s.metrics.ObserveFrame(ch.String(), "tx", n)
	return n, nil
}

// Read receives up to n bytes from the command channel, or from the stream
// or register channel when selected.
func (s *Session) Read(n int, opts ReadOptions) ([]byte, error) {
	if err := s.checkOpen("read"); err != nil {
		return nil, err
	}
	ch := transport.ChannelCommand
	switch {
	case opts.Stream:
		ch = transport.ChannelStream
	case opts.Register:
		ch = transport.ChannelRegister
	}
	resp, err := s.binding.Read(ch, n)
	if err != nil {
		return nil, err
	}
	s.log.LogHex(fmt.Sprintf("[%s] rx %s", s.id, ch), resp)
	s.metrics.ObserveFrame(ch.String(), "rx", len(resp))
	return resp, nil
}

// WriteRead sends cmd on the command channel, reads readLen bytes and
// validates the response against echo (the command bytes expected at
// resp[1:]).
func (s *Session) WriteRead(cmd []byte, readLen int, echo []byte, opts WriteReadOptions) ([]byte, error) {
	if _, err := s.Write(cmd, WriteOptions{NoChecksum: opts.NoChecksum}); err != nil {
		return nil, err
	}
	resp, err := s.Read(readLen, ReadOptions{})
	if err != nil {
		return nil, err
	}
	if opts.SkipValidation {
		return resp, nil
	}
	if len(resp) < readLen && !frame.HasBadChecksumSentinel(resp) {
		return resp, ljerrors.Newf(ljerrors.ShortRead, "write read", "got %d of %d bytes", len(resp), readLen)
	}
	if err := frame.ValidateResponse(resp, echo); err != nil {
		return resp, err
	}
	return resp, nil
}

// Identify reads the device configuration and records the identity it
// carries. Discovery calls it once, right after opening the binding.
func (s *Session) Identify() (Identity, error) {
	const op = "identify"
	if err := s.checkOpen(op); err != nil {
		return Identity{}, err
	}
	start := time.Now()
	id, err := s.identify()
	s.observe(metrics.OperationIdentify, start, err)
	if err != nil {
		return Identity{}, err
	}
	s.identity = id
	return id, nil
}

func (s *Session) identify() (Identity, error) {
	resp, err := s.WriteRead(s.family.IdentifyFrame(), s.family.IdentifyResponseLen(), s.family.IdentifyEcho(), WriteReadOptions{})
	if err != nil {
		return Identity{}, err
	}
	id, err := s.family.Layout().Decode(resp)
	if err != nil {
		return Identity{}, err
	}
	id.Family = s.family
	id.Transport = s.binding.Kind()
	return id, nil
}

// Ping sends the family's liveness probe. It never fails: a closed session
// or any I/O problem yields false. A failed cycle is redone once.
func (s *Session) Ping() bool {
	if s.closed {
		return false
	}
	start := time.Now()
	err := s.pingOnce()
	if err != nil {
		s.log.Debug("[%s] ping retry after: %v", s.id, err)
		s.metrics.ObserveRetry("ping")
		err = s.pingOnce()
	}
	s.observe(metrics.OperationPing, start, err)
	return err == nil
}

func (s *Session) pingOnce() error {
	if _, err := s.Write(s.family.PingFrame(), WriteOptions{NoChecksum: true}); err != nil {
		return err
	}
	_, err := s.Read(s.family.PingResponseLen(), ReadOptions{})
	return err
}

// Reset sends the family's reset command and expects its 4-byte
// confirmation.
func (s *Session) Reset() error {
	const op = "reset"
	if err := s.checkOpen(op); err != nil {
		return err
	}
	start := time.Now()
	err := s.reset()
	s.observe(metrics.OperationReset, start, err)
	return err
}

func (s *Session) reset() error {
	const op = "reset"
	if _, err := s.Write(s.family.ResetFrame(), WriteOptions{NoChecksum: true}); err != nil {
		return ljerrors.New(ljerrors.ResetFailed, op, err)
	}
	resp, err := s.Read(s.family.ResetResponseLen(), ReadOptions{})
	if err != nil {
		return ljerrors.New(ljerrors.ResetFailed, op, err)
	}
	if len(resp) != s.family.ResetResponseLen() {
		return ljerrors.Newf(ljerrors.ResetFailed, op, "confirmation is %d bytes, want %d", len(resp), s.family.ResetResponseLen())
	}
	return nil
}

// ReadRegister reads the value at addr. A count of 0 takes the span from the
// register map.
func (s *Session) ReadRegister(addr uint16, count int, format modbus.Format) (float64, error) {
	const op = "read register"
	if err := s.checkRegisters(op); err != nil {
		return 0, err
	}
	if count <= 0 {
		count = modbus.RegisterCountFor(addr)
	}
	start := time.Now()
	var value float64
	err := s.registerCycle(op, modbus.EncodeReadRequest(addr, count), modbus.ReadResponseLen(count), func(resp []byte) error {
		v, err := modbus.DecodeReadResponse(resp, addr, format)
		value = v
		return err
	})
	s.observe(metrics.OperationReadRegister, start, err)
	return value, err
}

// WriteRegister writes value at addr in the register map's format. float32
// registers go out as a float write, uint32 and int32 registers as a
// two-word write, and single registers directly with the device echo
// checked. Values the format cannot hold exactly are rejected before
// anything is sent.
func (s *Session) WriteRegister(addr uint16, value float64) error {
	const op = "write register"
	format := modbus.FormatFor(addr)
	if format == modbus.FormatFloat32 {
		return s.WriteFloatRegister(addr, float32(value))
	}
	if err := checkIntegral(op, addr, value, format); err != nil {
		return err
	}
	if modbus.RegisterCountFor(addr) > 1 {
		return s.WriteRegisters(addr, modbus.ValueToRegisters(value, format))
	}
	if err := s.checkRegisters(op); err != nil {
		return err
	}
	word := uint16(value)
	start := time.Now()
	err := s.registerCycle(op, modbus.EncodeWriteRequest(addr, word), modbus.WriteResponseLen, func(resp []byte) error {
		want := modbus.WriteSingleRegisterRequest(addr, word)
		return checkWriteEcho(op, resp, modbus.FcWriteSingleRegister, want)
	})
	s.observe(metrics.OperationWriteRegister, start, err)
	return err
}

// checkIntegral rejects values an integer register format would truncate or
// wrap.
func checkIntegral(op string, addr uint16, value float64, format modbus.Format) error {
	lo, hi := 0.0, float64(math.MaxUint16)
	switch format {
	case modbus.FormatUint32:
		hi = math.MaxUint32
	case modbus.FormatInt32:
		lo, hi = math.MinInt32, math.MaxInt32
	}
	if value != math.Trunc(value) || value < lo || value > hi {
		return ljerrors.Newf(ljerrors.InvalidValue, op, "register %d holds a %s, got %g", addr, format, value)
	}
	return nil
}

// WriteRegisters writes consecutive register words starting at addr.
func (s *Session) WriteRegisters(addr uint16, values []uint16) error {
	const op = "write registers"
	if err := s.checkRegisters(op); err != nil {
		return err
	}
	start := time.Now()
	err := s.registerCycle(op, modbus.EncodeWriteMultipleRequest(addr, values), modbus.WriteResponseLen, func(resp []byte) error {
		return checkWriteEcho(op, resp, modbus.FcWriteMultipleRegisters, modbus.ReadHoldingRegistersRequest(addr, uint16(len(values))))
	})
	s.observe(metrics.OperationWriteRegister, start, err)
	return err
}

// WriteFloatRegister writes a float32 across the two registers at addr.
func (s *Session) WriteFloatRegister(addr uint16, value float32) error {
	const op = "write float register"
	if err := s.checkRegisters(op); err != nil {
		return err
	}
	if math.IsNaN(float64(value)) {
		s.log.Verbose("[%s] writing NaN to register %d", s.id, addr)
	}
	start := time.Now()
	err := s.registerCycle(op, modbus.EncodeWriteFloatRequest(addr, value), modbus.WriteResponseLen, func(resp []byte) error {
		return checkWriteEcho(op, resp, modbus.FcWriteMultipleRegisters, modbus.ReadHoldingRegistersRequest(addr, 2))
	})
	s.observe(metrics.OperationWriteRegister, start, err)
	return err
}

// SetDigitalState drives digital line high or low.
func (s *Session) SetDigitalState(line int, state bool) error {
	if line < 0 || line >= 1000 {
		return ljerrors.Newf(ljerrors.InvalidAddress, "set digital state", "line %d out of range", line)
	}
	v := 0.0
	if state {
		v = 1
	}
	return s.WriteRegister(uint16(DigitalStateBase+line), v)
}

func (s *Session) checkRegisters(op string) error {
	if err := s.checkOpen(op); err != nil {
		return err
	}
	if s.binding.Kind() == transport.KindUSB && !s.family.USBRegisterAccess() {
		return ljerrors.Newf(ljerrors.UnsupportedOnTransport, op, "%s has no register access over USB", s.family)
	}
	return nil
}

// registerCycle writes req to the register channel, reads respLen bytes and
// hands the response to decode. A cycle that fails with a retryable
// disposition is redone exactly once; if that fails too, the first error is
// returned.
func (s *Session) registerCycle(op string, req []byte, respLen int, decode func([]byte) error) error {
	first := s.registerOnce(req, respLen, decode)
	if first == nil || transport.Classify(first) != transport.RetryOnce {
		return transport.Original(first)
	}
	s.log.Verbose("[%s] %s retry after: %v", s.id, op, first)
	s.metrics.ObserveRetry(op)
	if err := s.registerOnce(req, respLen, decode); err != nil {
		s.log.Debug("[%s] %s retry failed: %v", s.id, op, err)
		return transport.Original(first)
	}
	return nil
}

func (s *Session) registerOnce(req []byte, respLen int, decode func([]byte) error) error {
	if _, err := s.Write(req, WriteOptions{Register: true}); err != nil {
		return err
	}
	resp, err := s.Read(respLen, ReadOptions{Register: true})
	if err != nil {
		return err
	}
	if frame.HasBadChecksumSentinel(resp) {
		return ljerrors.New(ljerrors.DeviceReportedBadChecksum, "register response", nil)
	}
	return decode(resp)
}

// checkWriteEcho verifies that a write response repeats the request's
// function code and its first four data bytes.
func checkWriteEcho(op string, data []byte, fc modbus.FunctionCode, want []byte) error {
	resp, err := modbus.DecodeResponseTCP(data)
	if err != nil {
		return ljerrors.New(ljerrors.ShortRead, op, err)
	}
	if err := modbus.CheckException(resp); err != nil {
		return err
	}
	if resp.Function != fc || len(resp.Data) < 4 || string(resp.Data[:4]) != string(want[:4]) {
		return ljerrors.Newf(ljerrors.RegisterWriteRejected, op, "response % X does not echo request", resp.Data)
	}
	return nil
}

func (s *Session) observe(opType metrics.OperationType, start time.Time, err error) {
	rtt := time.Since(start)
	s.log.LogOperation(string(opType), s.target(), err == nil, rtt, err)
	s.metrics.ObserveOperation(string(opType), rtt, err)
}

// Close releases the binding and forgets the identity. Closing twice is a
// no-op.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.identity = Identity{}
	if err := s.binding.Close(); err != nil {
		return fmt.Errorf("close session %s: %w", s.id, err)
	}
	s.log.Debug("[%s] session closed", s.id)
	return nil
}
