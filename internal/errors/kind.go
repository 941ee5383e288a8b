package errors

// Kinded driver errors. Every failure the driver reports carries one Kind so
// callers can branch on it after any amount of %w wrapping.

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a driver failure.
type Kind int

const (
	KindUnknown Kind = iota
	FrameTooShort
	ShortWrite
	ShortRead
	Timeout
	ConnectionReset
	DeviceReportedBadChecksum
	EchoMismatch
	ChecksumMismatch
	DeviceError
	ResetFailed
	DeviceNotFound
	SessionClosed
	UnsupportedOnTransport
	DriverUnavailable
	ModbusException
	RegisterWriteRejected
	InvalidAddress
	InvalidValue
)

var kindNames = map[Kind]string{
	KindUnknown:               "unknown",
	FrameTooShort:             "frame too short",
	ShortWrite:                "short write",
	ShortRead:                 "short read",
	Timeout:                   "timeout",
	ConnectionReset:           "connection reset",
	DeviceReportedBadChecksum: "device reported bad checksum",
	EchoMismatch:              "echo mismatch",
	ChecksumMismatch:          "checksum mismatch",
	DeviceError:               "device error",
	ResetFailed:               "reset failed",
	DeviceNotFound:            "device not found",
	SessionClosed:             "session closed",
	UnsupportedOnTransport:    "unsupported on transport",
	DriverUnavailable:         "driver unavailable",
	ModbusException:           "modbus exception",
	RegisterWriteRejected:     "register write rejected",
	InvalidAddress:            "invalid address",
	InvalidValue:              "invalid value",
}

// String returns a short human-readable label for the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a driver failure with a kind, the operation that produced it and
// an optional device-supplied code (DeviceError, ModbusException).
type Error struct {
	Kind Kind
	Op   string
	Code byte
	Err  error
}

// New returns an *Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf returns an *Error of the given kind with a formatted cause.
func Newf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// WithCode returns an *Error carrying a device-supplied code.
func WithCode(kind Kind, op string, code byte) *Error {
	return &Error{Kind: kind, Op: op, Code: code}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Kind == DeviceError || e.Kind == ModbusException {
		msg = fmt.Sprintf("%s %d", msg, e.Code)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: Timeout})
// works regardless of Op, Code and cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// CodeOf returns the device-supplied code carried by err, if any.
func CodeOf(err error) (byte, bool) {
	var e *Error
	if stderrors.As(err, &e) && (e.Kind == DeviceError || e.Kind == ModbusException) {
		return e.Code, true
	}
	return 0, false
}
