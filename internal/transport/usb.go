package transport

import (
	"fmt"
	"time"

	"github.com/genba/labjackgo/internal/driver"
	ljerrors "github.com/genba/labjackgo/internal/errors"
)

// USB bulk endpoint numbers.
const (
	EndpointCommandOut = 1
	EndpointCommandIn  = 2
	EndpointStreamIn   = 4
)

// RegisterPad prefixes every register frame written over USB.
var RegisterPad = [2]byte{0x00, 0x00}

// USBOptions configures a USB binding.
type USBOptions struct {
	ReadTimeout time.Duration
	// RegisterAccess enables the register channel. Families whose firmware
	// does not accept Modbus over USB leave it unset.
	RegisterAccess bool
}

// USB is a binding over one opened USB device.
type USB struct {
	h      driver.Handle
	opts   USBOptions
	closed bool
}

var _ Binding = (*USB)(nil)

// NewUSB wraps an opened handle. The binding owns h and closes it.
func NewUSB(h driver.Handle, opts USBOptions) *USB {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultOptions().ReadTimeout
	}
	return &USB{h: h, opts: opts}
}

func (u *USB) Kind() Kind { return KindUSB }

func (u *USB) Write(ch Channel, p []byte) (int, error) {
	const op = "usb write"
	if u.closed {
		return 0, ljerrors.Newf(ljerrors.ConnectionReset, op, "binding closed")
	}
	out := p
	switch ch {
	case ChannelCommand:
	case ChannelRegister:
		if !u.opts.RegisterAccess {
			return 0, ljerrors.Newf(ljerrors.UnsupportedOnTransport, op, "register access over USB")
		}
		out = make([]byte, 0, len(RegisterPad)+len(p))
		out = append(out, RegisterPad[:]...)
		out = append(out, p...)
	default:
		return 0, ljerrors.Newf(ljerrors.UnsupportedOnTransport, op, "write on %s channel", ch)
	}

	n, err := u.h.BulkWrite(EndpointCommandOut, out)
	if err != nil {
		return 0, asKinded(ljerrors.ConnectionReset, op, err)
	}
	if n != len(out) {
		return 0, ljerrors.Newf(ljerrors.ShortWrite, op, "could only write %d of %d bytes", n, len(out))
	}
	return len(p), nil
}

func (u *USB) Read(ch Channel, n int) ([]byte, error) {
	const op = "usb read"
	if u.closed {
		return nil, ljerrors.Newf(ljerrors.ConnectionReset, op, "binding closed")
	}
	ep := EndpointCommandIn
	switch ch {
	case ChannelCommand:
	case ChannelStream:
		ep = EndpointStreamIn
	case ChannelRegister:
		if !u.opts.RegisterAccess {
			return nil, ljerrors.Newf(ljerrors.UnsupportedOnTransport, op, "register access over USB")
		}
	default:
		return nil, ljerrors.Newf(ljerrors.UnsupportedOnTransport, op, "read on %s channel", ch)
	}

	buf := make([]byte, n)
	got, err := u.h.BulkRead(ep, buf, u.opts.ReadTimeout)
	if err != nil {
		return nil, asKinded(ljerrors.ConnectionReset, op, err)
	}
	if got == 0 && n > 0 {
		return nil, ljerrors.Newf(ljerrors.ShortRead, op, "no data on endpoint %d", ep)
	}
	return buf[:got], nil
}

func (u *USB) Close() error {
	if u.closed {
		return nil
	}
	u.closed = true
	if err := u.h.Close(); err != nil {
		return fmt.Errorf("close usb handle: %w", err)
	}
	return nil
}

// asKinded keeps an existing kind and otherwise tags err with fallback.
func asKinded(fallback ljerrors.Kind, op string, err error) error {
	if ljerrors.KindOf(err) != ljerrors.KindUnknown {
		return err
	}
	return ljerrors.New(fallback, op, err)
}
