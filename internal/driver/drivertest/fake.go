// Package drivertest provides an in-memory driver for tests.
package drivertest

import (
	"fmt"
	"sync"
	"time"

	"github.com/genba/labjackgo/internal/driver"
	ljerrors "github.com/genba/labjackgo/internal/errors"
)

// Responder answers a frame written to a fake device. It returns the bytes
// that the next read on the command endpoint yields.
type Responder func(frame []byte) []byte

// Device is one fake attached device.
type Device struct {
	Product int
	// OpenErr makes Open fail for this device.
	OpenErr error
	// Respond answers command writes. Nil devices never answer, so reads time out.
	Respond Responder
}

// Driver is a fake driver.Driver. It records every open and close.
type Driver struct {
	mu      sync.Mutex
	Devices []*Device
	Handles []*Handle
	Closed  bool
}

var _ driver.Driver = (*Driver)(nil)

// Loader returns a loader that yields d.
func (d *Driver) Loader() driver.Loader {
	return func() (driver.Driver, error) { return d, nil }
}

func (d *Driver) matching(product int) []*Device {
	var out []*Device
	for _, dev := range d.Devices {
		if dev.Product == product {
			out = append(out, dev)
		}
	}
	return out
}

func (d *Driver) DeviceCount(product int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.matching(product)), nil
}

func (d *Driver) Open(product, index int) (driver.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	devs := d.matching(product)
	if index < 0 || index >= len(devs) {
		return nil, fmt.Errorf("no device at index %d", index)
	}
	dev := devs[index]
	if dev.OpenErr != nil {
		return nil, dev.OpenErr
	}
	h := &Handle{Index: index, dev: dev}
	d.Handles = append(d.Handles, h)
	return h, nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Closed = true
	return nil
}

// OpenHandles returns the handles that have not been closed.
func (d *Driver) OpenHandles() []*Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*Handle
	for _, h := range d.Handles {
		if !h.IsClosed() {
			out = append(out, h)
		}
	}
	return out
}

// Handle is a fake driver.Handle.
type Handle struct {
	Index int

	mu      sync.Mutex
	dev     *Device
	pending []byte
	Writes  [][]byte
	closed  bool
}

func (h *Handle) BulkWrite(endpoint int, p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, ljerrors.Newf(ljerrors.ConnectionReset, "bulk write", "handle closed")
	}
	frame := append([]byte(nil), p...)
	h.Writes = append(h.Writes, frame)
	if h.dev.Respond != nil {
		h.pending = h.dev.Respond(frame)
	}
	return len(p), nil
}

func (h *Handle) BulkRead(endpoint int, buf []byte, timeout time.Duration) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, ljerrors.Newf(ljerrors.ConnectionReset, "bulk read", "handle closed")
	}
	if h.pending == nil {
		return 0, ljerrors.Newf(ljerrors.Timeout, "bulk read", "no response")
	}
	n := copy(buf, h.pending)
	h.pending = nil
	return n, nil
}

func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (h *Handle) IsClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}
