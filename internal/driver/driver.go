// Package driver wraps the native USB driver behind a small interface and a
// process-wide, lazily loaded, reference-counted context.
package driver

import (
	"fmt"
	"sync"
	"time"

	ljerrors "github.com/genba/labjackgo/internal/errors"
	"github.com/genba/labjackgo/internal/logging"
)

// VendorID is the USB vendor ID shared by every supported family.
const VendorID = 0x0CD5

// Driver enumerates and opens devices of one USB product.
type Driver interface {
	// DeviceCount returns how many devices with the product ID are attached.
	DeviceCount(product int) (int, error)
	// Open opens the device at the zero-based index among matching devices.
	Open(product, index int) (Handle, error)
	// Close unloads the driver.
	Close() error
}

// Handle is one opened device.
type Handle interface {
	BulkWrite(endpoint int, p []byte) (int, error)
	BulkRead(endpoint int, buf []byte, timeout time.Duration) (int, error)
	Close() error
}

// Loader loads the native driver.
type Loader func() (Driver, error)

// Context owns the single native driver instance for the process. The driver
// is loaded on first Acquire and unloaded when the last reference is
// released or on Shutdown. A failed load is remembered until Shutdown.
type Context struct {
	mu      sync.Mutex
	load    Loader
	drv     Driver
	refs    int
	loadErr error
	log     *logging.Logger
}

// NewContext creates a context that loads its driver with load.
func NewContext(load Loader, log *logging.Logger) *Context {
	return &Context{load: load, log: logging.OrNop(log)}
}

// Acquire returns the loaded driver and takes a reference on it. Every
// successful Acquire must be paired with Release.
func (c *Context) Acquire() (Driver, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loadErr != nil {
		return nil, c.loadErr
	}
	if c.drv == nil {
		if c.load == nil {
			c.loadErr = ljerrors.Newf(ljerrors.DriverUnavailable, "load driver", "no loader configured")
			return nil, c.loadErr
		}
		drv, err := c.load()
		if err != nil {
			c.loadErr = ljerrors.New(ljerrors.DriverUnavailable, "load driver", err)
			c.log.Info("USB driver unavailable: %v", err)
			return nil, c.loadErr
		}
		c.drv = drv
		c.log.Debug("USB driver loaded")
	}
	c.refs++
	return c.drv, nil
}

// Release drops one reference, unloading the driver when none remain.
func (c *Context) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refs == 0 {
		return
	}
	c.refs--
	if c.refs == 0 && c.drv != nil {
		if err := c.drv.Close(); err != nil {
			c.log.Error("unload USB driver: %v", err)
		}
		c.drv = nil
		c.log.Debug("USB driver unloaded")
	}
}

// Shutdown unloads the driver regardless of outstanding references and
// forgets any earlier load failure.
func (c *Context) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.drv != nil {
		err = c.drv.Close()
		c.drv = nil
	}
	c.refs = 0
	c.loadErr = nil
	return err
}

// Refs returns the current reference count.
func (c *Context) Refs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs
}

// Available reports whether the driver can be loaded. It loads the driver if
// necessary and releases the probe reference.
func (c *Context) Available() bool {
	if _, err := c.Acquire(); err != nil {
		return false
	}
	c.Release()
	return true
}

// DeviceCount counts attached devices of product.
func (c *Context) DeviceCount(product int) (int, error) {
	drv, err := c.Acquire()
	if err != nil {
		return 0, err
	}
	defer c.Release()
	return drv.DeviceCount(product)
}

// Open opens a device and returns a handle that holds a driver reference
// until it is closed.
func (c *Context) Open(product, index int) (Handle, error) {
	drv, err := c.Acquire()
	if err != nil {
		return nil, err
	}
	h, err := drv.Open(product, index)
	if err != nil {
		c.Release()
		return nil, fmt.Errorf("open product %d index %d: %w", product, index, err)
	}
	return &refHandle{Handle: h, release: c.Release}, nil
}

type refHandle struct {
	Handle
	once    sync.Once
	release func()
}

func (h *refHandle) Close() error {
	var err error
	h.once.Do(func() {
		err = h.Handle.Close()
		h.release()
	})
	return err
}
