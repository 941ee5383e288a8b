//go:build cgo

// Package usbdriver binds the driver interfaces to libusb through gousb. It
// is the only package that links libusb; only the CLI imports it, so library
// users on the network transports never need the native library.
package usbdriver

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"

	"github.com/genba/labjackgo/internal/driver"
	ljerrors "github.com/genba/labjackgo/internal/errors"
)

var (
	_ driver.Loader = Load
	_ driver.Driver = (*usbDriver)(nil)
	_ driver.Handle = (*usbHandle)(nil)
)

// Load loads the libusb-backed driver. libusb initialisation panics are
// reported as errors so a broken library never takes the process down.
func Load() (drv driver.Driver, err error) {
	defer func() {
		if r := recover(); r != nil {
			drv = nil
			err = fmt.Errorf("libusb init: %v", r)
		}
	}()
	return &usbDriver{ctx: gousb.NewContext()}, nil
}

type usbDriver struct {
	ctx *gousb.Context
}

func matches(desc *gousb.DeviceDesc, product int) bool {
	return desc.Vendor == gousb.ID(driver.VendorID) && desc.Product == gousb.ID(product)
}

func (d *usbDriver) DeviceCount(product int) (int, error) {
	count := 0
	devs, err := d.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if matches(desc, product) {
			count++
		}
		return false
	})
	for _, dev := range devs {
		dev.Close()
	}
	if err != nil {
		return count, fmt.Errorf("enumerate USB devices: %w", err)
	}
	return count, nil
}

func (d *usbDriver) Open(product, index int) (driver.Handle, error) {
	seen := 0
	devs, err := d.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if !matches(desc, product) {
			return false
		}
		pick := seen == index
		seen++
		return pick
	})
	if len(devs) == 0 {
		if err != nil {
			return nil, fmt.Errorf("open USB device: %w", err)
		}
		return nil, ljerrors.Newf(ljerrors.DeviceNotFound, "open USB device", "no device at index %d", index)
	}
	dev := devs[0]
	for _, extra := range devs[1:] {
		extra.Close()
	}

	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		return nil, fmt.Errorf("set auto detach: %w", err)
	}
	intf, done, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("claim interface: %w", err)
	}
	return &usbHandle{
		dev:  dev,
		intf: intf,
		done: done,
		out:  make(map[int]*gousb.OutEndpoint),
		in:   make(map[int]*gousb.InEndpoint),
	}, nil
}

func (d *usbDriver) Close() error {
	return d.ctx.Close()
}

type usbHandle struct {
	mu   sync.Mutex
	dev  *gousb.Device
	intf *gousb.Interface
	done func()
	out  map[int]*gousb.OutEndpoint
	in   map[int]*gousb.InEndpoint
}

func (h *usbHandle) outEndpoint(num int) (*gousb.OutEndpoint, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ep, ok := h.out[num]; ok {
		return ep, nil
	}
	ep, err := h.intf.OutEndpoint(num)
	if err != nil {
		return nil, err
	}
	h.out[num] = ep
	return ep, nil
}

func (h *usbHandle) inEndpoint(num int) (*gousb.InEndpoint, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ep, ok := h.in[num]; ok {
		return ep, nil
	}
	ep, err := h.intf.InEndpoint(num)
	if err != nil {
		return nil, err
	}
	h.in[num] = ep
	return ep, nil
}

func (h *usbHandle) BulkWrite(endpoint int, p []byte) (int, error) {
	ep, err := h.outEndpoint(endpoint)
	if err != nil {
		return 0, fmt.Errorf("out endpoint %d: %w", endpoint, err)
	}
	n, err := ep.Write(p)
	return n, mapUSBError(err)
}

func (h *usbHandle) BulkRead(endpoint int, buf []byte, timeout time.Duration) (int, error) {
	ep, err := h.inEndpoint(endpoint)
	if err != nil {
		return 0, fmt.Errorf("in endpoint %d: %w", endpoint, err)
	}
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	n, err := ep.ReadContext(ctx, buf)
	return n, mapUSBError(err)
}

func (h *usbHandle) Close() error {
	h.done()
	return h.dev.Close()
}

func mapUSBError(err error) error {
	if err == nil {
		return nil
	}
	var status gousb.TransferStatus
	if stderrors.As(err, &status) {
		switch status {
		case gousb.TransferTimedOut, gousb.TransferCancelled:
			return ljerrors.New(ljerrors.Timeout, "usb transfer", err)
		case gousb.TransferNoDevice:
			return ljerrors.New(ljerrors.ConnectionReset, "usb transfer", err)
		}
	}
	var usbErr gousb.Error
	if stderrors.As(err, &usbErr) {
		switch usbErr {
		case gousb.ErrorTimeout:
			return ljerrors.New(ljerrors.Timeout, "usb transfer", err)
		case gousb.ErrorNoDevice, gousb.ErrorPipe:
			return ljerrors.New(ljerrors.ConnectionReset, "usb transfer", err)
		}
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return ljerrors.New(ljerrors.Timeout, "usb transfer", err)
	}
	return err
}
