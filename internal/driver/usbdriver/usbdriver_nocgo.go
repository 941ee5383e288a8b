//go:build !cgo

package usbdriver

import (
	"github.com/genba/labjackgo/internal/driver"
	ljerrors "github.com/genba/labjackgo/internal/errors"
)

var _ driver.Loader = Load

// Load reports the driver as unavailable: libusb needs cgo.
func Load() (driver.Driver, error) {
	return nil, ljerrors.Newf(ljerrors.DriverUnavailable, "load usb", "built without cgo; USB transport disabled")
}
