// Package usb reads the USB sound-level meter through libusb.
package usb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"

	"github.com/laurarmit/DogBarkProject/internal/domain"
)

const (
	VendorID  gousb.ID = 0x16c0
	ProductID gousb.ID = 0x05dc

	requestType    = 0xC0 // device-to-host, vendor, device
	requestRead    = 4
	responseSize   = 200
	controlTimeout = 2 * time.Second
)

// controller is the part of *gousb.Device the meter uses.
type controller interface {
	Control(rType, request uint8, val, idx uint16, data []byte) (int, error)
	Close() error
}

// opener returns the matching device, or nil when none is attached.
type opener func(vid, pid gousb.ID) (controller, error)

// Meter implements ports.SoundMeter. The device is located afresh on every
// query so unplugging and replugging the meter needs no restart.
type Meter struct {
	open    opener
	closeFn func() error
}

// NewMeter opens a libusb context for the meter.
func NewMeter() *Meter {
	usbCtx := gousb.NewContext()
	return &Meter{
		open: func(vid, pid gousb.ID) (controller, error) {
			dev, err := usbCtx.OpenDeviceWithVIDPID(vid, pid)
			if err != nil {
				return nil, err
			}
			if dev == nil {
				return nil, nil
			}
			dev.ControlTimeout = controlTimeout
			return dev, nil
		},
		closeFn: usbCtx.Close,
	}
}

// Query performs the meter's read request and returns the raw response.
func (m *Meter) Query(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDeviceIO, err)
	}

	dev, err := m.open(VendorID, ProductID)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s:%s: %v", domain.ErrDeviceIO, VendorID, ProductID, err)
	}
	if dev == nil {
		return nil, fmt.Errorf("%w: no device %s:%s", domain.ErrDeviceNotFound, VendorID, ProductID)
	}
	defer dev.Close()

	buf := make([]byte, responseSize)
	n, err := dev.Control(requestType, requestRead, 0, 0, buf)
	if err != nil {
		return nil, fmt.Errorf("%w: control transfer: %v", domain.ErrDeviceIO, err)
	}
	return buf[:n], nil
}

// Close releases the libusb context.
func (m *Meter) Close() error {
	if m.closeFn == nil {
		return nil
	}
	return m.closeFn()
}
