package ports

import (
	"context"
)

// SoundMeter defines how to query a sound-level meter
// This is a PORT - adapters (USB, Mock) will implement it
type SoundMeter interface {
	// Query returns the raw control-transfer response. It returns an error
	// wrapping domain.ErrDeviceNotFound when no meter is attached and
	// domain.ErrDeviceIO when the transfer fails.
	Query(ctx context.Context) ([]byte, error)

	// Close releases any resources
	Close() error
}
