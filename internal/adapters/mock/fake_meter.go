package mock

import (
	"context"
	"math/rand"

	"github.com/laurarmit/DogBarkProject/internal/domain"
)

// FakeMeter simulates a USB sound-level meter for development.
// It implements ports.SoundMeter and answers with the same two-byte
// encoding the real device uses.
type FakeMeter struct {
	baseValue float64
	variation float64
	absent    bool
}

// NewFakeMeter creates a meter that reports levels around baseValue dB.
// variation is the +/- range (e.g., 10 means base-10 to base+10).
func NewFakeMeter(baseValue, variation float64) *FakeMeter {
	return &FakeMeter{
		baseValue: baseValue,
		variation: variation,
	}
}

// NewAbsentMeter creates a meter that is never found.
func NewAbsentMeter() *FakeMeter {
	return &FakeMeter{absent: true}
}

// Query returns a simulated control-transfer response
func (m *FakeMeter) Query(ctx context.Context) ([]byte, error) {
	if m.absent {
		return nil, domain.ErrDeviceNotFound
	}

	variance := (rand.Float64() - 0.5) * 2 * m.variation
	return Encode(m.baseValue + variance), nil
}

// Encode converts a level in dB into the meter's raw response bytes,
// clamped to the 30.0-132.3 dB range the encoding can represent.
func Encode(db float64) []byte {
	steps := int((db-30)*10 + 0.5)
	if steps < 0 {
		steps = 0
	}
	if steps > 0x3FF {
		steps = 0x3FF
	}
	return []byte{byte(steps & 0xFF), byte(steps >> 8)}
}

// Close is a no-op for fake meter
func (m *FakeMeter) Close() error {
	return nil
}
