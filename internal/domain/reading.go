package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TopicPrefix is the MQTT topic namespace readings are published under.
const TopicPrefix = "dogbark/reading"

// TimestampLayout renders capture time as a local datetime with microseconds.
const TimestampLayout = "2006-01-02 15:04:05.000000"

// Reading represents a single sound-level measurement.
// It is built only from a successful device query.
type Reading struct {
	ID        int64
	DeviceID  string
	Timestamp time.Time
	Decibels  float64
}

// Payload is the JSON document published for a reading.
type Payload struct {
	DeviceID  string `json:"device_id"`
	Timestamp string `json:"timestamp"`
	Decibels  string `json:"decibels"`
}

// DecibelsFromResponse converts the meter's control-transfer response into a
// sound-pressure level. Only the first two bytes are significant: the low
// byte and the two low bits of the high byte form a 10-bit count of 0.1 dB
// steps above 30 dB.
func DecibelsFromResponse(resp []byte) (float64, error) {
	if len(resp) < 2 {
		return 0, fmt.Errorf("%w: got %d response bytes, need 2", ErrShortResponse, len(resp))
	}
	return Decibels(resp[0], resp[1]), nil
}

// Decibels applies the meter's linear transform to its two raw bytes.
func Decibels(b0, b1 byte) float64 {
	return float64(int(b0)+int(b1&3)*256)*0.1 + 30
}

// NewReading creates a reading captured now.
func NewReading(deviceID string, decibels float64) *Reading {
	return &Reading{
		DeviceID:  deviceID,
		Timestamp: time.Now(),
		Decibels:  decibels,
	}
}

// Topic returns the topic a device's readings are published to.
func Topic(deviceID string) string {
	return TopicPrefix + "/" + deviceID
}

// Topic returns the topic this reading is published to.
func (r *Reading) Topic() string {
	return Topic(r.DeviceID)
}

// Payload returns the wire representation of the reading.
func (r *Reading) Payload() Payload {
	return Payload{
		DeviceID:  r.DeviceID,
		Timestamp: r.Timestamp.Local().Format(TimestampLayout),
		Decibels:  FormatDecibels(r.Decibels),
	}
}

// MarshalPayload serializes the reading's payload as JSON.
func (r *Reading) MarshalPayload() ([]byte, error) {
	b, err := json.Marshal(r.Payload())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialize, err)
	}
	return b, nil
}

// FormatDecibels renders a level as the shortest decimal that round-trips,
// always with a fractional part ("30.0", not "30").
func FormatDecibels(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
