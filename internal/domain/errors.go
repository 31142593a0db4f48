package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotFound indicates no sound-level meter is attached
	ErrDeviceNotFound = errors.New("sound level meter not found")

	// ErrDeviceIO indicates the meter was found but could not be queried
	ErrDeviceIO = errors.New("sound level meter i/o error")

	// ErrShortResponse indicates the meter answered with fewer than two bytes
	ErrShortResponse = fmt.Errorf("%w: short response", ErrDeviceIO)

	// ErrSerialize indicates the payload could not be encoded
	ErrSerialize = errors.New("payload serialization failed")

	// ErrPublish indicates the broker did not accept the message
	ErrPublish = errors.New("publish failed")

	// ErrReadingNotFound indicates requested reading doesn't exist
	ErrReadingNotFound = errors.New("reading not found")
)

// FailureKind names the stage of a poll cycle that failed.
type FailureKind string

const (
	KindDeviceNotFound FailureKind = "device_not_found"
	KindDeviceIO       FailureKind = "device_io"
	KindSerialize      FailureKind = "serialize"
	KindPublish        FailureKind = "publish"
)

// sentinel returns the package error matching a kind.
func (k FailureKind) sentinel() error {
	switch k {
	case KindDeviceNotFound:
		return ErrDeviceNotFound
	case KindDeviceIO:
		return ErrDeviceIO
	case KindSerialize:
		return ErrSerialize
	case KindPublish:
		return ErrPublish
	}
	return nil
}

// CycleError is the outcome of a failed poll cycle.
type CycleError struct {
	Kind FailureKind
	Err  error
}

// NewCycleError wraps err as a failure of the given kind.
func NewCycleError(kind FailureKind, err error) *CycleError {
	return &CycleError{Kind: kind, Err: err}
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *CycleError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this failure's kind, so
// errors.Is(err, ErrPublish) holds even when Err is a transport error.
func (e *CycleError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the failure kind carried by err, if any.
func KindOf(err error) (FailureKind, bool) {
	var ce *CycleError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}
