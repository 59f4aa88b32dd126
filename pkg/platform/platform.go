// Package platform defines the boundary between the input engine and the host
// that owns cameras and microphones. Implementations live under
// pkg/providers; the engine only sees acquirers, streams and named errors.
package platform

import (
	"context"
	"fmt"
	"strings"
)

// Capability is the result of probing the host for a media feature. It is
// injected at construction time so pipelines never inspect the host at runtime.
type Capability int

const (
	CapabilitySupported Capability = iota
	CapabilityUnsupported
	CapabilityInsecure
)

func (c Capability) String() string {
	switch c {
	case CapabilitySupported:
		return "supported"
	case CapabilityUnsupported:
		return "unsupported"
	case CapabilityInsecure:
		return "insecure"
	default:
		return "unknown"
	}
}

// ParseCapability maps a configuration value to a Capability.
func ParseCapability(v string) (Capability, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "supported":
		return CapabilitySupported, nil
	case "unsupported":
		return CapabilityUnsupported, nil
	case "insecure":
		return CapabilityInsecure, nil
	}
	return CapabilitySupported, fmt.Errorf("unknown capability %q", v)
}

// Error is a named failure reported by the host, mirroring the name/message
// pair of media exceptions (for example "NotAllowedError" or "no-speech").
type Error struct {
	Name    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return e.Name + ": " + e.Message
}

// NewError builds a named platform error.
func NewError(name, message string) error {
	return &Error{Name: name, Message: message}
}

// Unsubscribe stops sample delivery for one subscription. Calling it more
// than once is safe.
type Unsubscribe func()

// Stream is an acquired hardware resource producing samples of type S.
//
// onSample is invoked once per sample, in arrival order. onDone is invoked at
// most once when the stream ends by itself: nil for a normal end, non-nil for a
// failure. Neither callback fires after Unsubscribe returns.
type Stream[S any] interface {
	Subscribe(onSample func(S), onDone func(error)) Unsubscribe
	// Release frees the underlying device. It must be idempotent.
	Release() error
}

// Acquirer requests a hardware resource from the host. Acquire may block
// until the host grants or refuses access; it should honour ctx cancellation.
type Acquirer[S any] interface {
	Acquire(ctx context.Context) (Stream[S], error)
}

// AcquirerFunc adapts a function to the Acquirer interface.
type AcquirerFunc[S any] func(ctx context.Context) (Stream[S], error)

func (f AcquirerFunc[S]) Acquire(ctx context.Context) (Stream[S], error) { return f(ctx) }

// VideoConstraints describes the capture parameters requested from a camera.
type VideoConstraints struct {
	IdealWidth  int
	IdealHeight int
	MaxWidth    int
	MaxHeight   int
	FacingMode  string
}

// DefaultVideoConstraints returns the parameters used for hand tracking.
func DefaultVideoConstraints() VideoConstraints {
	return VideoConstraints{
		IdealWidth:  640,
		IdealHeight: 480,
		MaxWidth:    1280,
		MaxHeight:   720,
		FacingMode:  "user",
	}
}
