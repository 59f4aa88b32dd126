package errorsx

import (
	"context"
	"errors"
)

// KindedError wraps an error with a taxonomy kind.
type KindedError struct {
	Err  error
	Kind Kind
}

func (e KindedError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e KindedError) Unwrap() error {
	return e.Err
}

// Wrap attaches a kind to an error (no-op if err is nil or already classified).
func Wrap(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	var ke KindedError
	if errors.As(err, &ke) {
		return err
	}
	return KindedError{Err: err, Kind: kind}
}

// New returns a classified error carrying only a message.
func New(kind Kind, message string) error {
	return KindedError{Err: errors.New(message), Kind: kind}
}

// KindOf extracts the kind from an error, if present.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ke KindedError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// HasKind returns true if err carries the given kind.
func HasKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
