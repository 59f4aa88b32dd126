package errorsx

import (
	"errors"
	"strings"

	"github.com/harunnryd/mimo/pkg/events"
	"github.com/harunnryd/mimo/pkg/platform"
)

// Record is the error state attached to a pipeline when it enters Error.
type Record struct {
	Kind    Kind
	Message string
	Hint    string
}

func (r Record) Error() string {
	if r.Message == "" {
		return string(r.Kind)
	}
	return r.Message
}

// IsZero reports whether the record carries no error.
func (r Record) IsZero() bool { return r.Kind == "" }

var cameraNames = map[string]Kind{
	"NotAllowedError":       KindPermissionDenied,
	"PermissionDeniedError": KindPermissionDenied,
	"NotFoundError":         KindDeviceNotFound,
	"DevicesNotFoundError":  KindDeviceNotFound,
	"NotReadableError":      KindDeviceBusy,
	"TrackStartError":       KindDeviceBusy,
	"OverconstrainedError":  KindConstraintUnsatisfiable,
	"SecurityError":         KindInsecureContext,
	"TypeError":             KindUnsupported,
}

var speechCodes = map[string]Kind{
	"not-allowed":            KindPermissionDenied,
	"permission-denied":      KindPermissionDenied,
	"service-not-allowed":    KindPermissionDenied,
	"no-speech":              KindNoSignal,
	"audio-capture":          KindDeviceNotFound,
	"language-not-supported": KindConstraintUnsatisfiable,
	"bad-grammar":            KindConstraintUnsatisfiable,
}

// ClassifyPlatform maps a named platform failure to a kind for the given
// modality. Unknown names map to KindUnknown.
func ClassifyPlatform(m events.Modality, name string) Kind {
	var table map[string]Kind
	switch m {
	case events.ModalityGesture:
		table = cameraNames
	case events.ModalityVoice:
		table = speechCodes
		name = strings.ToLower(name)
	}
	if k, ok := table[name]; ok {
		return k
	}
	return KindUnknown
}

// Classify converts any acquisition or streaming failure into a Record.
func Classify(m events.Modality, err error) Record {
	if err == nil {
		return Record{}
	}
	var ke KindedError
	if errors.As(err, &ke) {
		return newRecord(m, ke.Kind, err.Error(), "")
	}
	var pe *platform.Error
	if errors.As(err, &pe) {
		kind := ClassifyPlatform(m, pe.Name)
		return newRecord(m, kind, pe.Message, pe.Name)
	}
	kind := KindOf(err)
	return newRecord(m, kind, err.Error(), "")
}

// FromCapability returns the record for a capability probe that rules out
// acquisition, or a zero Record when the capability is available.
func FromCapability(m events.Modality, c platform.Capability) Record {
	switch c {
	case platform.CapabilityUnsupported:
		return newRecord(m, KindUnsupported, "", "")
	case platform.CapabilityInsecure:
		return newRecord(m, KindInsecureContext, "", "")
	}
	return Record{}
}

func newRecord(m events.Modality, kind Kind, raw, name string) Record {
	return Record{
		Kind:    kind,
		Message: Message(m, kind, raw, name),
		Hint:    Hint(m, kind),
	}
}
