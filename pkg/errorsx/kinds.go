package errorsx

// Kind is a short machine-readable failure category for media acquisition.
type Kind string

const (
	KindPermissionDenied        Kind = "permission_denied"
	KindDeviceNotFound          Kind = "device_not_found"
	KindDeviceBusy              Kind = "device_busy"
	KindConstraintUnsatisfiable Kind = "constraint_unsatisfiable"
	KindInsecureContext         Kind = "insecure_context"
	KindUnsupported             Kind = "unsupported"
	KindTimeout                 Kind = "timeout"
	KindNoSignal                Kind = "no_signal"
	KindUnknown                 Kind = "unknown"
)

// Recoverable reports whether the failure invites an immediate retry. Only a
// missing signal does; every other kind needs the user to change something.
func (k Kind) Recoverable() bool {
	return k == KindNoSignal
}

func (k Kind) String() string { return string(k) }
