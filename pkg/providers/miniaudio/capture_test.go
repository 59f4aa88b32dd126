package miniaudio

import (
	"errors"
	"testing"

	"github.com/harunnryd/mimo/pkg/errorsx"
)

func TestClassify(t *testing.T) {
	cases := map[string]errorsx.Kind{
		"init capture device: Access denied.":            errorsx.KindPermissionDenied,
		"init capture device: No device.":                errorsx.KindDeviceNotFound,
		"start capture device: Device or resource busy":  errorsx.KindDeviceBusy,
		"init capture device: Format not supported.":     errorsx.KindConstraintUnsatisfiable,
		"init audio context: Something else went wrong.": errorsx.KindUnknown,
	}
	for msg, want := range cases {
		if got := errorsx.KindOf(classify(errors.New(msg))); got != want {
			t.Fatalf("%q: expected %s, got %s", msg, want, got)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.SampleRate != 16000 || cfg.Channels != 1 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestCloseIdempotent(t *testing.T) {
	c := &Capture{}
	if err := c.Close(); err != nil {
		t.Fatalf("close error: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close error: %v", err)
	}
	c.deliver([]byte{1, 2})
}
