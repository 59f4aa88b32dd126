package mimo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mimo.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "log_level: debug\n"))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != "text" {
		t.Fatalf("unexpected log config %q %q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.Gesture.Provider != "mock" || cfg.Speech.Provider != "mock" {
		t.Fatalf("expected mock providers")
	}
	if cfg.Gesture.AcquireTimeoutMS != 5000 || cfg.Gesture.DemoClearMS != 2000 || cfg.Gesture.TouchTolerance != 0.05 {
		t.Fatalf("unexpected gesture defaults %+v", cfg.Gesture)
	}
	if cfg.Speech.Language != "fr-FR" || !cfg.Speech.Interim {
		t.Fatalf("unexpected speech defaults %+v", cfg.Speech)
	}
	if !cfg.Privacy.RedactPII || cfg.Observability.FrameSampleRate != 0.1 {
		t.Fatalf("unexpected privacy/observability defaults")
	}
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	t.Setenv("MIMO_TEST_DG_KEY", "secret-key")
	t.Setenv("MIMO_TEST_JOURNAL", "/var/lib/mimo")
	cfg, err := LoadConfig(writeConfig(t, strings.Join([]string{
		"speech:",
		"  provider: deepgram",
		"  settings:",
		"    api_key: ${MIMO_TEST_DG_KEY}",
		"journal:",
		"  dir: ${MIMO_TEST_JOURNAL}",
	}, "\n")))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Speech.Settings["api_key"] != "secret-key" {
		t.Fatalf("expected expanded api key, got %v", cfg.Speech.Settings["api_key"])
	}
	if cfg.Journal.Dir != "/var/lib/mimo" {
		t.Fatalf("expected expanded journal dir, got %q", cfg.Journal.Dir)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"capability":  func(c *Config) { c.Gesture.Capability = "maybe" },
		"provider":    func(c *Config) { c.Speech.Provider = " " },
		"timeout":     func(c *Config) { c.Speech.AcquireTimeoutMS = 0 },
		"tolerance":   func(c *Config) { c.Gesture.TouchTolerance = 0 },
		"sample_rate": func(c *Config) { c.Observability.FrameSampleRate = 1.5 },
		"retention":   func(c *Config) { c.Observability.TimelineRetentionHours = -1 },
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestRecognitionLanguage(t *testing.T) {
	cases := map[string]string{"fr-FR": "fr", "en-US": "en", "fr": "fr", "": ""}
	for in, want := range cases {
		if got := recognitionLanguage(in); got != want {
			t.Fatalf("recognitionLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}
