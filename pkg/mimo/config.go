package mimo

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/harunnryd/mimo/pkg/platform"
)

type Config struct {
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
	Gesture       GestureConfig       `mapstructure:"gesture"`
	Speech        SpeechConfig        `mapstructure:"speech"`
	Journal       JournalConfig       `mapstructure:"journal"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
}

type ProviderConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type GestureConfig struct {
	ProviderConfig   `mapstructure:",squash"`
	AcquireTimeoutMS int     `mapstructure:"acquire_timeout_ms"`
	DemoClearMS      int     `mapstructure:"demo_clear_ms"`
	TouchTolerance   float64 `mapstructure:"touch_tolerance"`
	Capability       string  `mapstructure:"capability"`
}

type SpeechConfig struct {
	ProviderConfig   `mapstructure:",squash"`
	AcquireTimeoutMS int    `mapstructure:"acquire_timeout_ms"`
	Language         string `mapstructure:"language"`
	Interim          bool   `mapstructure:"interim"`
	Capability       string `mapstructure:"capability"`
}

type JournalConfig struct {
	Dir      string `mapstructure:"dir"`
	InMemory bool   `mapstructure:"in_memory"`
}

type ObservabilityConfig struct {
	MetricsJSONL           string  `mapstructure:"metrics_jsonl"`
	FrameSampleRate        float64 `mapstructure:"frame_sample_rate"`
	TimelineDir            string  `mapstructure:"timeline_dir"`
	TimelineRetentionHours int     `mapstructure:"timeline_retention_hours"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

func (c GestureConfig) AcquireTimeout() time.Duration {
	return time.Duration(c.AcquireTimeoutMS) * time.Millisecond
}

func (c GestureConfig) DemoClear() time.Duration {
	return time.Duration(c.DemoClearMS) * time.Millisecond
}

func (c SpeechConfig) AcquireTimeout() time.Duration {
	return time.Duration(c.AcquireTimeoutMS) * time.Millisecond
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("gesture.provider", "mock")
	v.SetDefault("gesture.acquire_timeout_ms", 5000)
	v.SetDefault("gesture.demo_clear_ms", 2000)
	v.SetDefault("gesture.touch_tolerance", 0.05)
	v.SetDefault("gesture.capability", "supported")
	v.SetDefault("speech.provider", "mock")
	v.SetDefault("speech.acquire_timeout_ms", 5000)
	v.SetDefault("speech.language", "fr-FR")
	v.SetDefault("speech.interim", true)
	v.SetDefault("speech.capability", "supported")
	v.SetDefault("journal.dir", "")
	v.SetDefault("journal.in_memory", false)
	v.SetDefault("observability.metrics_jsonl", "")
	v.SetDefault("observability.frame_sample_rate", 0.1)
	v.SetDefault("observability.timeline_dir", "")
	v.SetDefault("observability.timeline_retention_hours", 0)
	v.SetDefault("privacy.redact_pii", true)
}

// DefaultConfig is the configuration used when no file is given: mock
// devices, in-memory journal, no artifacts on disk.
func DefaultConfig() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

// LoadConfig reads a YAML, JSON or TOML file over the defaults. String values,
// provider settings included, may reference environment variables.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Gesture.Provider) == "" {
		return fmt.Errorf("gesture.provider is required")
	}
	if strings.TrimSpace(c.Speech.Provider) == "" {
		return fmt.Errorf("speech.provider is required")
	}
	if _, err := platform.ParseCapability(c.Gesture.Capability); err != nil {
		return fmt.Errorf("gesture.capability: %w", err)
	}
	if _, err := platform.ParseCapability(c.Speech.Capability); err != nil {
		return fmt.Errorf("speech.capability: %w", err)
	}
	if c.Gesture.AcquireTimeoutMS <= 0 {
		return fmt.Errorf("gesture.acquire_timeout_ms must be positive")
	}
	if c.Speech.AcquireTimeoutMS <= 0 {
		return fmt.Errorf("speech.acquire_timeout_ms must be positive")
	}
	if c.Gesture.DemoClearMS <= 0 {
		return fmt.Errorf("gesture.demo_clear_ms must be positive")
	}
	if c.Gesture.TouchTolerance <= 0 || c.Gesture.TouchTolerance >= 1 {
		return fmt.Errorf("gesture.touch_tolerance must be in (0,1)")
	}
	if r := c.Observability.FrameSampleRate; r < 0 || r > 1 {
		return fmt.Errorf("observability.frame_sample_rate must be in [0,1]")
	}
	if c.Observability.TimelineRetentionHours < 0 {
		return fmt.Errorf("observability.timeline_retention_hours must not be negative")
	}
	return nil
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Gesture.Settings = expandSettings(cfg.Gesture.Settings)
	cfg.Speech.Settings = expandSettings(cfg.Speech.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	}
}
