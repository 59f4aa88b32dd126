package mimo

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/harunnryd/mimo/pkg/configutil"
	"github.com/harunnryd/mimo/pkg/gesture"
	"github.com/harunnryd/mimo/pkg/platform"
	"github.com/harunnryd/mimo/pkg/providers/deepgram"
	"github.com/harunnryd/mimo/pkg/providers/landmarkws"
	"github.com/harunnryd/mimo/pkg/providers/mock"
	"github.com/harunnryd/mimo/pkg/speech"
)

type CameraFactory func(cfg Config, logger *slog.Logger) (platform.Acquirer[gesture.Frame], error)
type MicrophoneFactory func(cfg Config, logger *slog.Logger) (platform.Acquirer[speech.Fragment], error)

type ProviderRegistry struct {
	camera     map[string]CameraFactory
	microphone map[string]MicrophoneFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		camera:     make(map[string]CameraFactory),
		microphone: make(map[string]MicrophoneFactory),
	}
}

// DefaultProviders registers the bundled devices: "mock" for both
// modalities, "landmark_ws" for the camera and "deepgram" for speech.
func DefaultProviders() *ProviderRegistry {
	r := NewProviderRegistry()
	r.RegisterCamera("mock", buildMockCamera)
	r.RegisterCamera("landmark_ws", buildLandmarkCamera)
	r.RegisterMicrophone("mock", buildMockMicrophone)
	r.RegisterMicrophone("deepgram", buildDeepgramMicrophone)
	return r
}

func (r *ProviderRegistry) RegisterCamera(name string, factory CameraFactory) {
	r.camera[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (r *ProviderRegistry) RegisterMicrophone(name string, factory MicrophoneFactory) {
	r.microphone[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (r *ProviderRegistry) BuildCamera(cfg Config, logger *slog.Logger) (platform.Acquirer[gesture.Frame], error) {
	fn := r.camera[strings.ToLower(strings.TrimSpace(cfg.Gesture.Provider))]
	if fn == nil {
		return nil, fmt.Errorf("camera provider not registered: %s", cfg.Gesture.Provider)
	}
	return fn(cfg, logger)
}

func (r *ProviderRegistry) BuildMicrophone(cfg Config, logger *slog.Logger) (platform.Acquirer[speech.Fragment], error) {
	fn := r.microphone[strings.ToLower(strings.TrimSpace(cfg.Speech.Provider))]
	if fn == nil {
		return nil, fmt.Errorf("speech provider not registered: %s", cfg.Speech.Provider)
	}
	return fn(cfg, logger)
}

// mockSettings script a mock device. Fail names the platform error returned
// instead of a stream, or ending the stream when End is set.
type mockSettings struct {
	Script   []string      `mapstructure:"script"`
	Interval time.Duration `mapstructure:"interval"`
	Delay    time.Duration `mapstructure:"delay"`
	Block    bool          `mapstructure:"block"`
	End      bool          `mapstructure:"end"`
	Fail     string        `mapstructure:"fail"`
}

var mockSchema = configutil.Schema{
	Optional: []string{"script", "interval", "delay", "block", "end", "fail"},
}

func (s mockSettings) failure() error {
	if strings.TrimSpace(s.Fail) == "" {
		return nil
	}
	return platform.NewError(strings.TrimSpace(s.Fail), "")
}

func buildMockCamera(cfg Config, _ *slog.Logger) (platform.Acquirer[gesture.Frame], error) {
	var s mockSettings
	if err := configutil.Load("mock camera", cfg.Gesture.Settings, mockSchema, &s); err != nil {
		return nil, err
	}
	labels := make([]gesture.Label, 0, len(s.Script))
	for _, name := range s.Script {
		l, ok := gesture.ParseLabel(name)
		if !ok {
			return nil, fmt.Errorf("mock camera settings: unknown gesture %q", name)
		}
		labels = append(labels, l)
	}
	sc := mock.StreamConfig[gesture.Frame]{
		Delay:    s.Delay,
		Block:    s.Block,
		Samples:  mock.Frames(labels...),
		Interval: s.Interval,
		End:      s.End,
	}
	if s.End {
		sc.EndErr = s.failure()
	} else {
		sc.Err = s.failure()
	}
	return mock.NewAcquirer(sc), nil
}

// In the mock microphone, every script entry is one utterance.
func buildMockMicrophone(cfg Config, _ *slog.Logger) (platform.Acquirer[speech.Fragment], error) {
	var s mockSettings
	if err := configutil.Load("mock speech", cfg.Speech.Settings, mockSchema, &s); err != nil {
		return nil, err
	}
	var frags []speech.Fragment
	for i, phrase := range s.Script {
		frags = append(frags, mock.Utterance(i, phrase)...)
	}
	sc := mock.StreamConfig[speech.Fragment]{
		Delay:    s.Delay,
		Block:    s.Block,
		Samples:  frags,
		Interval: s.Interval,
		End:      s.End,
	}
	if s.End {
		sc.EndErr = s.failure()
	} else {
		sc.Err = s.failure()
	}
	return mock.NewAcquirer(sc), nil
}

var landmarkSchema = configutil.Schema{
	Optional: []string{"url", "dial_timeout", "require_secure", "dial_retries", "retry_backoff"},
}

func buildLandmarkCamera(cfg Config, logger *slog.Logger) (platform.Acquirer[gesture.Frame], error) {
	var lc landmarkws.Config
	if err := configutil.Load("landmark_ws", cfg.Gesture.Settings, landmarkSchema, &lc); err != nil {
		return nil, err
	}
	lc.Constraints = platform.DefaultVideoConstraints()
	return landmarkws.New(lc, logger), nil
}

var deepgramSchema = configutil.Schema{
	Optional: []string{"api_key", "model", "language", "encoding", "sample_rate", "interim", "vad_events", "utterance_end_ms"},
}

func buildDeepgramMicrophone(cfg Config, logger *slog.Logger) (platform.Acquirer[speech.Fragment], error) {
	dc := deepgram.Config{
		Language: recognitionLanguage(cfg.Speech.Language),
		Interim:  cfg.Speech.Interim,
	}
	if err := configutil.Load("deepgram", cfg.Speech.Settings, deepgramSchema, &dc); err != nil {
		return nil, err
	}
	return deepgram.New(dc, deepgram.DefaultMicrophone, logger), nil
}

// recognitionLanguage reduces a BCP 47 tag such as "fr-FR" to the base
// language the recogniser expects.
func recognitionLanguage(tag string) string {
	t, err := language.Parse(tag)
	if err != nil {
		return ""
	}
	base, _ := t.Base()
	return base.String()
}
