// Package deepgram recognises speech from the microphone with Deepgram live
// transcription.
package deepgram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/harunnryd/mimo/pkg/logging"
	"github.com/harunnryd/mimo/pkg/platform"
	"github.com/harunnryd/mimo/pkg/providers/miniaudio"
	"github.com/harunnryd/mimo/pkg/resilience"
	"github.com/harunnryd/mimo/pkg/speech"
)

type Config struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	Language       string `mapstructure:"language"`
	Encoding       string `mapstructure:"encoding"`
	SampleRate     int    `mapstructure:"sample_rate"`
	Interim        bool   `mapstructure:"interim"`
	VADEvents      bool   `mapstructure:"vad_events"`
	UtteranceEndMS int    `mapstructure:"utterance_end_ms"`
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "nova-2"
	}
	if c.Language == "" {
		c.Language = "fr"
	}
	if c.Encoding == "" {
		c.Encoding = "linear16"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	return c
}

// Microphone opens the capture device; it returns the resource to close.
type Microphone func(cfg miniaudio.Config, onAudio func(pcm []byte)) (io.Closer, error)

// DefaultMicrophone captures from the default input device.
func DefaultMicrophone(cfg miniaudio.Config, onAudio func(pcm []byte)) (io.Closer, error) {
	return miniaudio.Open(cfg, onAudio)
}

// Acquirer opens the microphone and a Deepgram live session for every
// acquisition.
type Acquirer struct {
	cfg        Config
	microphone Microphone
	logger     *slog.Logger
	// breaker refuses new sessions for a while after repeated connect
	// failures.
	breaker *resilience.CircuitBreaker
}

func New(cfg Config, mic Microphone, logger *slog.Logger) *Acquirer {
	if mic == nil {
		mic = DefaultMicrophone
	}
	return &Acquirer{
		cfg:        cfg.withDefaults(),
		microphone: mic,
		logger:     logging.NewComponentLogger(logger, "deepgram_stt"),
		breaker:    resilience.NewCircuitBreaker(3, 30*time.Second),
	}
}

func (a *Acquirer) Acquire(ctx context.Context) (platform.Stream[speech.Fragment], error) {
	if strings.TrimSpace(a.cfg.APIKey) == "" {
		return nil, platform.NewError("service-not-allowed", "deepgram api key is not configured")
	}
	if !a.breaker.Allow() {
		return nil, platform.NewError("network", resilience.ErrOpen.Error()+": deepgram connections keep failing")
	}

	s := newStream(a.logger)
	sessionCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.pipeReader, s.pipeWriter = io.Pipe()

	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Model:          a.cfg.Model,
		Language:       a.cfg.Language,
		Encoding:       a.cfg.Encoding,
		SampleRate:     a.cfg.SampleRate,
		Channels:       1,
		InterimResults: a.cfg.Interim,
		VadEvents:      a.cfg.VADEvents,
		SmartFormat:    true,
	}
	if a.cfg.UtteranceEndMS > 0 {
		transcriptOptions.UtteranceEndMs = fmt.Sprintf("%d", a.cfg.UtteranceEndMS)
	}

	a.logger.Info("initializing deepgram connection",
		slog.String("model", a.cfg.Model),
		slog.String("language", a.cfg.Language),
		slog.Int("sample_rate", a.cfg.SampleRate))

	dgClient, err := client.NewWSUsingCallback(sessionCtx, a.cfg.APIKey,
		&interfaces.ClientOptions{EnableKeepAlive: true}, transcriptOptions, &callback{stream: s})
	if err != nil {
		a.breaker.OnError()
		_ = s.Release()
		return nil, platform.NewError("network", err.Error())
	}
	s.dgClient = dgClient

	if connected := dgClient.Connect(); !connected {
		a.breaker.OnError()
		_ = s.Release()
		return nil, platform.NewError("network", "deepgram connection failed")
	}
	a.breaker.OnSuccess()
	if err := ctx.Err(); err != nil {
		_ = s.Release()
		return nil, err
	}

	mic, err := a.microphone(miniaudio.Config{SampleRate: uint32(a.cfg.SampleRate), Channels: 1}, s.forward)
	if err != nil {
		_ = s.Release()
		return nil, err
	}
	s.mic = mic

	go func() {
		if err := dgClient.Stream(s.pipeReader); err != nil && sessionCtx.Err() == nil {
			a.logger.Error("deepgram_stream_error", slog.String("error", err.Error()))
			s.finish(platform.NewError("network", err.Error()))
		}
	}()

	a.logger.Info("deepgram_connected", slog.String("model", a.cfg.Model))
	return s, nil
}

// Stream is one live recognition session fed by the microphone.
type Stream struct {
	logger *slog.Logger

	cancel     context.CancelFunc
	dgClient   *client.WSCallback
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	mic        io.Closer

	mu       sync.Mutex
	onSample func(speech.Fragment)
	onDone   func(error)
	released bool
	ended    bool

	// Deepgram reports an utterance as a run of final segments closed by
	// speech_final or an utterance-end event.
	index   int
	segment []string

	releaseOnce sync.Once
}

func newStream(logger *slog.Logger) *Stream {
	return &Stream{logger: logger}
}

func (s *Stream) Subscribe(onSample func(speech.Fragment), onDone func(error)) platform.Unsubscribe {
	s.mu.Lock()
	s.onSample = onSample
	s.onDone = onDone
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.onSample = nil
		s.onDone = nil
		s.mu.Unlock()
	}
}

// forward sends microphone audio to Deepgram once someone listens.
func (s *Stream) forward(pcm []byte) {
	s.mu.Lock()
	listening := s.onSample != nil && !s.released
	w := s.pipeWriter
	s.mu.Unlock()
	if !listening || w == nil {
		return
	}
	if _, err := w.Write(pcm); err != nil {
		s.logger.Debug("deepgram_audio_dropped", slog.String("error", err.Error()))
	}
}

func (s *Stream) emit(f speech.Fragment) {
	s.mu.Lock()
	fn := s.onSample
	s.mu.Unlock()
	if fn != nil {
		fn(f)
	}
}

func (s *Stream) finish(err error) {
	s.mu.Lock()
	if s.ended || s.released {
		s.mu.Unlock()
		return
	}
	s.ended = true
	fn := s.onDone
	s.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// transcript handles one Deepgram result.
func (s *Stream) transcript(text string, isFinal, speechFinal bool) {
	s.mu.Lock()
	var out speech.Fragment
	switch {
	case !isFinal:
		out = speech.Interim(s.index, joinSegments(s.segment, text))
	case speechFinal:
		s.segment = append(s.segment, text)
		out = speech.Final(s.index, joinSegments(s.segment, ""))
		s.index++
		s.segment = nil
	default:
		s.segment = append(s.segment, text)
		out = speech.Interim(s.index, joinSegments(s.segment, ""))
	}
	s.mu.Unlock()
	s.emit(out)
}

// utteranceEnd closes the pending utterance, if any.
func (s *Stream) utteranceEnd() {
	s.mu.Lock()
	if len(s.segment) == 0 {
		s.mu.Unlock()
		return
	}
	out := speech.Final(s.index, joinSegments(s.segment, ""))
	s.index++
	s.segment = nil
	s.mu.Unlock()
	s.emit(out)
}

func joinSegments(segments []string, tail string) string {
	parts := append(append([]string(nil), segments...), tail)
	return strings.TrimSpace(strings.Join(parts, " "))
}

// Release closes the microphone and the Deepgram session. It is idempotent.
func (s *Stream) Release() error {
	var err error
	s.releaseOnce.Do(func() {
		s.mu.Lock()
		s.released = true
		s.mu.Unlock()

		if s.mic != nil {
			err = s.mic.Close()
		}
		if s.cancel != nil {
			s.cancel()
		}
		if s.pipeWriter != nil {
			_ = s.pipeWriter.Close()
		}
		if s.dgClient != nil {
			s.dgClient.Stop()
		}
		s.logger.Info("deepgram_session_released")
	})
	return err
}

// --- Callback Implementation ---

type callback struct {
	stream *Stream
}

func (c *callback) Open(or *msginterfaces.OpenResponse) error {
	c.stream.logger.Info("deepgram_connection_opened")
	return nil
}

func (c *callback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	transcript := strings.TrimSpace(mr.Channel.Alternatives[0].Transcript)
	if transcript == "" {
		if mr.SpeechFinal {
			c.stream.utteranceEnd()
		}
		return nil
	}
	c.stream.logger.Debug("transcript_received",
		slog.Bool("is_final", mr.IsFinal),
		slog.Bool("speech_final", mr.SpeechFinal))
	c.stream.transcript(transcript, mr.IsFinal, mr.SpeechFinal)
	return nil
}

func (c *callback) Metadata(md *msginterfaces.MetadataResponse) error {
	c.stream.logger.Info("deepgram_metadata_received", slog.String("request_id", md.RequestID))
	return nil
}

func (c *callback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	c.stream.logger.Debug("speech_started_event")
	return nil
}

func (c *callback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	c.stream.logger.Debug("utterance_end_event")
	c.stream.utteranceEnd()
	return nil
}

func (c *callback) Close(cr *msginterfaces.CloseResponse) error {
	c.stream.logger.Info("deepgram_connection_closed")
	c.stream.utteranceEnd()
	c.stream.finish(nil)
	return nil
}

func (c *callback) Error(er *msginterfaces.ErrorResponse) error {
	c.stream.logger.Error("deepgram_error",
		slog.String("error_code", er.ErrCode),
		slog.String("error_message", er.ErrMsg))
	c.stream.finish(platform.NewError(errorName(er.ErrCode), er.ErrMsg))
	return nil
}

func (c *callback) UnhandledEvent(byData []byte) error {
	c.stream.logger.Debug("deepgram_unhandled_event", slog.String("data", string(byData)))
	return nil
}

// errorName maps Deepgram error codes onto recogniser error names.
func errorName(code string) string {
	switch strings.ToUpper(code) {
	case "INVALID_AUTH", "INSUFFICIENT_PERMISSIONS", "UNAUTHORIZED", "FORBIDDEN":
		return "not-allowed"
	case "UNSUPPORTED_LANGUAGE", "INVALID_QUERY_PARAMETER", "BAD_REQUEST":
		return "language-not-supported"
	case "NO_AUDIO", "DATA_TIMEOUT", "NET-0001":
		return "no-speech"
	default:
		return "network"
	}
}

var _ platform.Acquirer[speech.Fragment] = (*Acquirer)(nil)
