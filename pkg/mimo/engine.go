// Package mimo assembles the gesture and speech pipelines into one engine:
// providers from configuration, the event journal, the reply generator and
// the metrics observer chain.
package mimo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/mimo/pkg/events"
	"github.com/harunnryd/mimo/pkg/gesture"
	"github.com/harunnryd/mimo/pkg/journal"
	"github.com/harunnryd/mimo/pkg/lifecycle"
	"github.com/harunnryd/mimo/pkg/logging"
	"github.com/harunnryd/mimo/pkg/metrics"
	"github.com/harunnryd/mimo/pkg/observers"
	"github.com/harunnryd/mimo/pkg/pipeline"
	"github.com/harunnryd/mimo/pkg/platform"
	"github.com/harunnryd/mimo/pkg/redact"
	"github.com/harunnryd/mimo/pkg/reply"
	"github.com/harunnryd/mimo/pkg/runner"
	"github.com/harunnryd/mimo/pkg/speech"
)

type EngineOptions struct {
	Config    Config
	Providers *ProviderRegistry
	// Logger defaults to one built from Config.LogLevel and LogFormat,
	// writing to LogOutput (stderr when nil).
	Logger    *slog.Logger
	LogOutput io.Writer
	// Generator answers every domain event; nil selects reply.NewKeyword.
	Generator reply.Generator
	OnReply   func(ev events.DomainEvent, reply string)
	// Sinks receive every domain event after the journal.
	Sinks          []events.Sink
	OnConfirmation func(text string)
	OnLive         func(text string)
	// Listeners observe both pipelines' state changes.
	Listeners []lifecycle.Listener
	AfterFunc gesture.AfterFunc
	// Pick chooses the quick-test suggestion; nil is random.
	Pick func(n int) int
	// Banner receives the start banner printed by Run.
	Banner io.Writer
}

type Engine struct {
	cfg        Config
	log        *slog.Logger
	gesture    *pipeline.GesturePipeline
	speech     *pipeline.SpeechPipeline
	camera     platform.Acquirer[gesture.Frame]
	microphone platform.Acquirer[speech.Fragment]
	journal    journal.Store
	dispatcher *Dispatcher
	sessions   *observers.SessionObserver
	timeline   *observers.TimelineObserver
	jsonl      *metrics.JSONLObserver
	jsonlFile  *os.File
	asyncObs   *metrics.AsyncObserver
	runner     *runner.LifecycleRunner

	drainOnce sync.Once
	drainErr  error
}

func NewEngine(opts EngineOptions) (*Engine, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	log := opts.Logger
	if log == nil {
		out := opts.LogOutput
		if out == nil {
			out = os.Stderr
		}
		log = logging.InitLogger(cfg.LogLevel, cfg.LogFormat, out)
	}
	redactor := redact.New(cfg.Privacy.RedactPII)

	log.Info("mimo_init",
		slog.String("gesture_provider", cfg.Gesture.Provider),
		slog.String("speech_provider", cfg.Speech.Provider),
		slog.String("speech_language", cfg.Speech.Language),
		slog.Bool("redact_pii", cfg.Privacy.RedactPII),
	)

	providers := opts.Providers
	if providers == nil {
		providers = DefaultProviders()
	}
	camera, err := providers.BuildCamera(cfg, log)
	if err != nil {
		return nil, err
	}
	microphone, err := providers.BuildMicrophone(cfg, log)
	if err != nil {
		return nil, err
	}
	gestureCap, _ := platform.ParseCapability(cfg.Gesture.Capability)
	speechCap, _ := platform.ParseCapability(cfg.Speech.Capability)

	e := &Engine{cfg: cfg, log: log, camera: camera, microphone: microphone}

	if e.journal, err = openJournal(cfg.Journal, log); err != nil {
		return nil, err
	}
	if err := e.buildObservers(log, redactor); err != nil {
		_ = e.journal.Close()
		return nil, err
	}

	sinks := []events.Sink{journal.NewRecorder(e.journal, log)}
	sinks = append(sinks, opts.Sinks...)
	sinks = append(sinks, reply.NewResponder(opts.Generator, opts.OnReply))
	e.dispatcher = NewDispatcher(256, logging.NewComponentLogger(log, "dispatcher"), sinks...)

	shared := pipeline.Options{
		Logger:   log,
		Observer: e.asyncObs,
		Sink:     e.dispatcher,
		Redactor: redactor,
	}
	e.gesture = pipeline.NewGesturePipeline(pipeline.GestureConfig{
		Acquirer:       camera,
		Capability:     gestureCap,
		AcquireTimeout: cfg.Gesture.AcquireTimeout(),
		TouchTolerance: cfg.Gesture.TouchTolerance,
		DemoClear:      cfg.Gesture.DemoClear(),
		AfterFunc:      opts.AfterFunc,
		OnConfirmation: opts.OnConfirmation,
		Options:        shared,
	})
	e.speech = pipeline.NewSpeechPipeline(pipeline.SpeechConfig{
		Acquirer:       microphone,
		Capability:     speechCap,
		AcquireTimeout: cfg.Speech.AcquireTimeout(),
		OnLive:         opts.OnLive,
		Pick:           opts.Pick,
		Options:        shared,
	})
	for _, l := range opts.Listeners {
		e.gesture.AddListener(l)
		e.speech.AddListener(l)
	}

	e.runner = runner.NewLifecycleRunner(runner.Options{
		Drainer: e,
		Banner:  opts.Banner,
		Hooks: runner.Hooks{
			OnStart: func() { log.Info("mimo_started") },
			OnStop:  func() { log.Info("mimo_stopped") },
		},
	})
	return e, nil
}

func openJournal(cfg JournalConfig, log *slog.Logger) (journal.Store, error) {
	switch {
	case strings.TrimSpace(cfg.Dir) != "":
		return journal.OpenBadger(journal.BadgerOptions{Dir: cfg.Dir, Logger: log})
	case cfg.InMemory:
		return journal.OpenBadger(journal.BadgerOptions{InMemory: true, Logger: log})
	}
	return journal.NewMemory(), nil
}

// buildObservers assembles the chain every pipeline metric goes through:
// async, then fan-out to the log, session summaries, per-session timelines
// and a sampled JSONL file.
func (e *Engine) buildObservers(log *slog.Logger, redactor *redact.Redactor) error {
	obs := e.cfg.Observability
	e.sessions = observers.NewSessionObserver(log)
	list := []metrics.Observer{observers.NewLoggerObserver(log), e.sessions}

	if dir := strings.TrimSpace(obs.TimelineDir); dir != "" {
		if obs.TimelineRetentionHours > 0 {
			removed, err := observers.PurgeTimelines(dir, time.Duration(obs.TimelineRetentionHours)*time.Hour)
			if err != nil {
				log.Warn("timeline_purge_failed", slog.String("error", err.Error()))
			} else if removed > 0 {
				log.Info("timeline_purged", slog.Int("removed", removed))
			}
		}
		e.timeline = observers.NewTimelineObserver(dir, redactor)
		list = append(list, e.timeline)
	}
	if path := strings.TrimSpace(obs.MetricsJSONL); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("metrics jsonl: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("metrics jsonl: %w", err)
		}
		e.jsonlFile = f
		e.jsonl = metrics.NewJSONLObserver(f)
		list = append(list, metrics.NewSamplingObserver(e.jsonl, obs.FrameSampleRate, metrics.EventGestureFrame))
	}
	e.asyncObs = metrics.NewAsyncObserver(observers.NewMultiObserver(list...), 2048)
	return nil
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) Gesture() *pipeline.GesturePipeline { return e.gesture }

func (e *Engine) Speech() *pipeline.SpeechPipeline { return e.speech }

// Camera is the acquirer the gesture pipeline uses.
func (e *Engine) Camera() platform.Acquirer[gesture.Frame] { return e.camera }

// Microphone is the acquirer the speech pipeline uses.
func (e *Engine) Microphone() platform.Acquirer[speech.Fragment] { return e.microphone }

func (e *Engine) Journal() journal.Store { return e.journal }

// Sessions returns the summaries of finished capture sessions.
func (e *Engine) Sessions() []observers.SessionStats { return e.sessions.Completed() }

// Run blocks until ctx is done, then drains the engine.
func (e *Engine) Run(ctx context.Context) error { return e.runner.Run(ctx) }

// Close drains the engine without Run.
func (e *Engine) Close() error { return e.runner.Stop() }

// Drain turns both devices off, delivers queued events and metrics, and
// closes the journal. It runs once.
func (e *Engine) Drain() error {
	e.drainOnce.Do(func() {
		var errs []error
		errs = append(errs, e.gesture.Stop(), e.speech.Stop())
		e.dispatcher.Close()
		e.asyncObs.Close()
		if e.jsonl != nil {
			errs = append(errs, e.jsonl.Flush(), e.jsonlFile.Close())
		}
		if e.timeline != nil {
			errs = append(errs, e.timeline.Close())
		}
		errs = append(errs, e.journal.Close())
		e.drainErr = errors.Join(errs...)
		if e.drainErr != nil {
			e.log.Warn("mimo_drain_failed", slog.String("error", e.drainErr.Error()))
		}
	})
	return e.drainErr
}

var _ runner.Drainer = (*Engine)(nil)
