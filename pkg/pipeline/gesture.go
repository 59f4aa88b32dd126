package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/harunnryd/mimo/pkg/errorsx"
	"github.com/harunnryd/mimo/pkg/events"
	"github.com/harunnryd/mimo/pkg/gesture"
	"github.com/harunnryd/mimo/pkg/lifecycle"
	"github.com/harunnryd/mimo/pkg/logging"
	"github.com/harunnryd/mimo/pkg/metrics"
	"github.com/harunnryd/mimo/pkg/platform"
)

// GestureConfig configures the camera pipeline.
type GestureConfig struct {
	Acquirer       platform.Acquirer[gesture.Frame]
	Capability     platform.Capability
	AcquireTimeout time.Duration
	TouchTolerance float64
	// DemoClear is how long a demo confirmation stays displayed.
	DemoClear time.Duration
	// AfterFunc schedules confirmation clears; nil uses real time.
	AfterFunc gesture.AfterFunc
	// OnConfirmation observes the displayed confirmation text.
	OnConfirmation func(text string)
	Options
}

// GesturePipeline is what the host UI drives for the camera: start, stop,
// state, the last error, the confirmation display and the demo pad.
type GesturePipeline struct {
	machine    *lifecycle.Machine[gesture.Frame]
	classifier gesture.Classifier
	confirm    *gesture.Confirmation
	demo       *gesture.DemoPad
	tracker    *tracker
	opts       Options
	log        *slog.Logger
	// sessions counts processors handed to the machine.
	sessions atomic.Uint64
}

func NewGesturePipeline(cfg GestureConfig) *GesturePipeline {
	opts := cfg.Options.withDefaults()
	log := logging.NewComponentLogger(opts.Logger, "gesture_pipeline")
	p := &GesturePipeline{
		classifier: gesture.NewClassifier(cfg.TouchTolerance),
		confirm:    gesture.NewConfirmation(cfg.AfterFunc, cfg.OnConfirmation),
		tracker:    newTracker(events.ModalityGesture, opts.Observer, log),
		opts:       opts,
		log:        log,
	}
	p.demo = gesture.NewDemoPad(events.SinkFunc(p.emitDemo), p.confirm, cfg.DemoClear)
	p.machine = lifecycle.NewMachine(lifecycle.Config[gesture.Frame]{
		Modality:     events.ModalityGesture,
		Acquirer:     cfg.Acquirer,
		Capability:   cfg.Capability,
		Timeout:      cfg.AcquireTimeout,
		NewProcessor: p.newProcessor,
		Logger:       log,
		Listeners:    []lifecycle.Listener{p.tracker},
	})
	return p
}

// newProcessor starts a camera session with its own stabilizer. Everything
// the processor hands out goes through the machine, so nothing escapes a
// stopped session.
func (p *GesturePipeline) newProcessor() lifecycle.Processor[gesture.Frame] {
	proc := gesture.NewProcessor(gesture.ProcessorOptions{
		Classifier: p.classifier,
		Stabilizer: gesture.NewStabilizer(),
		Sink: events.SinkFunc(func(ev events.DomainEvent) {
			p.machine.Forward(func() { p.emitDetected(ev) })
		}),
		OnLabel: func(label gesture.Label) {
			p.machine.Forward(func() {
				metrics.Record(p.opts.Observer, metrics.EventGestureFrame, 1, p.tracker.tags("label", label.String()), nil)
			})
		},
	})
	return cameraSession{Processor: proc, p: p, id: p.sessions.Add(1)}
}

// cameraSession clears the confirmation when its session ends, unless a
// newer session has started since.
type cameraSession struct {
	*gesture.Processor
	p  *GesturePipeline
	id uint64
}

func (s cameraSession) Close() error {
	err := s.Processor.Close()
	if s.p.sessions.Load() == s.id {
		s.p.confirm.Clear()
	}
	return err
}

func (p *GesturePipeline) emitDetected(ev events.DomainEvent) {
	p.confirm.Show(ev.Text())
	metrics.Record(p.opts.Observer, metrics.EventGestureEmitted, 1, p.tracker.tags("source", "camera"),
		map[string]any{"text": ev.Text()})
	p.log.Info("gesture_emitted", slog.String("text", ev.Text()), slog.String("source", "camera"))
	p.opts.Sink.Emit(ev)
}

func (p *GesturePipeline) emitDemo(ev events.DomainEvent) {
	metrics.Record(p.opts.Observer, metrics.EventGestureEmitted, 1,
		map[string]string{"modality": string(events.ModalityGesture), "source": "demo"},
		map[string]any{"text": ev.Text()})
	p.log.Info("gesture_emitted", slog.String("text", ev.Text()), slog.String("source", "demo"))
	p.opts.Sink.Emit(ev)
}

// Start turns the camera on. See lifecycle.Machine.Start.
func (p *GesturePipeline) Start(ctx context.Context) error { return p.machine.Start(ctx) }

// Stop turns the camera off from any state.
func (p *GesturePipeline) Stop() error { return p.machine.Stop() }

func (p *GesturePipeline) State() lifecycle.State { return p.machine.State() }

func (p *GesturePipeline) LastError() errorsx.Record { return p.machine.LastError() }

// SessionID identifies the current or last camera session.
func (p *GesturePipeline) SessionID() string { return p.tracker.SessionID() }

// AddListener observes camera state changes.
func (p *GesturePipeline) AddListener(l lifecycle.Listener) { p.machine.AddListener(l) }

// Confirmation returns the text currently displayed for the last gesture.
func (p *GesturePipeline) Confirmation() string { return p.confirm.Text() }

// Demo emits a demo-menu gesture. It works whatever the camera state.
func (p *GesturePipeline) Demo(name string) (events.DomainEvent, error) { return p.demo.Trigger(name) }

func (p *GesturePipeline) DemoMenu() []gesture.DemoGesture { return p.demo.Menu() }
