package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/mimo/pkg/errorsx"
	"github.com/harunnryd/mimo/pkg/events"
	"github.com/harunnryd/mimo/pkg/lifecycle"
	"github.com/harunnryd/mimo/pkg/logging"
	"github.com/harunnryd/mimo/pkg/metrics"
	"github.com/harunnryd/mimo/pkg/platform"
	"github.com/harunnryd/mimo/pkg/speech"
)

// Suggestions are the phrases offered when speaking is not an option.
var Suggestions = []string{
	"Quel temps fait-il?",
	"Parle-moi des couleurs",
	"Compte avec moi",
	"Parle-moi des animaux",
	"Je veux apprendre",
	"Bonjour",
}

// SpeechConfig configures the microphone pipeline.
type SpeechConfig struct {
	Acquirer       platform.Acquirer[speech.Fragment]
	Capability     platform.Capability
	AcquireTimeout time.Duration
	// OnLive observes the interim transcript.
	OnLive func(text string)
	// Pick returns a random index in [0, n); nil uses math/rand.
	Pick func(n int) int
	Options
}

// SpeechPipeline is what the host UI drives for the microphone.
type SpeechPipeline struct {
	machine *lifecycle.Machine[speech.Fragment]
	tracker *tracker
	opts    Options
	log     *slog.Logger
	pick    func(int) int
	onLive  func(string)

	mu      sync.Mutex
	live    string
	session uint64
}

func NewSpeechPipeline(cfg SpeechConfig) *SpeechPipeline {
	opts := cfg.Options.withDefaults()
	log := logging.NewComponentLogger(opts.Logger, "speech_pipeline")
	pick := cfg.Pick
	if pick == nil {
		pick = rand.IntN
	}
	p := &SpeechPipeline{
		tracker: newTracker(events.ModalityVoice, opts.Observer, log),
		opts:    opts,
		log:     log,
		pick:    pick,
		onLive:  cfg.OnLive,
	}
	p.machine = lifecycle.NewMachine(lifecycle.Config[speech.Fragment]{
		Modality:     events.ModalityVoice,
		Acquirer:     cfg.Acquirer,
		Capability:   cfg.Capability,
		Timeout:      cfg.AcquireTimeout,
		NewProcessor: p.newProcessor,
		Logger:       log,
		Listeners:    []lifecycle.Listener{p.tracker},
	})
	return p
}

// newProcessor starts a fresh recognition session with its own segmenter.
// The live transcript belongs to the newest session; an older session
// closing late cannot touch it.
func (p *SpeechPipeline) newProcessor() lifecycle.Processor[speech.Fragment] {
	p.mu.Lock()
	p.session++
	id := p.session
	p.mu.Unlock()
	p.setLive(id, "")

	return speech.NewProcessor(speech.ProcessorOptions{
		Segmenter: speech.NewSegmenter(),
		Sink: events.SinkFunc(func(ev events.DomainEvent) {
			p.machine.Forward(func() { p.emitUtterance(ev) })
		}),
		OnLive: func(text string) {
			p.machine.Forward(func() { p.setLive(id, text) })
		},
		OnFragment: func(f speech.Fragment) {
			if f.Final {
				return
			}
			p.machine.Forward(func() {
				metrics.Record(p.opts.Observer, metrics.EventSpeechInterim, 1, p.tracker.tags(), nil)
			})
		},
	})
}

func (p *SpeechPipeline) setLive(session uint64, text string) {
	p.mu.Lock()
	if session != p.session {
		p.mu.Unlock()
		return
	}
	changed := p.live != text
	p.live = text
	p.mu.Unlock()
	if changed && p.onLive != nil {
		p.onLive(text)
	}
}

func (p *SpeechPipeline) emitUtterance(ev events.DomainEvent) {
	metrics.Record(p.opts.Observer, metrics.EventSpeechFinal, 1, p.tracker.tags("source", "microphone"),
		map[string]any{"text": ev.Text()})
	p.log.Info("speech_final", slog.String("text", p.opts.Redactor.Text(ev.Text())))
	p.opts.Sink.Emit(ev)
}

func (p *SpeechPipeline) Start(ctx context.Context) error { return p.machine.Start(ctx) }

func (p *SpeechPipeline) Stop() error { return p.machine.Stop() }

func (p *SpeechPipeline) State() lifecycle.State { return p.machine.State() }

func (p *SpeechPipeline) LastError() errorsx.Record { return p.machine.LastError() }

func (p *SpeechPipeline) SessionID() string { return p.tracker.SessionID() }

func (p *SpeechPipeline) AddListener(l lifecycle.Listener) { p.machine.AddListener(l) }

// LiveTranscript returns the interim transcript of the utterance in progress.
func (p *SpeechPipeline) LiveTranscript() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

// Suggestions returns the phrases that can be submitted without speaking.
func (p *SpeechPipeline) Suggestions() []string {
	out := make([]string, len(Suggestions))
	copy(out, Suggestions)
	return out
}

// Submit emits text as a voice event, as if it had been recognised.
func (p *SpeechPipeline) Submit(text string) (events.DomainEvent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return events.DomainEvent{}, errors.New("empty utterance")
	}
	ev := speech.Utterance(text)
	metrics.Record(p.opts.Observer, metrics.EventSpeechFinal, 1,
		map[string]string{"modality": string(events.ModalityVoice), "source": "suggestion"},
		map[string]any{"text": text})
	p.log.Info("speech_final", slog.String("text", p.opts.Redactor.Text(text)), slog.String("source", "suggestion"))
	p.opts.Sink.Emit(ev)
	return ev, nil
}

// QuickTest submits a random suggestion.
func (p *SpeechPipeline) QuickTest() events.DomainEvent {
	ev, _ := p.Submit(Suggestions[p.pick(len(Suggestions))])
	return ev
}
