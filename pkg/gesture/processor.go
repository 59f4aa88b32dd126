package gesture

import (
	"github.com/harunnryd/mimo/pkg/events"
)

// Processor runs the classifier and the stabilizer over camera frames for
// one active camera session.
type Processor struct {
	classifier Classifier
	stabilizer *Stabilizer
	sink       events.Sink
	onLabel    func(label Label)
}

// ProcessorOptions wires a Processor to its collaborators.
type ProcessorOptions struct {
	Classifier Classifier
	Stabilizer *Stabilizer
	Sink       events.Sink
	// OnLabel observes every per-hand classification, including None.
	OnLabel func(label Label)
}

func NewProcessor(opts ProcessorOptions) *Processor {
	if opts.Stabilizer == nil {
		opts.Stabilizer = NewStabilizer()
	}
	if opts.Sink == nil {
		opts.Sink = events.Discard
	}
	if opts.Classifier.TouchTolerance <= 0 {
		opts.Classifier = NewClassifier(DefaultTouchTolerance)
	}
	return &Processor{
		classifier: opts.Classifier,
		stabilizer: opts.Stabilizer,
		sink:       opts.Sink,
		onLabel:    opts.OnLabel,
	}
}

// Process handles one frame. Hands are classified in tracker order; a frame
// without hands counts as a None label.
func (p *Processor) Process(f Frame) {
	if len(f.Hands) == 0 {
		p.handle(None)
		return
	}
	for _, hand := range f.Hands {
		p.handle(p.classifier.Classify(hand))
	}
}

func (p *Processor) handle(label Label) {
	if p.onLabel != nil {
		p.onLabel(label)
	}
	ev, ok := p.stabilizer.Stabilize(label)
	if !ok {
		return
	}
	p.sink.Emit(ev)
}

// Close forgets the session's detection state.
func (p *Processor) Close() error {
	p.stabilizer.Reset()
	return nil
}
