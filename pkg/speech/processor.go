package speech

import (
	"github.com/harunnryd/mimo/pkg/events"
)

// ProcessorOptions wires a Processor to its collaborators. Every callback
// may be nil.
type ProcessorOptions struct {
	Segmenter *Segmenter
	Sink      events.Sink
	// OnLive observes changes of the interim transcript.
	OnLive func(text string)
	// OnFragment observes every fragment before segmentation.
	OnFragment func(f Fragment)
}

// Processor turns the fragment stream of one recognition session into voice
// events.
type Processor struct {
	seg        *Segmenter
	sink       events.Sink
	onLive     func(string)
	onFragment func(Fragment)
}

func NewProcessor(opts ProcessorOptions) *Processor {
	if opts.Segmenter == nil {
		opts.Segmenter = NewSegmenter()
	}
	if opts.Sink == nil {
		opts.Sink = events.Discard
	}
	return &Processor{
		seg:        opts.Segmenter,
		sink:       opts.Sink,
		onLive:     opts.OnLive,
		onFragment: opts.OnFragment,
	}
}

// Process handles one fragment.
func (p *Processor) Process(f Fragment) {
	if p.onFragment != nil {
		p.onFragment(f)
	}
	res := p.seg.Push(f)
	if res.LiveChanged && p.onLive != nil {
		p.onLive(res.Live)
	}
	if res.Done {
		p.sink.Emit(Utterance(res.Utterance))
	}
}

// Close ends the session and clears the live transcript.
func (p *Processor) Close() error {
	hadLive := p.seg.Live() != ""
	p.seg.Reset()
	if hadLive && p.onLive != nil {
		p.onLive("")
	}
	return nil
}
