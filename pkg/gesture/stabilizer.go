package gesture

import (
	"sync"

	"github.com/harunnryd/mimo/pkg/events"
)

// Stabilizer turns per-frame labels into de-duplicated domain events.
//
// A label is emitted when it differs from the last emitted label. A frame
// without a recognised hand never clears the last emitted label, but it does
// open a gap: the next recognised label is emitted even when it repeats the
// last one. A gesture held without interruption therefore fires once, while
// the same gesture after a single dropped frame fires again.
type Stabilizer struct {
	mu   sync.Mutex
	last Label
	gap  bool
}

func NewStabilizer() *Stabilizer { return &Stabilizer{} }

// Stabilize returns the event to emit for label, if any.
func (s *Stabilizer) Stabilize(label Label) (events.DomainEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if label == None {
		s.gap = true
		return events.DomainEvent{}, false
	}
	if label == s.last && !s.gap {
		return events.DomainEvent{}, false
	}
	s.last = label
	s.gap = false
	return events.New(label.Phrase(), events.ModalityGesture), true
}

// Last returns the most recently emitted label.
func (s *Stabilizer) Last() Label {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Reset forgets the emission history, as when the camera is switched off.
func (s *Stabilizer) Reset() {
	s.mu.Lock()
	s.last = None
	s.gap = false
	s.mu.Unlock()
}
