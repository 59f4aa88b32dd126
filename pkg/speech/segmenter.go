package speech

import (
	"sort"
	"strings"
	"sync"

	"github.com/harunnryd/mimo/pkg/events"
)

// Segmenter groups fragments into utterances. Each result index holds the
// latest fragment seen for it; when a final fragment arrives, every final
// fragment in the current window is joined into one utterance and the window
// moves past it. Interim text only feeds the live transcript.
type Segmenter struct {
	mu      sync.Mutex
	window  int
	pending map[int]Fragment
	live    string
}

func NewSegmenter() *Segmenter {
	return &Segmenter{pending: make(map[int]Fragment)}
}

// Result is what one Push produced.
type Result struct {
	// Utterance is the completed text, valid when Done is true.
	Utterance string
	Done      bool
	// Live is the interim transcript after the push.
	Live        string
	LiveChanged bool
}

// Push feeds fragments in arrival order. Fragments below the current window
// belong to an utterance already emitted and are dropped.
func (s *Segmenter) Push(frags ...Fragment) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	closed := -1
	for _, f := range frags {
		if f.Index < s.window {
			continue
		}
		s.pending[f.Index] = f
		if f.Final && f.Index > closed {
			closed = f.Index
		}
	}

	var res Result
	if closed >= 0 {
		res.Utterance, res.Done = s.closeLocked(closed)
	}

	live := s.liveLocked()
	res.LiveChanged = live != s.live
	s.live = live
	res.Live = live
	return res
}

// closeLocked joins the finals up to and including index and advances the
// window past them.
func (s *Segmenter) closeLocked(index int) (string, bool) {
	parts := make([]string, 0, len(s.pending))
	for _, idx := range s.indicesLocked() {
		if idx > index {
			break
		}
		f := s.pending[idx]
		if f.Final {
			if text := strings.TrimSpace(f.Text); text != "" {
				parts = append(parts, text)
			}
		}
		delete(s.pending, idx)
	}
	s.window = index + 1
	text := strings.TrimSpace(strings.Join(parts, " "))
	return text, text != ""
}

func (s *Segmenter) liveLocked() string {
	var b strings.Builder
	for _, idx := range s.indicesLocked() {
		if f := s.pending[idx]; !f.Final {
			b.WriteString(f.Text)
		}
	}
	return b.String()
}

func (s *Segmenter) indicesLocked() []int {
	idx := make([]int, 0, len(s.pending))
	for i := range s.pending {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// Live returns the current interim transcript.
func (s *Segmenter) Live() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// Reset starts a fresh session: result indices restart from zero.
func (s *Segmenter) Reset() {
	s.mu.Lock()
	s.window = 0
	s.pending = make(map[int]Fragment)
	s.live = ""
	s.mu.Unlock()
}

// Utterance wraps completed text as a voice event.
func Utterance(text string) events.DomainEvent {
	return events.New(text, events.ModalityVoice)
}
