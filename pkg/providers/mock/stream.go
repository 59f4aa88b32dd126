package mock

import (
	"context"
	"sync"
	"time"

	"github.com/harunnryd/mimo/pkg/platform"
)

// StreamConfig scripts an acquirer and the streams it hands out.
type StreamConfig[S any] struct {
	// Delay postpones the grant.
	Delay time.Duration
	// Block makes Acquire wait until its context is cancelled.
	Block bool
	// Err is returned instead of a stream.
	Err error
	// Samples are replayed after Subscribe, Interval apart.
	Samples  []S
	Interval time.Duration
	// End finishes the stream after the samples with EndErr.
	End    bool
	EndErr error
}

// Acquirer hands out scripted streams.
type Acquirer[S any] struct {
	cfg StreamConfig[S]

	mu      sync.Mutex
	calls   int
	streams []*Stream[S]
}

func NewAcquirer[S any](cfg StreamConfig[S]) *Acquirer[S] {
	return &Acquirer[S]{cfg: cfg}
}

func (a *Acquirer[S]) Acquire(ctx context.Context) (platform.Stream[S], error) {
	if ctx == nil {
		ctx = context.Background()
	}
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()

	if a.cfg.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if a.cfg.Delay > 0 {
		select {
		case <-time.After(a.cfg.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.cfg.Err != nil {
		return nil, a.cfg.Err
	}

	s := newStream(a.cfg)
	a.mu.Lock()
	a.streams = append(a.streams, s)
	a.mu.Unlock()
	return s, nil
}

// Acquisitions returns how many times Acquire was called.
func (a *Acquirer[S]) Acquisitions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// Current returns the most recently granted stream, or nil.
func (a *Acquirer[S]) Current() *Stream[S] {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.streams) == 0 {
		return nil
	}
	return a.streams[len(a.streams)-1]
}

// Stream is a scripted resource. Samples can also be pushed by hand.
type Stream[S any] struct {
	cfg StreamConfig[S]

	mu       sync.Mutex
	onSample func(S)
	onDone   func(error)
	released bool
	done     bool
	stop     chan struct{}
	stopOnce sync.Once
	// deliver serialises sample callbacks.
	deliver sync.Mutex
}

func newStream[S any](cfg StreamConfig[S]) *Stream[S] {
	return &Stream[S]{cfg: cfg, stop: make(chan struct{})}
}

func (s *Stream[S]) Subscribe(onSample func(S), onDone func(error)) platform.Unsubscribe {
	s.mu.Lock()
	s.onSample = onSample
	s.onDone = onDone
	s.mu.Unlock()

	if len(s.cfg.Samples) > 0 || s.cfg.End {
		go s.replay()
	}
	return s.unsubscribe
}

func (s *Stream[S]) replay() {
	for _, sample := range s.cfg.Samples {
		if s.cfg.Interval > 0 {
			select {
			case <-time.After(s.cfg.Interval):
			case <-s.stop:
				return
			}
		}
		if !s.Push(sample) {
			return
		}
	}
	if s.cfg.End {
		s.Finish(s.cfg.EndErr)
	}
}

// Push delivers one sample. It reports false once the stream is closed.
func (s *Stream[S]) Push(sample S) bool {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	fn := s.onSample
	closed := s.released || s.done
	s.mu.Unlock()
	if closed || fn == nil {
		return false
	}
	fn(sample)
	return true
}

// Finish ends the stream as the device would, with err nil for a normal end.
func (s *Stream[S]) Finish(err error) {
	s.mu.Lock()
	if s.done || s.released {
		s.mu.Unlock()
		return
	}
	s.done = true
	fn := s.onDone
	s.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (s *Stream[S]) unsubscribe() {
	s.mu.Lock()
	s.onSample = nil
	s.onDone = nil
	s.mu.Unlock()
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Stream[S]) Release() error {
	s.mu.Lock()
	s.released = true
	s.mu.Unlock()
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

// Released reports whether the device was freed.
func (s *Stream[S]) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}
