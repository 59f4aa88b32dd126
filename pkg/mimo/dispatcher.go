package mimo

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/harunnryd/mimo/pkg/events"
)

// Dispatcher hands domain events to the application's collaborators off the
// sample path. A single worker keeps emission order. When the queue is full
// the event is dropped and counted.
type Dispatcher struct {
	sinks   []events.Sink
	queue   chan events.DomainEvent
	log     *slog.Logger
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
	once   sync.Once
}

func NewDispatcher(buffer int, log *slog.Logger, sinks ...events.Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		sinks: sinks,
		queue: make(chan events.DomainEvent, buffer),
		log:   log,
		done:  make(chan struct{}),
	}
	go d.worker()
	return d
}

func (d *Dispatcher) Emit(ev events.DomainEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- ev:
	default:
		d.dropped.Add(1)
		d.log.Warn("dispatcher_queue_full",
			slog.String("event_id", ev.ID()),
			slog.String("modality", string(ev.SourceModality())))
	}
}

func (d *Dispatcher) worker() {
	defer close(d.done)
	for ev := range d.queue {
		for _, s := range d.sinks {
			d.deliver(s, ev)
		}
	}
}

func (d *Dispatcher) deliver(s events.Sink, ev events.DomainEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("dispatcher_sink_panic", slog.String("event_id", ev.ID()), slog.Any("panic", r))
		}
	}()
	s.Emit(ev)
}

// Dropped returns how many events were lost to a full queue.
func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }

// Close stops accepting events and waits for the queued ones.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})
	<-d.done
}

var _ events.Sink = (*Dispatcher)(nil)
