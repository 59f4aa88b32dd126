// Package journal keeps the ordered transcript of domain events.
package journal

import (
	"context"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/harunnryd/mimo/pkg/events"
)

// Store is an insertion-ordered, append-only event log.
type Store interface {
	Append(ctx context.Context, ev events.DomainEvent) error
	// All yields events in insertion order.
	All(ctx context.Context) iter.Seq2[events.DomainEvent, error]
	Len(ctx context.Context) (int, error)
	Close() error
}

// record is the stored form of an event.
type record struct {
	ID       string `msgpack:"id"`
	Text     string `msgpack:"text"`
	Modality string `msgpack:"modality"`
	At       int64  `msgpack:"at"`
}

func encode(ev events.DomainEvent) ([]byte, error) {
	return msgpack.Marshal(record{
		ID:       ev.ID(),
		Text:     ev.Text(),
		Modality: string(ev.SourceModality()),
		At:       ev.Timestamp().UnixNano(),
	})
}

func decode(b []byte) (events.DomainEvent, error) {
	var r record
	if err := msgpack.Unmarshal(b, &r); err != nil {
		return events.DomainEvent{}, err
	}
	return events.Restore(r.ID, r.Text, events.Modality(r.Modality), time.Unix(0, r.At)), nil
}

// Memory is a Store that lives in the process.
type Memory struct {
	mu     sync.Mutex
	events []events.DomainEvent
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Append(_ context.Context, ev events.DomainEvent) error {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	return nil
}

func (m *Memory) All(_ context.Context) iter.Seq2[events.DomainEvent, error] {
	m.mu.Lock()
	snapshot := make([]events.DomainEvent, len(m.events))
	copy(snapshot, m.events)
	m.mu.Unlock()
	return func(yield func(events.DomainEvent, error) bool) {
		for _, ev := range snapshot {
			if !yield(ev, nil) {
				return
			}
		}
	}
}

func (m *Memory) Len(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events), nil
}

func (m *Memory) Close() error { return nil }

// Collect drains a store into a slice.
func Collect(ctx context.Context, s Store) ([]events.DomainEvent, error) {
	var out []events.DomainEvent
	for ev, err := range s.All(ctx) {
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// Recorder is an events.Sink that appends to a Store. Append failures are
// logged; the event still reaches the rest of the application.
type Recorder struct {
	store Store
	log   *slog.Logger
}

func NewRecorder(store Store, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{store: store, log: log}
}

func (r *Recorder) Emit(ev events.DomainEvent) {
	if err := r.store.Append(context.Background(), ev); err != nil {
		r.log.Error("journal_append_failed",
			slog.String("event_id", ev.ID()),
			slog.String("error", err.Error()))
	}
}

var (
	_ Store       = (*Memory)(nil)
	_ events.Sink = (*Recorder)(nil)
)
