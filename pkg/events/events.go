// Package events holds the discrete unit of meaning handed from the input
// engine to the rest of the application.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Modality identifies the input channel an event came from.
type Modality string

const (
	ModalityVoice   Modality = "voice"
	ModalityGesture Modality = "gesture"
)

// DomainEvent is immutable once emitted; accessors return copies of state.
type DomainEvent struct {
	id       string
	text     string
	modality Modality
	at       time.Time
}

// New builds a DomainEvent stamped with a fresh ID and the current time.
func New(text string, modality Modality) DomainEvent {
	return DomainEvent{
		id:       uuid.NewString(),
		text:     text,
		modality: modality,
		at:       time.Now(),
	}
}

// Restore rebuilds an event from persisted fields.
func Restore(id, text string, modality Modality, at time.Time) DomainEvent {
	return DomainEvent{id: id, text: text, modality: modality, at: at}
}

func (e DomainEvent) ID() string               { return e.id }
func (e DomainEvent) Text() string             { return e.text }
func (e DomainEvent) SourceModality() Modality { return e.modality }
func (e DomainEvent) Timestamp() time.Time     { return e.at }

// Sink consumes emitted events.
type Sink interface {
	Emit(ev DomainEvent)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ev DomainEvent)

func (f SinkFunc) Emit(ev DomainEvent) { f(ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(DomainEvent) {})

// Log is an insertion-ordered, concurrency-safe record of emitted events.
type Log struct {
	mu     sync.Mutex
	events []DomainEvent
}

func NewLog() *Log { return &Log{} }

func (l *Log) Emit(ev DomainEvent) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

// Events returns a snapshot of the log.
func (l *Log) Events() []DomainEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]DomainEvent, len(l.events))
	copy(out, l.events)
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Count returns how many logged events came from the given modality.
func (l *Log) Count(m Modality) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.modality == m {
			n++
		}
	}
	return n
}
