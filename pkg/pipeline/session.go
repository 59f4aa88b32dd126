package pipeline

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harunnryd/mimo/pkg/events"
	"github.com/harunnryd/mimo/pkg/lifecycle"
	"github.com/harunnryd/mimo/pkg/metrics"
	"github.com/harunnryd/mimo/pkg/redact"
)

// Options are the collaborators shared by both pipelines. Every field may be
// left zero.
type Options struct {
	Logger   *slog.Logger
	Observer metrics.Observer
	// Sink receives every domain event the pipeline emits.
	Sink     events.Sink
	Redactor *redact.Redactor
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Observer == nil {
		o.Observer = metrics.NoopObserver{}
	}
	if o.Sink == nil {
		o.Sink = events.Discard
	}
	return o
}

// tracker gives every capture attempt a session id and turns lifecycle
// transitions into metrics.
type tracker struct {
	modality events.Modality
	obs      metrics.Observer
	log      *slog.Logger

	mu          sync.Mutex
	id          string
	acquiringAt time.Time
}

func newTracker(m events.Modality, obs metrics.Observer, log *slog.Logger) *tracker {
	return &tracker{modality: m, obs: obs, log: log}
}

// SessionID returns the id of the current or last capture attempt.
func (t *tracker) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.id
}

func (t *tracker) tags(kv ...string) map[string]string {
	t.mu.Lock()
	id := t.id
	t.mu.Unlock()
	tags := map[string]string{"modality": string(t.modality), "session_id": id}
	for i := 0; i+1 < len(kv); i += 2 {
		tags[kv[i]] = kv[i+1]
	}
	return tags
}

func (t *tracker) OnStateChange(ev lifecycle.StateChange) {
	t.mu.Lock()
	if ev.ToState == lifecycle.StateAcquiring {
		t.id = uuid.NewString()
		t.acquiringAt = ev.Timestamp
	}
	since := t.acquiringAt
	t.mu.Unlock()

	switch ev.ToState {
	case lifecycle.StateActive:
		ms := ev.Timestamp.Sub(since).Milliseconds()
		metrics.Record(t.obs, metrics.EventAcquireMs, float64(ms), t.tags(), nil)
	case lifecycle.StateError:
		metrics.Record(t.obs, metrics.EventError, 1, t.tags("kind", string(ev.Err.Kind)),
			map[string]any{"message": ev.Err.Message})
		t.log.Warn("media_error",
			slog.String("session_id", t.SessionID()),
			slog.String("kind", string(ev.Err.Kind)),
			slog.String("hint", ev.Err.Hint))
	}
	metrics.Record(t.obs, metrics.EventState, 0,
		t.tags("from", ev.FromState.String(), "to", ev.ToState.String()),
		map[string]any{"reason": ev.Reason})
}

var _ lifecycle.Listener = (*tracker)(nil)
