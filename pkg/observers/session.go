package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/mimo/pkg/metrics"
)

// SessionStats summarises one capture session, from acquisition request to
// return to idle or error.
type SessionStats struct {
	SessionID string
	Modality  string
	AcquireMs int64
	ActiveMs  int64
	Emitted   int
	Interims  int
	ErrorKind string
}

// SessionObserver follows sessions through their metrics, keyed by the
// session_id tag, and logs a summary when each one ends.
type SessionObserver struct {
	mu       sync.Mutex
	sessions map[string]*session
	done     []SessionStats
	log      *slog.Logger
}

type session struct {
	stats    SessionStats
	activeAt time.Time
}

func NewSessionObserver(log *slog.Logger) *SessionObserver {
	if log == nil {
		log = slog.Default()
	}
	return &SessionObserver{
		sessions: make(map[string]*session),
		log:      log,
	}
}

func (o *SessionObserver) RecordEvent(ev metrics.MetricsEvent) {
	id := ev.Tag("session_id")
	if id == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	s := o.sessions[id]
	if s == nil {
		// Sessions open on the acquisition request only; anything else tagged
		// with an unknown or finished id is ignored.
		if ev.Name != metrics.EventState || ev.Tag("to") != "ACQUIRING" {
			return
		}
		s = &session{stats: SessionStats{SessionID: id, Modality: ev.Tag("modality"), AcquireMs: -1}}
		o.sessions[id] = s
		return
	}
	switch ev.Name {
	case metrics.EventAcquireMs:
		s.stats.AcquireMs = int64(ev.Value)
	case metrics.EventGestureEmitted, metrics.EventSpeechFinal:
		s.stats.Emitted++
	case metrics.EventSpeechInterim:
		s.stats.Interims++
	case metrics.EventError:
		s.stats.ErrorKind = ev.Tag("kind")
	case metrics.EventState:
		switch ev.Tag("to") {
		case "ACTIVE":
			s.activeAt = ev.Time
		case "IDLE", "ERROR":
			if !s.activeAt.IsZero() {
				s.stats.ActiveMs = ev.Time.Sub(s.activeAt).Milliseconds()
			}
			o.finishLocked(id, s)
		}
	}
}

func (o *SessionObserver) finishLocked(id string, s *session) {
	delete(o.sessions, id)
	o.done = append(o.done, s.stats)
	o.log.Info("media_session",
		"session_id", id,
		"modality", s.stats.Modality,
		"acquire_ms", s.stats.AcquireMs,
		"active_ms", s.stats.ActiveMs,
		"emitted", s.stats.Emitted,
		"interims", s.stats.Interims,
		"error_kind", s.stats.ErrorKind,
	)
}

// Completed returns the summaries of finished sessions, oldest first.
func (o *SessionObserver) Completed() []SessionStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]SessionStats, len(o.done))
	copy(out, o.done)
	return out
}
