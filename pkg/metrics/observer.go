package metrics

import "time"

// Event names recorded by the engine.
const (
	EventAcquireMs      = "media_acquire_ms"
	EventState          = "media_state"
	EventError          = "media_error"
	EventGestureFrame   = "gesture_frame"
	EventGestureEmitted = "gesture_emitted"
	EventSpeechInterim  = "speech_interim"
	EventSpeechFinal    = "speech_final"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

// Tag returns the tag value for key, or "".
func (ev MetricsEvent) Tag(key string) string {
	if ev.Tags == nil {
		return ""
	}
	return ev.Tags[key]
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// Record stamps and forwards an event. A nil observer is allowed.
func Record(obs Observer, name string, value float64, tags map[string]string, fields map[string]any) {
	if obs == nil {
		return
	}
	obs.RecordEvent(MetricsEvent{
		Name:   name,
		Time:   time.Now(),
		Value:  value,
		Tags:   tags,
		Fields: fields,
	})
}
