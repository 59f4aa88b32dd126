package metrics

import (
	"math"
	"sync/atomic"
)

// SamplingObserver forwards a fraction of the events it sees. Events whose
// name is not in the sampled set always pass.
type SamplingObserver struct {
	inner       Observer
	rate        float64
	sampleEvery uint64
	counter     uint64
	only        map[string]bool
}

// NewSamplingObserver samples events at rate. When names are given, only
// those events are sampled.
func NewSamplingObserver(inner Observer, rate float64, names ...string) *SamplingObserver {
	if rate > 1 {
		rate = 1
	}
	if rate < 0 {
		rate = 0
	}
	var every uint64
	switch {
	case rate == 0:
		every = 0
	case rate == 1:
		every = 1
	default:
		every = uint64(math.Round(1.0 / rate))
		if every == 0 {
			every = 1
		}
	}
	var only map[string]bool
	if len(names) > 0 {
		only = make(map[string]bool, len(names))
		for _, n := range names {
			only[n] = true
		}
	}
	return &SamplingObserver{inner: inner, rate: rate, sampleEvery: every, only: only}
}

func (s *SamplingObserver) RecordEvent(ev MetricsEvent) {
	if s.only != nil && !s.only[ev.Name] {
		s.inner.RecordEvent(ev)
		return
	}
	if s.rate == 0 {
		return
	}
	if s.sampleEvery <= 1 {
		s.inner.RecordEvent(ev)
		return
	}
	n := atomic.AddUint64(&s.counter, 1)
	if n%s.sampleEvery == 0 {
		s.inner.RecordEvent(ev)
	}
}
