package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harunnryd/mimo/pkg/errorsx"
	"github.com/harunnryd/mimo/pkg/events"
	"github.com/harunnryd/mimo/pkg/platform"
)

type stepLog struct {
	mu    sync.Mutex
	steps []string
}

func (t *stepLog) add(step string) {
	t.mu.Lock()
	t.steps = append(t.steps, step)
	t.mu.Unlock()
}

func (t *stepLog) list() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.steps...)
}

type fakeStream struct {
	mu           sync.Mutex
	trace        *stepLog
	onSample     func(int)
	onDone       func(error)
	released     bool
	unsubscribed bool
}

func (s *fakeStream) Subscribe(onSample func(int), onDone func(error)) platform.Unsubscribe {
	s.mu.Lock()
	s.onSample = onSample
	s.onDone = onDone
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.unsubscribed = true
		s.mu.Unlock()
		s.trace.add("unsubscribe")
	}
}

func (s *fakeStream) Release() error {
	s.mu.Lock()
	s.released = true
	s.mu.Unlock()
	s.trace.add("release")
	return nil
}

func (s *fakeStream) emit(v int) {
	s.mu.Lock()
	fn := s.onSample
	s.mu.Unlock()
	if fn != nil {
		fn(v)
	}
}

func (s *fakeStream) finish(err error) {
	s.mu.Lock()
	fn := s.onDone
	s.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (s *fakeStream) isReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

type recordingProcessor struct {
	mu      sync.Mutex
	trace   *stepLog
	samples []int
}

func (p *recordingProcessor) Process(v int) {
	p.mu.Lock()
	p.samples = append(p.samples, v)
	p.mu.Unlock()
}

func (p *recordingProcessor) Close() error {
	p.trace.add("close")
	return nil
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.samples)
}

// gatedAcquirer blocks every Acquire call until gate is closed.
type gatedAcquirer struct {
	calls  atomic.Int32
	gate   chan struct{}
	stream *fakeStream
	err    error
}

func (a *gatedAcquirer) Acquire(ctx context.Context) (platform.Stream[int], error) {
	a.calls.Add(1)
	<-a.gate
	if a.err != nil {
		return nil, a.err
	}
	return a.stream, nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestMachine(acq platform.Acquirer[int], proc *recordingProcessor, timeout time.Duration) *Machine[int] {
	return NewMachine(Config[int]{
		Modality:     events.ModalityGesture,
		Acquirer:     acq,
		Timeout:      timeout,
		NewProcessor: func() Processor[int] { return proc },
	})
}

func TestDoubleStartAcquiresOnce(t *testing.T) {
	tr := &stepLog{}
	acq := &gatedAcquirer{gate: make(chan struct{}), stream: &fakeStream{trace: tr}}
	m := newTestMachine(acq, &recordingProcessor{trace: tr}, time.Minute)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("second start error: %v", err)
	}
	waitFor(t, "acquire call", func() bool { return acq.calls.Load() == 1 })
	if m.State() != StateAcquiring {
		t.Fatalf("expected ACQUIRING, got %s", m.State())
	}

	close(acq.gate)
	waitFor(t, "active", func() bool { return m.State() == StateActive })
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start while active error: %v", err)
	}
	if n := acq.calls.Load(); n != 1 {
		t.Fatalf("expected exactly one acquisition, got %d", n)
	}
}

func TestStopDuringAcquiringReleasesLateResource(t *testing.T) {
	tr := &stepLog{}
	stream := &fakeStream{trace: tr}
	acq := &gatedAcquirer{gate: make(chan struct{}), stream: stream}
	proc := &recordingProcessor{trace: tr}
	m := newTestMachine(acq, proc, time.Minute)

	_ = m.Start(context.Background())
	waitFor(t, "acquire call", func() bool { return acq.calls.Load() == 1 })
	if err := m.Stop(); err != nil {
		t.Fatalf("stop error: %v", err)
	}
	if m.State() != StateIdle {
		t.Fatalf("expected IDLE after stop, got %s", m.State())
	}

	close(acq.gate)
	waitFor(t, "late release", stream.isReleased)
	if m.State() != StateIdle {
		t.Fatalf("late success must not activate, got %s", m.State())
	}
	stream.emit(1)
	if proc.count() != 0 {
		t.Fatalf("expected no samples processed")
	}
}

func TestAcquisitionTimeout(t *testing.T) {
	tr := &stepLog{}
	stream := &fakeStream{trace: tr}
	acq := &gatedAcquirer{gate: make(chan struct{}), stream: stream}
	m := newTestMachine(acq, &recordingProcessor{trace: tr}, 20*time.Millisecond)

	var errorsSeen atomic.Int32
	m.AddListener(ListenerFunc(func(ev StateChange) {
		if ev.ToState == StateError {
			errorsSeen.Add(1)
		}
	}))

	_ = m.Start(context.Background())
	waitFor(t, "error state", func() bool { return m.State() == StateError })
	if kind := m.LastError().Kind; kind != errorsx.KindTimeout {
		t.Fatalf("expected timeout kind, got %s", kind)
	}

	close(acq.gate)
	waitFor(t, "late release", stream.isReleased)
	if m.State() != StateError {
		t.Fatalf("late success must be discarded, got %s", m.State())
	}
	if n := errorsSeen.Load(); n != 1 {
		t.Fatalf("expected exactly one error transition, got %d", n)
	}
}

func TestUnsupportedCapability(t *testing.T) {
	acq := &gatedAcquirer{gate: make(chan struct{})}
	m := NewMachine(Config[int]{
		Modality:   events.ModalityVoice,
		Acquirer:   acq,
		Capability: platform.CapabilityUnsupported,
	})

	err := m.Start(context.Background())
	if err == nil {
		t.Fatalf("expected start error")
	}
	if m.State() != StateError {
		t.Fatalf("expected ERROR, got %s", m.State())
	}
	rec := m.LastError()
	if rec.Kind != errorsx.KindUnsupported || rec.Hint == "" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if acq.calls.Load() != 0 {
		t.Fatalf("acquirer must not be called")
	}
}

func TestActiveStopTearsDownInOrder(t *testing.T) {
	tr := &stepLog{}
	stream := &fakeStream{trace: tr}
	acq := &gatedAcquirer{gate: make(chan struct{}), stream: stream}
	close(acq.gate)
	proc := &recordingProcessor{trace: tr}
	m := newTestMachine(acq, proc, time.Minute)

	_ = m.Start(context.Background())
	waitFor(t, "active", func() bool { return m.State() == StateActive })
	waitFor(t, "subscription", func() bool {
		stream.mu.Lock()
		defer stream.mu.Unlock()
		return stream.onSample != nil
	})

	stream.emit(1)
	stream.emit(2)
	if proc.count() != 2 {
		t.Fatalf("expected 2 samples, got %d", proc.count())
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("stop error: %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("second stop error: %v", err)
	}
	if m.State() != StateIdle {
		t.Fatalf("expected IDLE, got %s", m.State())
	}
	waitFor(t, "teardown", func() bool { return len(tr.list()) == 3 })
	steps := tr.list()
	want := []string{"release", "close", "unsubscribe"}
	if len(steps) != len(want) {
		t.Fatalf("expected teardown %v, got %v", want, steps)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Fatalf("expected teardown %v, got %v", want, steps)
		}
	}

	stream.emit(3)
	if proc.count() != 2 {
		t.Fatalf("sample after stop must be dropped")
	}
}

func TestSourceEndAndFailure(t *testing.T) {
	tr := &stepLog{}
	stream := &fakeStream{trace: tr}
	acq := &gatedAcquirer{gate: make(chan struct{}), stream: stream}
	close(acq.gate)
	m := newTestMachine(acq, &recordingProcessor{trace: tr}, time.Minute)

	var states []State
	var mu sync.Mutex
	m.AddListener(ListenerFunc(func(ev StateChange) {
		mu.Lock()
		states = append(states, ev.ToState)
		mu.Unlock()
	}))

	_ = m.Start(context.Background())
	waitFor(t, "active", func() bool { return m.State() == StateActive })
	waitFor(t, "subscription", func() bool {
		stream.mu.Lock()
		defer stream.mu.Unlock()
		return stream.onDone != nil
	})
	stream.finish(nil)
	if m.State() != StateIdle {
		t.Fatalf("expected IDLE after normal end, got %s", m.State())
	}
	if !stream.isReleased() {
		t.Fatalf("expected resource released")
	}

	stream2 := &fakeStream{trace: tr}
	acq.stream = stream2
	_ = m.Start(context.Background())
	waitFor(t, "active again", func() bool { return m.State() == StateActive })
	waitFor(t, "subscription", func() bool {
		stream2.mu.Lock()
		defer stream2.mu.Unlock()
		return stream2.onDone != nil
	})
	stream2.finish(platform.NewError("NotReadableError", "Could not start video source"))
	if m.State() != StateError {
		t.Fatalf("expected ERROR, got %s", m.State())
	}
	if m.LastError().Kind != errorsx.KindDeviceBusy {
		t.Fatalf("expected device busy, got %s", m.LastError().Kind)
	}
	if !stream2.isReleased() {
		t.Fatalf("expected resource released on failure")
	}

	mu.Lock()
	got := append([]State(nil), states...)
	mu.Unlock()
	want := []State{StateAcquiring, StateActive, StateStopped, StateIdle, StateAcquiring, StateActive, StateError}
	if len(got) != len(want) {
		t.Fatalf("expected states %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected states %v, got %v", want, got)
		}
	}
}

func TestRetryFromError(t *testing.T) {
	acq := &gatedAcquirer{gate: make(chan struct{}), err: platform.NewError("NotAllowedError", "Permission denied")}
	close(acq.gate)
	m := newTestMachine(acq, &recordingProcessor{trace: &stepLog{}}, time.Minute)

	_ = m.Start(context.Background())
	waitFor(t, "error", func() bool { return m.State() == StateError })
	if m.LastError().Kind != errorsx.KindPermissionDenied {
		t.Fatalf("expected permission denied, got %s", m.LastError().Kind)
	}

	acq.err = nil
	acq.stream = &fakeStream{trace: &stepLog{}}
	_ = m.Start(context.Background())
	waitFor(t, "active", func() bool { return m.State() == StateActive })
	if !m.LastError().IsZero() {
		t.Fatalf("expected record cleared after leaving ERROR")
	}
	if acq.calls.Load() != 2 {
		t.Fatalf("expected a second acquisition")
	}
}

func TestStopFromErrorReturnsToIdle(t *testing.T) {
	acq := &gatedAcquirer{gate: make(chan struct{}), err: errors.New("boom")}
	close(acq.gate)
	m := newTestMachine(acq, &recordingProcessor{trace: &stepLog{}}, time.Minute)

	if err := m.Stop(); err != nil {
		t.Fatalf("stop from idle: %v", err)
	}
	_ = m.Start(context.Background())
	waitFor(t, "error", func() bool { return m.State() == StateError })
	if m.LastError().Kind != errorsx.KindUnknown {
		t.Fatalf("expected unknown kind, got %s", m.LastError().Kind)
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("stop from error: %v", err)
	}
	if m.State() != StateIdle || !m.LastError().IsZero() {
		t.Fatalf("expected clean IDLE, got %s %+v", m.State(), m.LastError())
	}
}

func TestTransitionTable(t *testing.T) {
	if transitionValid(StateIdle, StateActive) {
		t.Fatalf("idle must not jump to active")
	}
	if !transitionValid(StateError, StateIdle) {
		t.Fatalf("error must return to idle")
	}
	err := &InvalidTransitionError{From: StateStopped, To: StateActive}
	if err.Error() != "invalid state transition from STOPPED to ACTIVE" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

type funcProcessor struct {
	trace   *stepLog
	process func(int)
}

func (p *funcProcessor) Process(v int) { p.process(v) }

func (p *funcProcessor) Close() error {
	p.trace.add("close")
	return nil
}

func (s *fakeStream) subscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onSample != nil
}

func activeMachine(t *testing.T, tr *stepLog, stream *fakeStream, proc *funcProcessor) *Machine[int] {
	t.Helper()
	gate := make(chan struct{})
	close(gate)
	m := NewMachine(Config[int]{
		Modality:     events.ModalityGesture,
		Acquirer:     &gatedAcquirer{gate: gate, stream: stream},
		Timeout:      time.Minute,
		NewProcessor: func() Processor[int] { return proc },
	})
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	waitFor(t, "subscription", stream.subscribed)
	return m
}

func TestStopWaitsForSampleInFlight(t *testing.T) {
	tr := &stepLog{}
	stream := &fakeStream{trace: tr}
	entered := make(chan struct{})
	release := make(chan struct{})
	var forwarded atomic.Int32
	proc := &funcProcessor{trace: tr}
	m := activeMachine(t, tr, stream, proc)
	proc.process = func(int) {
		close(entered)
		<-release
		m.Forward(func() { forwarded.Add(1) })
		tr.add("processed")
	}

	go stream.emit(1)
	<-entered
	stopped := make(chan error, 1)
	go func() { stopped <- m.Stop() }()

	select {
	case <-stopped:
		t.Fatalf("stop returned while a sample was being processed")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("stop error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("stop never returned")
	}

	if n := forwarded.Load(); n != 0 {
		t.Fatalf("stopped session forwarded %d calls", n)
	}
	want := []string{"processed", "release", "close", "unsubscribe"}
	got := tr.list()
	if len(got) != len(want) {
		t.Fatalf("expected steps %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected steps %v, got %v", want, got)
		}
	}
	if m.State() != StateIdle {
		t.Fatalf("expected IDLE, got %s", m.State())
	}
}

func TestStopFromForwardedCall(t *testing.T) {
	tr := &stepLog{}
	stream := &fakeStream{trace: tr}
	var forwarded atomic.Int32
	proc := &funcProcessor{trace: tr}
	m := activeMachine(t, tr, stream, proc)
	proc.process = func(int) {
		m.Forward(func() {
			if err := m.Stop(); err != nil {
				t.Errorf("stop error: %v", err)
			}
			tr.add("stopped")
		})
		m.Forward(func() { forwarded.Add(1) })
		tr.add("processed")
	}

	done := make(chan struct{})
	go func() {
		stream.emit(1)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("stop from a forwarded call deadlocked")
	}

	if n := forwarded.Load(); n != 0 {
		t.Fatalf("stopped session forwarded %d calls", n)
	}
	want := []string{"release", "stopped", "processed", "close", "unsubscribe"}
	got := tr.list()
	if len(got) != len(want) {
		t.Fatalf("expected steps %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected steps %v, got %v", want, got)
		}
	}
	if m.State() != StateIdle || !stream.isReleased() {
		t.Fatalf("expected released stream and IDLE, got %s", m.State())
	}
}
