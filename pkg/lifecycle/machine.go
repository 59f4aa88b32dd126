package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/harunnryd/mimo/pkg/errorsx"
	"github.com/harunnryd/mimo/pkg/events"
	"github.com/harunnryd/mimo/pkg/platform"
)

// DefaultAcquireTimeout bounds how long a resource request may stay unanswered.
const DefaultAcquireTimeout = 5 * time.Second

// Processor consumes the samples of one active session. A fresh processor is
// created for every activation and closed when the session ends.
type Processor[S any] interface {
	Process(sample S)
	Close() error
}

// Config describes one modality's machine.
type Config[S any] struct {
	Modality events.Modality
	Acquirer platform.Acquirer[S]
	// Capability is the result of the host capability probe.
	Capability platform.Capability
	Timeout    time.Duration
	// NewProcessor builds the processing stage for a new session.
	NewProcessor func() Processor[S]
	Logger       *slog.Logger
	Listeners    []Listener
}

// Machine owns the capture resource of one modality and drives it through
// Idle, Acquiring, Active, Stopped and Error.
//
// Every acquisition is tagged with a generation number. Stop, timeouts and
// new starts bump or invalidate the generation, so a late acquisition result
// or a late sample from a torn-down stream is recognised and discarded.
type Machine[S any] struct {
	mu        sync.Mutex
	cfg       Config[S]
	logger    *slog.Logger
	listeners []Listener

	state  State
	record errorsx.Record
	gen    uint64

	cancel      context.CancelFunc
	timer       *time.Timer
	startedAt   time.Time
	stream      platform.Stream[S]
	unsubscribe platform.Unsubscribe
	proc        Processor[S]

	// procMu keeps sample processing strictly sequential. busy, busyGen and
	// forwarding describe the sample in flight; idle is signalled when it
	// returns. handoff holds the teardown work left to that sample.
	procMu     sync.Mutex
	busy       bool
	busyGen    uint64
	forwarding int
	handoff    []teardown[S]
	idle       *sync.Cond
}

func NewMachine[S any](cfg Config[S]) *Machine[S] {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultAcquireTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Machine[S]{
		cfg:    cfg,
		logger: logger.With(slog.String("modality", string(cfg.Modality))),
		state:  StateIdle,
	}
	m.idle = sync.NewCond(&m.mu)
	m.listeners = append(m.listeners, cfg.Listeners...)
	return m
}

// AddListener registers a listener for state change events.
func (m *Machine[S]) AddListener(listener Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, listener)
}

// State returns the current state.
func (m *Machine[S]) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError returns the record attached to the Error state, or a zero Record.
func (m *Machine[S]) LastError() errorsx.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record
}

func (m *Machine[S]) Modality() events.Modality { return m.cfg.Modality }

// Start requests the resource. It does not wait for the host's answer: the
// outcome is reported through state changes. Calling Start while Acquiring
// or Active does nothing. From Error it retries from Idle.
//
// The returned error is non-nil only when the capability probe rules out
// acquisition; the machine is then in the Error state.
func (m *Machine[S]) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	m.mu.Lock()
	var changes []StateChange
	switch m.state {
	case StateAcquiring, StateActive:
		m.mu.Unlock()
		m.logger.Debug("media_start_ignored", slog.String("state", m.State().String()))
		return nil
	case StateError:
		changes = append(changes, m.transitionLocked(StateIdle, "retry", errorsx.Record{}))
	}

	changes = append(changes, m.transitionLocked(StateAcquiring, "start requested", errorsx.Record{}))
	if rec := errorsx.FromCapability(m.cfg.Modality, m.cfg.Capability); !rec.IsZero() {
		changes = append(changes, m.transitionLocked(StateError, "capability unavailable", rec))
		m.mu.Unlock()
		m.notify(changes)
		recordFailure(ctx, m.cfg.Modality, rec.Kind)
		m.logger.Warn("media_unavailable", slog.String("kind", string(rec.Kind)))
		return rec
	}

	m.gen++
	gen := m.gen
	acqCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.startedAt = time.Now()
	m.timer = time.AfterFunc(m.cfg.Timeout, func() { m.onTimeout(gen) })
	m.mu.Unlock()

	m.notify(changes)
	m.logger.Info("media_acquire_started", slog.Duration("timeout", m.cfg.Timeout))
	go m.acquire(acqCtx, gen)
	return nil
}

func (m *Machine[S]) acquire(ctx context.Context, gen uint64) {
	ctx, span := tracer.Start(ctx, "acquire media",
		trace.WithAttributes(attribute.String("modality", string(m.cfg.Modality))))
	defer span.End()

	stream, err := m.cfg.Acquirer.Acquire(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	m.onAcquired(ctx, gen, stream, err)
}

func (m *Machine[S]) onAcquired(ctx context.Context, gen uint64, stream platform.Stream[S], err error) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateAcquiring {
		m.mu.Unlock()
		if stream != nil {
			if rerr := stream.Release(); rerr != nil {
				m.logger.Warn("media_release_failed", slog.String("error", rerr.Error()))
			}
			m.logger.Info("media_late_acquisition_released")
		}
		return
	}
	m.stopTimerLocked()
	elapsed := time.Since(m.startedAt)

	if err != nil || stream == nil {
		m.cancelLocked()
		if err == nil {
			err = errors.New("acquirer returned no stream")
		}
		rec := errorsx.Classify(m.cfg.Modality, err)
		changes := []StateChange{m.transitionLocked(StateError, "acquisition failed", rec)}
		m.mu.Unlock()
		m.notify(changes)
		recordFailure(ctx, m.cfg.Modality, rec.Kind)
		m.logger.Warn("media_acquire_failed",
			slog.String("kind", string(rec.Kind)),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", elapsed))
		return
	}

	proc := m.newProcessor()
	m.stream = stream
	m.proc = proc
	changes := []StateChange{m.transitionLocked(StateActive, "resource granted", errorsx.Record{})}
	m.mu.Unlock()
	m.notify(changes)

	unsubscribe := stream.Subscribe(m.sampleHandler(gen), m.doneHandler(gen))

	m.mu.Lock()
	if gen != m.gen {
		// Stopped while subscribing; the stream is already released.
		m.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
		return
	}
	m.unsubscribe = unsubscribe
	m.mu.Unlock()

	recordAcquired(ctx, m.cfg.Modality)
	m.logger.Info("media_acquired", slog.Duration("elapsed", elapsed))
}

func (m *Machine[S]) newProcessor() Processor[S] {
	if m.cfg.NewProcessor == nil {
		return nopProcessor[S]{}
	}
	if p := m.cfg.NewProcessor(); p != nil {
		return p
	}
	return nopProcessor[S]{}
}

func (m *Machine[S]) sampleHandler(gen uint64) func(S) {
	return func(sample S) {
		m.procMu.Lock()
		defer m.procMu.Unlock()

		m.mu.Lock()
		if gen != m.gen || m.state != StateActive {
			m.mu.Unlock()
			return
		}
		proc := m.proc
		m.busy, m.busyGen = true, gen
		m.mu.Unlock()

		defer m.sampleDone()
		proc.Process(sample)
	}
}

// sampleDone wakes a Stop waiting for the sample and finishes a teardown
// that was handed to it.
func (m *Machine[S]) sampleDone() {
	m.mu.Lock()
	m.busy = false
	handoff := m.handoff
	m.handoff = nil
	m.idle.Broadcast()
	m.mu.Unlock()
	for _, td := range handoff {
		if err := td.run(); err != nil {
			m.logger.Warn("media_teardown_failed", slog.String("error", err.Error()))
		}
	}
}

// Forward runs fn on behalf of the sample being processed. Once the session
// of that sample is stopped, fn is skipped. Processors route their outbound
// calls through Forward; a Stop reached from inside fn does not wait for the
// sample that made the call.
func (m *Machine[S]) Forward(fn func()) {
	m.mu.Lock()
	if m.busy && m.busyGen != m.gen {
		m.mu.Unlock()
		return
	}
	m.forwarding++
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.forwarding--
		m.mu.Unlock()
	}()
	fn()
}

func (m *Machine[S]) doneHandler(gen uint64) func(error) {
	return func(err error) {
		m.mu.Lock()
		if gen != m.gen || m.state != StateActive {
			m.mu.Unlock()
			return
		}
		td := m.detachLocked()
		var changes []StateChange
		if err == nil {
			changes = append(changes,
				m.transitionLocked(StateStopped, "source ended", errorsx.Record{}),
				m.transitionLocked(StateIdle, "source ended", errorsx.Record{}))
		} else {
			rec := errorsx.Classify(m.cfg.Modality, err)
			changes = append(changes, m.transitionLocked(StateError, "source failed", rec))
			recordFailure(context.Background(), m.cfg.Modality, rec.Kind)
			m.logger.Warn("media_source_failed", slog.String("kind", string(rec.Kind)), slog.String("error", err.Error()))
		}
		td = m.settleLocked(td)
		m.mu.Unlock()

		if terr := td.run(); terr != nil {
			m.logger.Warn("media_teardown_failed", slog.String("error", terr.Error()))
		}
		m.notify(changes)
	}
}

func (m *Machine[S]) onTimeout(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateAcquiring {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.cancelLocked()
	err := errorsx.New(errorsx.KindTimeout, fmt.Sprintf("no answer from the device within %s", m.cfg.Timeout))
	rec := errorsx.Classify(m.cfg.Modality, err)
	changes := []StateChange{m.transitionLocked(StateError, "acquisition timed out", rec)}
	m.mu.Unlock()

	m.notify(changes)
	recordFailure(context.Background(), m.cfg.Modality, rec.Kind)
	m.logger.Warn("media_acquire_timeout", slog.Duration("timeout", m.cfg.Timeout))
}

// Stop releases whatever the machine holds and returns it to Idle. It is safe
// from any state and idempotent. A pending acquisition is abandoned; if it
// later succeeds, its resource is released immediately. A sample being
// processed is waited for, so no processor output follows the return of Stop.
func (m *Machine[S]) Stop() error {
	m.mu.Lock()
	var (
		changes []StateChange
		td      teardown[S]
	)
	switch m.state {
	case StateIdle, StateStopped:
		m.mu.Unlock()
		return nil
	case StateAcquiring:
		m.gen++
		m.stopTimerLocked()
		m.cancelLocked()
		changes = append(changes,
			m.transitionLocked(StateStopped, "stop requested", errorsx.Record{}),
			m.transitionLocked(StateIdle, "stop requested", errorsx.Record{}))
	case StateActive:
		changes = append(changes,
			m.transitionLocked(StateStopped, "stop requested", errorsx.Record{}),
			m.transitionLocked(StateIdle, "stop requested", errorsx.Record{}))
		td = m.settleLocked(m.detachLocked())
	case StateError:
		changes = append(changes, m.transitionLocked(StateIdle, "error dismissed", errorsx.Record{}))
	}
	m.mu.Unlock()

	err := td.run()
	m.notify(changes)
	m.logger.Info("media_stopped")
	return err
}

// detachLocked invalidates the current generation and hands the held
// resources to the caller for release outside the lock.
func (m *Machine[S]) detachLocked() teardown[S] {
	m.gen++
	m.stopTimerLocked()
	m.cancelLocked()
	td := teardown[S]{stream: m.stream, proc: m.proc, unsubscribe: m.unsubscribe}
	m.stream = nil
	m.proc = nil
	m.unsubscribe = nil
	return td
}

// settleLocked decides who runs a detached teardown. With no sample in flight
// the caller runs all of it. A sample in flight is waited for, unless it is
// inside Forward: the caller may be that very call, so the resource is
// released by the caller and the rest is left to the sample.
func (m *Machine[S]) settleLocked(td teardown[S]) teardown[S] {
	if !m.busy {
		return td
	}
	if m.forwarding > 0 {
		m.handoff = append(m.handoff, teardown[S]{proc: td.proc, unsubscribe: td.unsubscribe})
		return teardown[S]{stream: td.stream}
	}
	for m.busy {
		m.idle.Wait()
	}
	return td
}

func (m *Machine[S]) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// cancelLocked ends the acquisition context. A granted stream keeps it alive
// until the session is torn down.
func (m *Machine[S]) cancelLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// transitionLocked moves to a new state. The table is enforced; a rejected
// transition is logged and leaves the state untouched.
func (m *Machine[S]) transitionLocked(to State, reason string, rec errorsx.Record) StateChange {
	from := m.state
	if !transitionValid(from, to) {
		err := &InvalidTransitionError{From: from, To: to}
		m.logger.Error("media_invalid_transition", slog.String("error", err.Error()))
		return StateChange{FromState: from, ToState: from, Timestamp: time.Now(), Reason: err.Error()}
	}
	m.state = to
	if to == StateError {
		m.record = rec
	} else {
		m.record = errorsx.Record{}
	}
	return StateChange{
		FromState: from,
		ToState:   to,
		Timestamp: time.Now(),
		Reason:    reason,
		Err:       rec,
	}
}

func (m *Machine[S]) notify(changes []StateChange) {
	if len(changes) == 0 {
		return
	}
	m.mu.Lock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, change := range changes {
		if change.FromState == change.ToState {
			continue
		}
		m.logger.Debug("media_state",
			slog.String("from", change.FromState.String()),
			slog.String("to", change.ToState.String()),
			slog.String("reason", change.Reason))
		for _, listener := range listeners {
			listener.OnStateChange(change)
		}
	}
}

// teardown releases the resource, then the processor, then the subscription.
type teardown[S any] struct {
	stream      platform.Stream[S]
	proc        Processor[S]
	unsubscribe platform.Unsubscribe
}

func (t teardown[S]) run() error {
	var errs []error
	if t.stream != nil {
		if err := t.stream.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release resource: %w", err))
		}
	}
	if t.proc != nil {
		if err := t.proc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close processor: %w", err))
		}
	}
	if t.unsubscribe != nil {
		t.unsubscribe()
	}
	return errors.Join(errs...)
}

type nopProcessor[S any] struct{}

func (nopProcessor[S]) Process(S)    {}
func (nopProcessor[S]) Close() error { return nil }
