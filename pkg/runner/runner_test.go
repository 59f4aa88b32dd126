package runner

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunDrainsOnCancel(t *testing.T) {
	var drained, started, stopped atomic.Int32
	var out bytes.Buffer
	r := NewLifecycleRunner(Options{
		Drainer: DrainerFunc(func() error { drained.Add(1); return nil }),
		Hooks: Hooks{
			OnStart: func() { started.Add(1) },
			OnStop:  func() { stopped.Add(1) },
		},
		Banner: &out,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for r.State() != StateRunning {
		if time.Now().After(deadline) {
			t.Fatalf("runner never started")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run error: %v", err)
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("second stop error: %v", err)
	}
	if drained.Load() != 1 || started.Load() != 1 || stopped.Load() != 1 {
		t.Fatalf("expected one drain/start/stop, got %d/%d/%d", drained.Load(), started.Load(), stopped.Load())
	}
	if r.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", r.State())
	}
	if !strings.Contains(out.String(), "Version: "+EngineVersion) {
		t.Fatalf("expected banner, got %q", out.String())
	}
	if err := r.Run(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected already started, got %v", err)
	}
}

func TestDrainTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	r := NewLifecycleRunner(Options{
		Drainer: DrainerFunc(func() error { <-block; return nil }),
		Timeout: 20 * time.Millisecond,
	})
	if err := r.Stop(); !errors.Is(err, ErrDrainTimeout) {
		t.Fatalf("expected drain timeout, got %v", err)
	}
}

func TestDrainErrorIsReturned(t *testing.T) {
	want := errors.New("journal closed twice")
	r := NewLifecycleRunner(Options{Drainer: DrainerFunc(func() error { return want })})
	if err := r.Stop(); !errors.Is(err, want) {
		t.Fatalf("expected drain error, got %v", err)
	}
}
