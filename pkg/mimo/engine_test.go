package mimo

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/mimo/pkg/errorsx"
	"github.com/harunnryd/mimo/pkg/events"
	"github.com/harunnryd/mimo/pkg/journal"
	"github.com/harunnryd/mimo/pkg/lifecycle"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type replies struct {
	mu  sync.Mutex
	got map[string]string
}

func (r *replies) record(ev events.DomainEvent, reply string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.got == nil {
		r.got = make(map[string]string)
	}
	r.got[ev.Text()] = reply
}

func (r *replies) get(text string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.got[text]
	return v, ok
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEngineEndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Gesture.Settings = map[string]any{"script": []any{"thumbs_up", "thumbs_up", "peace"}}
	cfg.Speech.Settings = map[string]any{"script": "Bonjour mon ami", "end": true}
	cfg.Observability.MetricsJSONL = filepath.Join(dir, "metrics", "events.jsonl")
	cfg.Observability.TimelineDir = filepath.Join(dir, "timelines")
	cfg.Observability.FrameSampleRate = 1

	rep := &replies{}
	e, err := NewEngine(EngineOptions{Config: cfg, Logger: quietLogger(), OnReply: rep.record})
	if err != nil {
		t.Fatalf("engine error: %v", err)
	}

	if err := e.Gesture().Start(context.Background()); err != nil {
		t.Fatalf("gesture start: %v", err)
	}
	if err := e.Speech().Start(context.Background()); err != nil {
		t.Fatalf("speech start: %v", err)
	}
	waitFor(t, "speech session to end", func() bool { return e.Speech().State() == lifecycle.StateIdle })
	waitFor(t, "replies", func() bool {
		_, a := rep.get("👍 Pouce levé")
		_, b := rep.get("✌️ Victoire")
		_, c := rep.get("Bonjour mon ami")
		return a && b && c
	})
	if r, _ := rep.get("✌️ Victoire"); r != "Victoire! Bravo champion! 🏆" {
		t.Fatalf("unexpected reply %q", r)
	}

	if _, err := e.Gesture().Demo("coeur"); err != nil {
		t.Fatalf("demo error: %v", err)
	}
	if _, err := e.Speech().Submit("merci"); err != nil {
		t.Fatalf("submit error: %v", err)
	}
	waitFor(t, "demo and submit replies", func() bool {
		_, a := rep.get("❤️ Cœur - Je t'aime!")
		_, b := rep.get("merci")
		return a && b
	})
	if r, _ := rep.get("merci"); r != "De rien! Je suis toujours là pour t'aider! 💙" {
		t.Fatalf("unexpected reply %q", r)
	}

	evs, err := journal.Collect(context.Background(), e.Journal())
	if err != nil {
		t.Fatalf("collect error: %v", err)
	}
	if len(evs) != 5 {
		t.Fatalf("expected 5 journaled events, got %d", len(evs))
	}

	if err := e.Gesture().Stop(); err != nil {
		t.Fatalf("gesture stop: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("close error: %v", err)
	}

	sessions := e.Sessions()
	if len(sessions) != 2 {
		t.Fatalf("expected gesture and speech sessions, got %d", len(sessions))
	}

	f, err := os.Open(cfg.Observability.MetricsJSONL)
	if err != nil {
		t.Fatalf("open metrics: %v", err)
	}
	defer f.Close()
	frames := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if strings.Contains(sc.Text(), `"gesture_frame"`) {
			frames++
		}
	}
	if frames != 3 {
		t.Fatalf("expected 3 gesture_frame lines, got %d", frames)
	}

	entries, err := os.ReadDir(cfg.Observability.TimelineDir)
	if err != nil || len(entries) != 2 {
		t.Fatalf("expected two timelines, got %d (%v)", len(entries), err)
	}
}

func TestEngineJournalsInOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Journal.InMemory = true
	log := events.NewLog()
	e, err := NewEngine(EngineOptions{Config: cfg, Logger: quietLogger(), Sinks: []events.Sink{log}})
	if err != nil {
		t.Fatalf("engine error: %v", err)
	}
	defer e.Close()

	for _, name := range []string{"stop", "ok", "bonjour"} {
		if _, err := e.Gesture().Demo(name); err != nil {
			t.Fatalf("demo %s: %v", name, err)
		}
	}
	waitFor(t, "events delivered", func() bool { return log.Len() == 3 })

	evs, err := journal.Collect(context.Background(), e.Journal())
	if err != nil {
		t.Fatalf("collect error: %v", err)
	}
	want := []string{"✋ Stop - D'accord!", "👌 OK - Parfait!", "👋 Bonjour - Salut!"}
	if len(evs) != len(want) {
		t.Fatalf("expected %d journaled events, got %d", len(want), len(evs))
	}
	for i, ev := range evs {
		if ev.Text() != want[i] || ev.ID() != log.Events()[i].ID() {
			t.Fatalf("event %d: got %q", i, ev.Text())
		}
	}
}

func TestEngineSurfacesProviderFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gesture.Settings = map[string]any{"fail": "NotReadableError"}
	var mu sync.Mutex
	var states []lifecycle.State
	e, err := NewEngine(EngineOptions{
		Config: cfg,
		Logger: quietLogger(),
		Listeners: []lifecycle.Listener{lifecycle.ListenerFunc(func(ev lifecycle.StateChange) {
			mu.Lock()
			states = append(states, ev.ToState)
			mu.Unlock()
		})},
	})
	if err != nil {
		t.Fatalf("engine error: %v", err)
	}
	defer e.Close()

	_ = e.Gesture().Start(context.Background())
	waitFor(t, "error", func() bool { return e.Gesture().State() == lifecycle.StateError })
	if e.Gesture().LastError().Kind != errorsx.KindDeviceBusy {
		t.Fatalf("expected device busy, got %s", e.Gesture().LastError().Kind)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(states) != 2 {
		t.Fatalf("expected ACQUIRING then ERROR, got %v", states)
	}
}

func TestEngineRejectsBadSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gesture.Settings = map[string]any{"script": []any{"wave"}}
	if _, err := NewEngine(EngineOptions{Config: cfg, Logger: quietLogger()}); err == nil {
		t.Fatalf("expected unknown gesture to fail")
	}
	cfg = DefaultConfig()
	cfg.Gesture.Provider = "kinect"
	if _, err := NewEngine(EngineOptions{Config: cfg, Logger: quietLogger()}); err == nil {
		t.Fatalf("expected unknown provider to fail")
	}
	cfg = DefaultConfig()
	cfg.Speech.Settings = map[string]any{"colour": "blue"}
	if _, err := NewEngine(EngineOptions{Config: cfg, Logger: quietLogger()}); err == nil {
		t.Fatalf("expected unknown setting to fail")
	}
}
