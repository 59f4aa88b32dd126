package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harunnryd/mimo/pkg/gesture"
	"github.com/harunnryd/mimo/pkg/speech"
)

func TestHandClassifies(t *testing.T) {
	for _, label := range []gesture.Label{gesture.ThumbsUp, gesture.Peace, gesture.Stop, gesture.OK, gesture.None} {
		if got := gesture.Classify(Hand(label)); got != label {
			t.Fatalf("expected %s, got %s", label, got)
		}
	}
}

func TestUtteranceFragments(t *testing.T) {
	frags := Utterance(3, "Parle-moi des couleurs")
	if len(frags) != 3 {
		t.Fatalf("expected 3 fragments, got %d", len(frags))
	}
	last := frags[len(frags)-1]
	if !last.Final || last.Text != "Parle-moi des couleurs" || last.Index != 3 {
		t.Fatalf("unexpected final fragment %+v", last)
	}
	if frags[0].Final {
		t.Fatalf("expected interim first")
	}
}

func TestStreamReplayAndRelease(t *testing.T) {
	acq := NewAcquirer(StreamConfig[speech.Fragment]{
		Samples: Utterance(0, "Bonjour"),
		End:     true,
	})
	st, err := acq.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire error: %v", err)
	}

	got := make(chan speech.Fragment, 4)
	done := make(chan error, 1)
	st.Subscribe(func(f speech.Fragment) { got <- f }, func(err error) { done <- err })

	select {
	case f := <-got:
		if f.Text != "Bonjour" || !f.Final {
			t.Fatalf("unexpected fragment %+v", f)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for fragment")
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected normal end, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for end")
	}

	if err := st.Release(); err != nil {
		t.Fatalf("release error: %v", err)
	}
	if !acq.Current().Released() {
		t.Fatalf("expected released stream")
	}
	if acq.Current().Push(speech.Final(1, "encore")) {
		t.Fatalf("push after release must fail")
	}
}

func TestAcquireBlockHonoursContext(t *testing.T) {
	acq := NewAcquirer(StreamConfig[gesture.Frame]{Block: true})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := acq.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if acq.Acquisitions() != 1 {
		t.Fatalf("expected one acquisition call")
	}
}
