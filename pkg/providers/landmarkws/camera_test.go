package landmarkws

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harunnryd/mimo/pkg/errorsx"
	"github.com/harunnryd/mimo/pkg/events"
	"github.com/harunnryd/mimo/pkg/gesture"
)

func handJSON(thumbUp bool) string {
	pts := make([]string, gesture.LandmarkCount)
	for i := range pts {
		pts[i] = `{"x":0.5,"y":0.5,"z":0}`
	}
	pts[gesture.ThumbIP] = `{"x":0.2,"y":0.5,"z":0}`
	if thumbUp {
		pts[gesture.ThumbTip] = `{"x":0.2,"y":0.3,"z":0}`
	} else {
		pts[gesture.ThumbTip] = `{"x":0.2,"y":0.7,"z":0}`
	}
	for _, tip := range []int{gesture.IndexTip, gesture.MiddleTip, gesture.RingTip, gesture.PinkyTip} {
		pts[tip-1] = `{"x":0.5,"y":0.5,"z":0}`
		pts[tip] = `{"x":0.5,"y":0.7,"z":0}`
	}
	return "[" + strings.Join(pts, ",") + "]"
}

func sidecar(query chan<- string, messages ...string) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if query != nil {
			query <- r.URL.RawQuery
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, m := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
		time.Sleep(50 * time.Millisecond)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStreamDeliversFrames(t *testing.T) {
	query := make(chan string, 1)
	srv := sidecar(query,
		`{"hands":[`+handJSON(true)+`],"ts":1700000000000}`,
		`not json`,
		`{"hands":[]}`,
	)
	defer srv.Close()

	a := New(Config{URL: wsURL(srv)}, nil)
	st, err := a.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire error: %v", err)
	}
	defer st.Release()

	q := <-query
	for _, want := range []string{"width=640", "height=480", "max_width=1280", "facing_mode=user"} {
		if !strings.Contains(q, want) {
			t.Fatalf("expected %q in query %q", want, q)
		}
	}

	var mu sync.Mutex
	var frames []gesture.Frame
	done := make(chan error, 1)
	st.Subscribe(func(f gesture.Frame) {
		mu.Lock()
		frames = append(frames, f)
		mu.Unlock()
	}, func(err error) { done <- err })

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected normal end, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for end of stream")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if got := gesture.Classify(frames[0].Hands[0]); got != gesture.ThumbsUp {
		t.Fatalf("expected thumbs_up, got %s", got)
	}
	if frames[0].At.UnixMilli() != 1700000000000 {
		t.Fatalf("expected frame timestamp kept")
	}
	if len(frames[1].Hands) != 0 {
		t.Fatalf("expected empty frame")
	}
}

func TestDialErrorsAreNamed(t *testing.T) {
	cases := map[int]errorsx.Kind{
		http.StatusForbidden:  errorsx.KindPermissionDenied,
		http.StatusNotFound:   errorsx.KindDeviceNotFound,
		http.StatusConflict:   errorsx.KindDeviceBusy,
		http.StatusBadRequest: errorsx.KindConstraintUnsatisfiable,
		http.StatusTeapot:     errorsx.KindUnknown,
	}
	for status, want := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		_, err := New(Config{URL: wsURL(srv)}, nil).Acquire(context.Background())
		srv.Close()
		if got := errorsx.Classify(events.ModalityGesture, err).Kind; got != want {
			t.Fatalf("status %d: expected %s, got %s (%v)", status, want, got, err)
		}
	}
}

func TestRequireSecure(t *testing.T) {
	_, err := New(Config{URL: "ws://127.0.0.1:1/hands", RequireSecure: true}, nil).Acquire(context.Background())
	if got := errorsx.Classify(events.ModalityGesture, err).Kind; got != errorsx.KindInsecureContext {
		t.Fatalf("expected insecure context, got %s", got)
	}
	_, err = New(Config{URL: "http://127.0.0.1:1/hands"}, nil).Acquire(context.Background())
	if got := errorsx.Classify(events.ModalityGesture, err).Kind; got != errorsx.KindUnsupported {
		t.Fatalf("expected unsupported, got %s", got)
	}
}

func TestReleaseStopsDelivery(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	st, err := New(Config{URL: wsURL(srv)}, nil).Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire error: %v", err)
	}
	ended := make(chan error, 1)
	st.Subscribe(func(gesture.Frame) {}, func(err error) { ended <- err })
	if err := st.Release(); err != nil {
		t.Fatalf("release error: %v", err)
	}
	if err := st.Release(); err != nil {
		t.Fatalf("second release error: %v", err)
	}
	select {
	case err := <-ended:
		t.Fatalf("onDone must not fire after release, got %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRefusedDialIsRetried(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	a := New(Config{URL: "ws://" + addr + "/hands", DialRetries: 2, RetryBackoff: 10 * time.Millisecond}, nil)
	start := time.Now()
	_, err = a.Acquire(context.Background())
	if got := errorsx.Classify(events.ModalityGesture, err).Kind; got != errorsx.KindDeviceNotFound {
		t.Fatalf("expected device not found, got %s (%v)", got, err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("expected two backoffs before giving up")
	}
}
