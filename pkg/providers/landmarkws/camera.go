// Package landmarkws reads hand landmarks from a tracking sidecar over a
// websocket. The sidecar owns the physical camera; opening the socket is
// what acquires it.
package landmarkws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harunnryd/mimo/pkg/gesture"
	"github.com/harunnryd/mimo/pkg/logging"
	"github.com/harunnryd/mimo/pkg/platform"
	"github.com/harunnryd/mimo/pkg/resilience"
)

const DefaultURL = "ws://127.0.0.1:8765/hands"

type Config struct {
	URL           string        `mapstructure:"url"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
	RequireSecure bool          `mapstructure:"require_secure"`
	// DialRetries is how many more times a refused connection is tried,
	// RetryBackoff apart. A sidecar that is still starting refuses.
	DialRetries  int           `mapstructure:"dial_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	// Constraints are sent to the sidecar as query parameters.
	Constraints platform.VideoConstraints `mapstructure:"-"`
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.Constraints == (platform.VideoConstraints{}) {
		c.Constraints = platform.DefaultVideoConstraints()
	}
	return c
}

// Acquirer dials the sidecar for every acquisition.
type Acquirer struct {
	cfg    Config
	dialer *websocket.Dialer
	retry  resilience.RetryPolicy
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Acquirer {
	cfg = cfg.withDefaults()
	retry := resilience.NewRetryPolicy(cfg.DialRetries, cfg.RetryBackoff)
	retry.Retryable = func(err error) bool { return errors.Is(err, syscall.ECONNREFUSED) }
	return &Acquirer{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.DialTimeout,
		},
		retry:  retry,
		logger: logging.NewComponentLogger(logger, "landmark_ws"),
	}
}

// Endpoint returns the URL dialled, constraints included.
func (a *Acquirer) Endpoint() (*url.URL, error) {
	u, err := url.Parse(a.cfg.URL)
	if err != nil {
		return nil, platform.NewError("TypeError", fmt.Sprintf("invalid landmark service url: %v", err))
	}
	c := a.cfg.Constraints
	q := u.Query()
	q.Set("width", strconv.Itoa(c.IdealWidth))
	q.Set("height", strconv.Itoa(c.IdealHeight))
	q.Set("max_width", strconv.Itoa(c.MaxWidth))
	q.Set("max_height", strconv.Itoa(c.MaxHeight))
	q.Set("facing_mode", c.FacingMode)
	u.RawQuery = q.Encode()
	return u, nil
}

func (a *Acquirer) Acquire(ctx context.Context) (platform.Stream[gesture.Frame], error) {
	u, err := a.Endpoint()
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "wss":
	case "ws":
		if a.cfg.RequireSecure {
			return nil, platform.NewError("SecurityError", "camera access requires a secure (wss) connection")
		}
	default:
		return nil, platform.NewError("TypeError", "unsupported landmark service scheme "+u.Scheme)
	}

	a.logger.Info("landmark_ws_dialing", slog.String("url", u.Redacted()))
	var (
		conn *websocket.Conn
		resp *http.Response
	)
	err = a.retry.Do(ctx, func(ctx context.Context) error {
		var derr error
		conn, resp, derr = a.dialer.DialContext(ctx, u.String(), nil)
		if derr != nil && errors.Is(derr, syscall.ECONNREFUSED) {
			a.logger.Debug("landmark_ws_refused")
		}
		return derr
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, dialError(resp, err)
	}
	a.logger.Info("landmark_ws_connected")
	return &Stream{conn: conn, logger: a.logger}, nil
}

// dialError names a failed dial the way a camera request failure is named.
func dialError(resp *http.Response, err error) error {
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return platform.NewError("NotAllowedError", "camera access was refused by the landmark service")
		case http.StatusNotFound, http.StatusServiceUnavailable:
			return platform.NewError("NotFoundError", "the landmark service has no camera")
		case http.StatusConflict, http.StatusLocked:
			return platform.NewError("NotReadableError", "the camera is in use by another application")
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			return platform.NewError("OverconstrainedError", "the camera cannot satisfy the requested resolution")
		}
		return platform.NewError("UnknownError", fmt.Sprintf("landmark service answered %s", resp.Status))
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return platform.NewError("NotFoundError", "the landmark service is not running")
	}
	return platform.NewError("UnknownError", err.Error())
}

// wireFrame is one sidecar message.
type wireFrame struct {
	Hands [][]gesture.Point `json:"hands"`
	TS    int64             `json:"ts"`
}

func (w wireFrame) frame() gesture.Frame {
	f := gesture.Frame{At: time.Now()}
	if w.TS > 0 {
		f.At = time.UnixMilli(w.TS)
	}
	for _, h := range w.Hands {
		f.Hands = append(f.Hands, gesture.Landmarks(h))
	}
	return f
}

// Stream is an open sidecar connection.
type Stream struct {
	conn   *websocket.Conn
	logger *slog.Logger

	mu          sync.Mutex
	onSample    func(gesture.Frame)
	onDone      func(error)
	released    bool
	reading     bool
	releaseOnce sync.Once
}

func (s *Stream) Subscribe(onSample func(gesture.Frame), onDone func(error)) platform.Unsubscribe {
	s.mu.Lock()
	s.onSample = onSample
	s.onDone = onDone
	start := !s.reading
	s.reading = true
	s.mu.Unlock()
	if start {
		go s.readLoop()
	}
	return func() {
		s.mu.Lock()
		s.onSample = nil
		s.onDone = nil
		s.mu.Unlock()
	}
}

func (s *Stream) readLoop() {
	for {
		msgType, msg, err := s.conn.ReadMessage()
		if err != nil {
			s.end(err)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var w wireFrame
		if err := json.Unmarshal(msg, &w); err != nil {
			s.logger.Warn("landmark_ws_bad_frame", slog.String("error", err.Error()))
			continue
		}
		s.mu.Lock()
		fn := s.onSample
		released := s.released
		s.mu.Unlock()
		if released {
			return
		}
		if fn != nil {
			fn(w.frame())
		}
	}
}

func (s *Stream) end(err error) {
	s.mu.Lock()
	fn := s.onDone
	released := s.released
	s.onDone = nil
	s.mu.Unlock()
	if released || fn == nil {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.logger.Info("landmark_ws_closed_by_service")
		fn(nil)
		return
	}
	s.logger.Warn("landmark_ws_read_failed", slog.String("error", err.Error()))
	fn(platform.NewError("AbortError", err.Error()))
}

// Release closes the connection, which frees the camera on the sidecar.
func (s *Stream) Release() error {
	var err error
	s.releaseOnce.Do(func() {
		s.mu.Lock()
		s.released = true
		s.mu.Unlock()
		deadline := time.Now().Add(time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "released"), deadline)
		err = s.conn.Close()
		s.logger.Info("landmark_ws_released")
	})
	return err
}

var _ platform.Acquirer[gesture.Frame] = (*Acquirer)(nil)
