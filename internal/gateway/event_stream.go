package gateway

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/pawchat/internal/codec"
	"github.com/mbeoliero/pawchat/internal/config"
	"github.com/mbeoliero/pawchat/pkg/constant"
)

// StreamHandler receives normalized server-sent events
type StreamHandler interface {
	OnStreamEvent(ctx context.Context, evt codec.StreamEvent)
}

// Authorizer supplies the session headers of outbound requests
type Authorizer interface {
	SessionHeaders() map[string]string
}

// EventStream is the per-session server-sent event listener. It does not
// reconnect on its own; callers use ReconnectIfDead.
type EventStream struct {
	baseURL    string
	path       string
	maxLine    int
	httpClient *http.Client
	auth       Authorizer
	handler    StreamHandler

	mu      sync.Mutex
	userId  int64
	connId  string
	cancel  context.CancelFunc
	done    chan struct{}
	alive   atomic.Bool
	lastErr error
}

// NewEventStream creates an SSE listener rooted at baseURL. The stream is
// read with net/http so that canceling its context interrupts a blocked read.
func NewEventStream(baseURL string, cfg config.SSEConfig, auth Authorizer, handler StreamHandler) (*EventStream, error) {
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	maxLine := cfg.MaxLineSize
	if maxLine <= 0 {
		maxLine = 1 << 20
	}
	if !strings.Contains(cfg.Path, constant.SSEUserIdTemplate) {
		return nil, fmt.Errorf("sse path must contain %s: %q", constant.SSEUserIdTemplate, cfg.Path)
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout}).DialContext,
		ResponseHeaderTimeout: dialTimeout,
	}
	return &EventStream{
		baseURL:    strings.TrimRight(baseURL, "/"),
		path:       cfg.Path,
		maxLine:    maxLine,
		httpClient: &http.Client{Transport: transport},
		auth:       auth,
		handler:    handler,
	}, nil
}

// SetHandler replaces the event handler used by the next connection
func (s *EventStream) SetHandler(handler StreamHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// URL returns the stream URL for a user
func (s *EventStream) URL(userId int64) string {
	return s.baseURL + strings.ReplaceAll(s.path, constant.SSEUserIdTemplate, strconv.FormatInt(userId, 10))
}

// Connect opens the stream for userId. An alive stream for the same user is
// kept; a stream for another user is closed first.
func (s *EventStream) Connect(ctx context.Context, userId int64) error {
	if userId == 0 {
		return ErrNoUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.alive.Load() && s.userId == userId {
		return nil
	}
	s.closeLocked()

	loopCtx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(loopCtx, http.MethodGet, s.URL(userId), nil)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to build event stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.auth != nil {
		for k, v := range s.auth.SessionHeaders() {
			req.Header.Set(k, v)
		}
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		cancel()
		s.lastErr = err
		return fmt.Errorf("failed to open event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		cancel()
		s.lastErr = fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
		return s.lastErr
	}

	s.userId = userId
	s.connId = uuid.NewString()
	s.cancel = cancel
	s.done = make(chan struct{})
	s.lastErr = nil
	s.alive.Store(true)

	log.CtxInfo(ctx, "event stream connected: user_id=%d, conn_id=%s", userId, s.connId)
	go s.readLoop(loopCtx, resp.Body, s.handler, s.connId, s.done)
	return nil
}

// readLoop dispatches events until the body ends or the stream is closed
func (s *EventStream) readLoop(ctx context.Context, body io.ReadCloser, handler StreamHandler, connId string, done chan struct{}) {
	defer func() {
		_ = body.Close()
		if r := recover(); r != nil {
			s.setErr(connId, ErrPanic)
			log.CtxError(ctx, "event stream read loop panic: conn_id=%s, error=%v", connId, r)
		}
		s.markDead(connId)
		close(done)
	}()

	err := readEvents(body, s.maxLine, func(raw sseEvent) {
		evt, err := codec.DecodeStreamEvent(raw.Name, raw.Data)
		if err != nil {
			log.CtxWarn(ctx, "drop malformed stream event: conn_id=%s, event=%s, error=%v", connId, raw.Name, err)
			return
		}
		if evt.Kind == codec.KindUnknown {
			log.CtxDebug(ctx, "ignore stream event: conn_id=%s, event=%s, type=%s", connId, raw.Name, evt.Type)
			return
		}
		if handler != nil {
			handler.OnStreamEvent(ctx, evt)
		}
	})

	if ctx.Err() != nil {
		return
	}
	if err == nil {
		err = ErrConnClosed
	}
	s.setErr(connId, err)
	log.CtxWarn(ctx, "event stream ended: conn_id=%s, error=%v", connId, err)
}

func (s *EventStream) setErr(connId string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connId == connId {
		s.lastErr = err
	}
}

func (s *EventStream) markDead(connId string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connId == connId {
		s.alive.Store(false)
	}
}

// Disconnect closes the stream and waits for the read loop to stop
func (s *EventStream) Disconnect() {
	s.mu.Lock()
	done := s.closeLocked()
	s.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-time.After(time.Second):
			log.Warn("event stream read loop did not stop in time")
		}
	}
}

// closeLocked cancels the current connection; s.mu must be held
func (s *EventStream) closeLocked() chan struct{} {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	s.alive.Store(false)
	done := s.done
	s.cancel = nil
	s.connId = ""
	return done
}

// Alive reports whether the stream is connected
func (s *EventStream) Alive() bool {
	return s.alive.Load()
}

// UserId returns the user the stream was last opened for
func (s *EventStream) UserId() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userId
}

// LastError returns why the stream last failed
func (s *EventStream) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// ReconnectIfDead reopens the stream for the last user when it is down
func (s *EventStream) ReconnectIfDead(ctx context.Context) error {
	if s.Alive() {
		return nil
	}
	userId := s.UserId()
	if userId == 0 {
		return ErrNoUser
	}
	log.CtxInfo(ctx, "event stream dead, reconnecting: user_id=%d", userId)
	return s.Connect(ctx, userId)
}
