package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	errs "github.com/cloudwego/hertz/pkg/common/errors"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/mbeoliero/pawchat/internal/codec"
	"github.com/mbeoliero/pawchat/pkg/constant"
	"github.com/mbeoliero/pawchat/pkg/errcode"
	"github.com/mbeoliero/pawchat/pkg/idgen"
)

// Client is the REST client for the chat backend
type Client struct {
	baseURL    string
	httpClient *client.Client
	timeout    time.Duration
	dialTO     time.Duration
	writeTO    time.Duration
	opId       func() string

	mu        sync.RWMutex
	token     string
	cookie    string
	skew      time.Duration
	skewKnown bool
}

// ClientOption is a function to configure the client
type ClientOption func(*Client)

// WithHertzClient sets a custom Hertz client
func WithHertzClient(httpClient *client.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithToken sets the bearer token
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithCookie sets the session cookie header value
func WithCookie(cookie string) ClientOption {
	return func(c *Client) {
		c.cookie = cookie
	}
}

// WithTimeout bounds each request
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithDialTimeout bounds connection setup
func WithDialTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.dialTO = timeout
	}
}

// WithWriteTimeout bounds writing a request
func WithWriteTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.writeTO = timeout
	}
}

// WithOperationId replaces the generator of X-Operation-Id values
func WithOperationId(gen func() string) ClientOption {
	return func(c *Client) {
		c.opId = gen
	}
}

// NewClient creates a new REST client
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: 10 * time.Second,
		opId:    idgen.OperationId,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.dialTO <= 0 {
		c.dialTO = 5 * time.Second
	}
	if c.writeTO <= 0 {
		c.writeTO = c.timeout
	}

	if c.httpClient == nil {
		httpClient, err := client.NewClient(
			client.WithDialTimeout(c.dialTO),
			client.WithClientReadTimeout(c.timeout),
			client.WithWriteTimeout(c.writeTO),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create http client: %w", err)
		}
		c.httpClient = httpClient
	}

	return c, nil
}

// SetCredentials replaces the session credentials
func (c *Client) SetCredentials(token, cookie string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.cookie = cookie
}

// Token returns the current bearer token
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Cookie returns the current session cookie
func (c *Client) Cookie() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cookie
}

// HasCredentials reports whether a token or cookie is configured
func (c *Client) HasCredentials() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != "" || c.cookie != ""
}

// ClockSkew returns the backend clock minus the local clock, estimated from
// the Date header of the latest response that carried one
func (c *Client) ClockSkew() (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.skew, c.skewKnown
}

// observeDate updates the skew from a Date header. The header has second
// resolution, so the server time is taken as the middle of that second and
// the local time as the middle of the round trip.
func (c *Client) observeDate(date []byte, sent, received time.Time) {
	if len(date) == 0 {
		return
	}
	serverAt, err := http.ParseTime(string(date))
	if err != nil {
		return
	}
	serverAt = serverAt.Add(500 * time.Millisecond)
	localAt := sent.Add(received.Sub(sent) / 2)

	c.mu.Lock()
	c.skew = serverAt.Sub(localAt).Round(time.Second)
	c.skewKnown = true
	c.mu.Unlock()
}

// SessionHeaders returns the headers that authenticate a request
func (c *Client) SessionHeaders() map[string]string {
	c.mu.RLock()
	token, cookie := c.token, c.cookie
	c.mu.RUnlock()

	headers := map[string]string{constant.HeaderOperationId: c.opId()}
	if token != "" {
		headers[constant.HeaderAuthorization] = constant.BearerPrefix + token
	}
	if cookie != "" {
		headers[constant.HeaderCookie] = cookie
	}
	return headers
}

// Authorize copies the session headers onto an outbound request
func (c *Client) Authorize(req *protocol.Request) {
	for k, v := range c.SessionHeaders() {
		req.Header.Set(k, v)
	}
}

// Me resolves the session member id
func (c *Client) Me(ctx context.Context) (int64, error) {
	status, body, err := c.do(ctx, consts.MethodGet, constant.PathMe)
	if err != nil {
		return 0, errcode.ErrNotAuthenticated.Wrap(err)
	}
	if status == consts.StatusUnauthorized || status == consts.StatusForbidden {
		return 0, errcode.ErrNotAuthenticated.Wrap(fmt.Errorf("status %d", status))
	}
	if !isSuccess(status) {
		return 0, errcode.ErrFetchFailed.Wrap(fmt.Errorf("members/me status %d", status))
	}

	id, err := codec.DecodeMemberId(body)
	if err != nil {
		return 0, errcode.ErrMalformedPayload.Wrap(err)
	}
	return id, nil
}

// ListRoomsWithUnread fetches the room list. skipped counts dropped rooms and
// messages.
func (c *Client) ListRoomsWithUnread(ctx context.Context) (rooms []codec.RoomPayload, skipped int, err error) {
	status, body, err := c.do(ctx, consts.MethodGet, constant.PathRoomsUnread)
	if err != nil {
		if isTimeout(err) {
			return nil, 0, errcode.ErrFetchTimeout.Wrap(err)
		}
		return nil, 0, errcode.ErrFetchFailed.Wrap(err)
	}
	if !isSuccess(status) {
		return nil, 0, errcode.ErrFetchFailed.Wrap(fmt.Errorf("list-with-unread status %d", status))
	}

	rooms, skipped, err = codec.DecodeRoomList(body)
	if err != nil {
		return nil, 0, errcode.ErrFetchFailed.Wrap(err)
	}
	return rooms, skipped, nil
}

// MarkRead acknowledges every message of the room as read; any 2xx succeeds
func (c *Client) MarkRead(ctx context.Context, roomId int64) error {
	status, _, err := c.do(ctx, consts.MethodPost, fmt.Sprintf(constant.PathMarkRead, roomId))
	if err != nil {
		return errcode.ErrReadFailed.Wrap(err)
	}
	if !isSuccess(status) {
		return errcode.ErrReadFailed.Wrap(fmt.Errorf("status %d", status))
	}
	return nil
}

// LeaveRoom leaves the room; only 200 counts as confirmed
func (c *Client) LeaveRoom(ctx context.Context, roomId int64) error {
	status, _, err := c.do(ctx, consts.MethodPost, fmt.Sprintf(constant.PathLeaveRoom, roomId))
	if err != nil {
		return errcode.ErrLeaveFailed.Wrap(err)
	}
	if status != consts.StatusOK {
		return errcode.ErrLeaveFailed.Wrap(fmt.Errorf("status %d", status))
	}
	return nil
}

// do sends a request and returns the status and a copy of the body. The
// request is bounded by the client timeout and by ctx's deadline. When ctx
// ends first the caller gets ctx's error at once; the request itself is not
// aborted and its response is dropped.
func (c *Client) do(ctx context.Context, method, path string) (int, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return 0, nil, fmt.Errorf("failed to send request: %w", context.DeadlineExceeded)
	}

	req := &protocol.Request{}
	resp := &protocol.Response{}

	req.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.Set("Accept", "application/json")
	if method == consts.MethodPost {
		req.Header.SetContentTypeBytes([]byte("application/json"))
	}
	c.Authorize(req)

	sent := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- c.httpClient.DoTimeout(ctx, req, resp, timeout)
	}()

	select {
	case err := <-done:
		if err != nil {
			return 0, nil, fmt.Errorf("failed to send request: %w", err)
		}
	case <-ctx.Done():
		return 0, nil, fmt.Errorf("request abandoned: %w", ctx.Err())
	}
	c.observeDate(resp.Header.Peek("Date"), sent, time.Now())

	body := append([]byte(nil), resp.Body()...)
	return resp.StatusCode(), body, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func isTimeout(err error) bool {
	if errors.Is(err, errs.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}
