package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/cloudwego/hertz/pkg/protocol/http1/resp"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/pawchat/internal/gateway"
	"github.com/mbeoliero/pawchat/internal/service"
	"github.com/mbeoliero/pawchat/pkg/response"
)

// eventsKeepAlive also detects subscribers that went away silently
const eventsKeepAlive = 15 * time.Second

// ConnStatus reports push connection health
type ConnStatus interface {
	Status() gateway.Status
}

// SignalHandler handles cross-component signals and health
type SignalHandler struct {
	engine *service.Engine
	conns  ConnStatus
}

// NewSignalHandler creates a new SignalHandler; conns may be nil
func NewSignalHandler(engine *service.Engine, conns ConnStatus) *SignalHandler {
	return &SignalHandler{engine: engine, conns: conns}
}

// HealthResponse is the health payload
type HealthResponse struct {
	Status       string          `json:"status"`
	Running      bool            `json:"running"`
	UserId       int64           `json:"userId"`
	ChatListOpen bool            `json:"chatListOpen"`
	LastError    string          `json:"lastError,omitempty"`
	Conns        *gateway.Status `json:"conns,omitempty"`
}

// Health handles health check request
func (h *SignalHandler) Health(ctx context.Context, c *app.RequestContext) {
	out := HealthResponse{
		Status:       "ok",
		Running:      h.engine.Running(),
		UserId:       h.engine.UserId(),
		ChatListOpen: h.engine.ChatListOpen(),
		LastError:    h.engine.LastError(),
	}
	if h.conns != nil {
		st := h.conns.Status()
		out.Conns = &st
	}
	response.Success(ctx, c, out)
}

// Refresh handles out-of-band refresh request
func (h *SignalHandler) Refresh(ctx context.Context, c *app.RequestContext) {
	h.engine.RequestRefresh()
	response.Success(ctx, c, nil)
}

// EnsureLive handles reconnect-if-dead request
func (h *SignalHandler) EnsureLive(ctx context.Context, c *app.RequestContext) {
	if err := h.engine.EnsureLive(ctx); err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, nil)
}

// StartSession handles (re)start of the chat session for the configured credentials
func (h *SignalHandler) StartSession(ctx context.Context, c *app.RequestContext) {
	if err := h.engine.Start(ctx); err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, map[string]int64{"userId": h.engine.UserId()})
}

// Logout handles session logout
func (h *SignalHandler) Logout(ctx context.Context, c *app.RequestContext) {
	if err := h.engine.Logout(ctx); err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, nil)
}

// Events streams engine notifications as server-sent events until the
// client goes away.
func (h *SignalHandler) Events(ctx context.Context, c *app.RequestContext) {
	notes, cancel := h.engine.Subscribe()
	defer cancel()

	c.SetStatusCode(consts.StatusOK)
	c.Response.Header.Set("Content-Type", "text/event-stream")
	c.Response.Header.Set("Cache-Control", "no-cache")
	c.Response.Header.Set("Connection", "keep-alive")
	c.Response.HijackWriter(resp.NewChunkedBodyWriter(&c.Response, c.GetWriter()))

	if err := writeEvent(c, "ready", map[string]int64{"userId": h.engine.UserId()}); err != nil {
		return
	}

	ticker := time.NewTicker(eventsKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			if err := c.Flush(); err != nil {
				return
			}
		case note, ok := <-notes:
			if !ok {
				return
			}
			if err := writeEvent(c, note.Kind, note); err != nil {
				log.CtxDebug(ctx, "event subscriber gone: %v", err)
				return
			}
		}
	}
}

func writeEvent(c *app.RequestContext, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := c.Write([]byte(fmt.Sprintf("event: %s\ndata: %s\n\n", name, data))); err != nil {
		return err
	}
	return c.Flush()
}
