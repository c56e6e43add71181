package handler

import (
	"context"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/pawchat/internal/entity"
	"github.com/mbeoliero/pawchat/internal/service"
	"github.com/mbeoliero/pawchat/pkg/errcode"
	"github.com/mbeoliero/pawchat/pkg/response"
)

// RoomHandler handles chat room requests
type RoomHandler struct {
	engine *service.Engine
}

// NewRoomHandler creates a new RoomHandler
func NewRoomHandler(engine *service.Engine) *RoomHandler {
	return &RoomHandler{engine: engine}
}

// RoomListResponse is the room list with session-level state
type RoomListResponse struct {
	UserId      int64             `json:"userId"`
	Rooms       []entity.ChatRoom `json:"rooms"`
	TotalUnread int               `json:"totalUnread"`
	LastError   string            `json:"lastError,omitempty"`
}

// ListRooms handles get room list request
func (h *RoomHandler) ListRooms(ctx context.Context, c *app.RequestContext) {
	response.Success(ctx, c, RoomListResponse{
		UserId:      h.engine.UserId(),
		Rooms:       h.engine.Rooms(),
		TotalUnread: h.engine.TotalUnread(),
		LastError:   h.engine.LastError(),
	})
}

// ListOpenRooms handles get open windows request
func (h *RoomHandler) ListOpenRooms(ctx context.Context, c *app.RequestContext) {
	response.Success(ctx, c, h.engine.OpenRooms())
}

// GetRoom handles get single room request
func (h *RoomHandler) GetRoom(ctx context.Context, c *app.RequestContext) {
	roomId, ok := roomIdParam(c)
	if !ok {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	room, found := h.engine.Room(roomId)
	if !found {
		response.ErrorWithCode(ctx, c, errcode.ErrRoomNotFound)
		return
	}

	response.Success(ctx, c, room)
}

// EnterRoom handles open room window request. A room unknown to the store
// may be supplied in the body.
func (h *RoomHandler) EnterRoom(ctx context.Context, c *app.RequestContext) {
	roomId, ok := roomIdParam(c)
	if !ok {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	var err error
	if len(c.Request.Body()) > 0 {
		var room entity.ChatRoom
		if bindErr := c.BindJSON(&room); bindErr != nil {
			response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
			return
		}
		room.Id = roomId
		err = h.engine.AnnounceOpened(ctx, room)
	} else {
		err = h.engine.EnterRoom(ctx, roomId)
	}
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}

// CloseRoom handles close room window request
func (h *RoomHandler) CloseRoom(ctx context.Context, c *app.RequestContext) {
	roomId, ok := roomIdParam(c)
	if !ok {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	if err := h.engine.Close(ctx, roomId); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}

// LeaveRoom handles leave room request
func (h *RoomHandler) LeaveRoom(ctx context.Context, c *app.RequestContext) {
	roomId, ok := roomIdParam(c)
	if !ok {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	if err := h.engine.Leave(ctx, roomId); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}

// OpenChatList handles chat list opened request
func (h *RoomHandler) OpenChatList(ctx context.Context, c *app.RequestContext) {
	if err := h.engine.OpenChatList(ctx); err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, nil)
}

// CloseChatList handles chat list closed request
func (h *RoomHandler) CloseChatList(ctx context.Context, c *app.RequestContext) {
	h.engine.CloseChatList()
	response.Success(ctx, c, nil)
}

func roomIdParam(c *app.RequestContext) (int64, bool) {
	roomId, err := strconv.ParseInt(c.Param("room_id"), 10, 64)
	if err != nil || roomId <= 0 {
		return 0, false
	}
	return roomId, true
}
