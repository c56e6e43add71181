package service

import (
	"context"
	"errors"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/pawchat/internal/entity"
	"github.com/mbeoliero/pawchat/internal/reconcile"
	"github.com/mbeoliero/pawchat/pkg/constant"
	"github.com/mbeoliero/pawchat/pkg/errcode"
)

// Enter focuses a room window: its unread count drops to zero and the server
// is told the room was read.
func (e *Engine) Enter(ctx context.Context, room entity.ChatRoom) error {
	if room.Id == 0 {
		return errcode.ErrInvalidParam
	}
	if !e.apply(ctx, reconcile.RoomEntered{Room: room, At: e.opts.Clock()}) {
		return errcode.ErrNotAuthenticated
	}
	log.CtxDebug(ctx, "room entered: room_id=%d", room.Id)
	return nil
}

// EnterRoom focuses a room already known to the store
func (e *Engine) EnterRoom(ctx context.Context, roomId int64) error {
	room, ok := e.store.Room(roomId)
	if !ok {
		return errcode.ErrRoomNotFound
	}
	return e.Enter(ctx, room)
}

// AnnounceOpened treats room as freshly opened by another component
func (e *Engine) AnnounceOpened(ctx context.Context, room entity.ChatRoom) error {
	return e.Enter(ctx, room)
}

// Close closes a room window and schedules a reconciling refresh
func (e *Engine) Close(ctx context.Context, roomId int64) error {
	if !e.apply(ctx, reconcile.RoomClosed{RoomId: roomId}) {
		return errcode.ErrNotAuthenticated
	}
	return nil
}

// Leave leaves a room on the server and, once confirmed, forgets it for
// the rest of the session.
func (e *Engine) Leave(ctx context.Context, roomId int64) error {
	epoch, userId := e.session()
	if userId == 0 {
		return errcode.ErrNotAuthenticated
	}

	if err := e.api.LeaveRoom(ctx, roomId); err != nil {
		log.CtxWarn(ctx, "leave room failed: room_id=%d, user_id=%d, error=%v", roomId, userId, err)
		e.notifier.publish(Notification{
			Kind:    constant.NotifyAlert,
			RoomId:  roomId,
			Message: errcode.ErrLeaveFailed.Msg,
			At:      e.opts.Clock(),
		})
		if !errors.Is(err, errcode.ErrLeaveFailed) {
			err = errcode.ErrLeaveFailed.Wrap(err)
		}
		return err
	}

	effects, ok := e.applyInSession(epoch, reconcile.RoomLeft{RoomId: roomId})
	if !ok {
		return errcode.ErrSessionChanged
	}
	log.CtxInfo(ctx, "room left: room_id=%d, user_id=%d", roomId, userId)
	e.runEffects(ctx, epoch, effects)
	return nil
}

// OpenChatList connects the broker for the current rooms and refreshes
func (e *Engine) OpenChatList(ctx context.Context) error {
	epoch, userId := e.session()
	if userId == 0 {
		return errcode.ErrNotAuthenticated
	}

	e.mu.Lock()
	e.listOpen = true
	topics := e.topics
	e.mu.Unlock()

	var connErr error
	if topics != nil {
		if err := topics.Connect(ctx, e.store.RoomIds()); err != nil {
			log.CtxWarn(ctx, "broker connect failed: user_id=%d, error=%v", userId, err)
			connErr = errcode.ErrNotConnected.Wrap(err)
		}
	}
	e.triggerRefresh(epoch)
	return connErr
}

// CloseChatList drops the broker connection and its subscriptions
func (e *Engine) CloseChatList() {
	e.mu.Lock()
	e.listOpen = false
	topics := e.topics
	e.mu.Unlock()

	if topics != nil {
		topics.Disconnect()
	}
}

// EnsureLive reconnects whichever push connection should be up but is not
func (e *Engine) EnsureLive(ctx context.Context) error {
	_, userId := e.session()
	if userId == 0 {
		return errcode.ErrNotAuthenticated
	}

	e.mu.Lock()
	events, topics, open := e.events, e.topics, e.listOpen
	e.mu.Unlock()

	var errs []error
	if events != nil && !events.Alive() {
		if err := events.Connect(ctx, userId); err != nil {
			log.CtxWarn(ctx, "event stream reconnect failed: user_id=%d, error=%v", userId, err)
			errs = append(errs, err)
		}
	}
	if topics != nil && open && !topics.Alive() {
		if err := topics.Connect(ctx, e.store.RoomIds()); err != nil {
			log.CtxWarn(ctx, "broker reconnect failed: user_id=%d, error=%v", userId, err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errcode.ErrNotConnected.Wrap(errors.Join(errs...))
	}
	return nil
}
