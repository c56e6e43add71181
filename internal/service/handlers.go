package service

import (
	"context"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/pawchat/internal/codec"
	"github.com/mbeoliero/pawchat/internal/entity"
	"github.com/mbeoliero/pawchat/internal/reconcile"
)

// OnStreamEvent handles a server-sent event
func (e *Engine) OnStreamEvent(ctx context.Context, evt codec.StreamEvent) {
	switch evt.Kind {
	case codec.KindReadStatus:
		e.readStatus(ctx, evt.RoomId, evt.ActorId, reconcile.SourceStream)
	case codec.KindNewMessage:
		e.apply(ctx, reconcile.MessageSignaled{RoomId: evt.RoomId, SenderId: evt.ActorId})
	default:
		log.CtxDebug(ctx, "ignore stream event: type=%s", evt.Type)
	}
}

// OnRoomCreated handles a new-room topic frame
func (e *Engine) OnRoomCreated(ctx context.Context, room entity.ChatRoom) {
	e.apply(ctx, reconcile.RoomCreated{Room: room, At: e.opts.Clock()})
}

// OnReadStatus handles a read-status topic frame
func (e *Engine) OnReadStatus(ctx context.Context, roomId, readerId int64) {
	e.readStatus(ctx, roomId, readerId, reconcile.SourceTopic)
}

func (e *Engine) readStatus(ctx context.Context, roomId, readerId int64, src reconcile.Source) {
	log.CtxDebug(ctx, "read status: room_id=%d, reader_id=%d, source=%s", roomId, readerId, src)
	e.apply(ctx, reconcile.ReadStatusChanged{
		RoomId:   roomId,
		ReaderId: readerId,
		Source:   src,
		At:       e.opts.Clock(),
	})
}

// OnRoomMessage handles a per-room topic message
func (e *Engine) OnRoomMessage(ctx context.Context, roomId int64, msg entity.ChatMessage) {
	e.apply(ctx, reconcile.MessageArrived{RoomId: roomId, Message: msg, At: e.opts.Clock()})
}
