package service

import (
	"context"
	"errors"
	"time"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/pawchat/internal/reconcile"
	"github.com/mbeoliero/pawchat/pkg/constant"
	"github.com/mbeoliero/pawchat/pkg/errcode"
)

// FetchChatRooms pulls the room list and merges it into the store. Failures
// are recorded as LastError and keep the last known list.
func (e *Engine) FetchChatRooms(ctx context.Context) error {
	epoch, userId := e.session()
	if userId == 0 {
		return errcode.ErrNotAuthenticated
	}
	return e.fetch(ctx, epoch, userId)
}

func (e *Engine) fetch(ctx context.Context, epoch uint64, userId int64) error {
	requestedAt := e.opts.Clock()
	payloads, skipped, err := e.api.ListRoomsWithUnread(ctx)

	if err != nil {
		if !e.sameSession(epoch) {
			return errcode.ErrSessionChanged
		}
		msg := errcode.ErrFetchFailed.Msg
		if errors.Is(err, errcode.ErrFetchTimeout) {
			msg = errcode.ErrFetchTimeout.Msg
		}
		e.store.SetError(msg)
		e.notifier.publish(Notification{Kind: constant.NotifyError, Message: msg, At: e.opts.Clock()})
		log.CtxWarn(ctx, "fetch chat rooms failed: user_id=%d, error=%v", userId, err)
		return err
	}
	if skipped > 0 {
		log.CtxWarn(ctx, "skipped malformed room payloads: user_id=%d, skipped=%d", userId, skipped)
	}

	rooms := make([]reconcile.ServerRoom, 0, len(payloads))
	for _, p := range payloads {
		rooms = append(rooms, reconcile.ServerRoom{Room: p.Room, HasUnreadAggregate: p.HasUnreadAggregate})
	}

	refreshed := reconcile.RoomsRefreshed{Rooms: rooms, RequestedAt: requestedAt}
	if clock, ok := e.api.(interface {
		ClockSkew() (time.Duration, bool)
	}); ok {
		refreshed.ServerSkew, refreshed.SkewKnown = clock.ClockSkew()
	}

	effects, ok := e.applyInSession(epoch, refreshed)
	if !ok {
		log.CtxDebug(ctx, "discard refresh of ended session: user_id=%d, epoch=%d", userId, epoch)
		return errcode.ErrSessionChanged
	}
	e.store.SetError("")
	log.CtxDebug(ctx, "chat rooms refreshed: user_id=%d, rooms=%d", userId, len(rooms))

	e.runEffects(ctx, epoch, effects)
	e.saveSnapshot(ctx)
	return nil
}

// RequestRefresh asks for an out-of-band refresh. Requests made while one is
// in flight collapse into a single follow-up.
func (e *Engine) RequestRefresh() {
	epoch, userId := e.session()
	if userId == 0 {
		return
	}
	e.triggerRefresh(epoch)
}

func (e *Engine) triggerRefresh(epoch uint64) {
	if !e.refreshing.CompareAndSwap(false, true) {
		e.refreshAgain.Store(true)
		return
	}

	started := e.goSession(epoch, func(ctx context.Context) {
		for {
			e.refreshAgain.Store(false)
			if _, userId := e.session(); userId != 0 {
				_ = e.fetch(ctx, epoch, userId)
			}
			if e.refreshAgain.Load() && ctx.Err() == nil {
				continue
			}
			e.refreshing.Store(false)
			if !e.refreshAgain.Load() || ctx.Err() != nil || !e.refreshing.CompareAndSwap(false, true) {
				return
			}
		}
	})
	if !started {
		e.refreshing.Store(false)
	}
}

func (e *Engine) sameSession(epoch uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running && e.epoch == epoch
}

// applyInSession applies evt only while the session of epoch is current
func (e *Engine) applyInSession(epoch uint64, evt reconcile.Event) ([]reconcile.Effect, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.epoch != epoch {
		return nil, false
	}
	return e.store.Apply(evt), true
}

// apply runs evt against the current session and executes its effects
func (e *Engine) apply(ctx context.Context, evt reconcile.Event) bool {
	epoch, userId := e.session()
	if userId == 0 {
		return false
	}
	effects, ok := e.applyInSession(epoch, evt)
	if !ok {
		return false
	}
	e.runEffects(ctx, epoch, effects)
	return true
}

// runEffects executes reducer effects outside the store lock
func (e *Engine) runEffects(ctx context.Context, epoch uint64, effects []reconcile.Effect) {
	changed := false
	for _, eff := range effects {
		switch eff.Kind {
		case reconcile.EffectRoomsChanged:
			changed = true
		case reconcile.EffectReadAck:
			roomId := eff.RoomId
			e.goSession(epoch, func(ctx context.Context) {
				e.markRead(ctx, roomId)
			})
		case reconcile.EffectRefresh:
			e.triggerRefresh(epoch)
		case reconcile.EffectScheduleRefresh:
			e.after(epoch, e.delay(eff.Delay), func(context.Context) {
				e.triggerRefresh(epoch)
			})
		case reconcile.EffectResubscribe:
			e.requestResync()
		case reconcile.EffectNewActivity:
			e.notifier.publish(Notification{
				Kind:        constant.NotifyNewActivity,
				RoomId:      eff.RoomId,
				TotalUnread: e.store.TotalUnread(),
				At:          e.opts.Clock(),
			})
		}
	}
	if changed {
		e.notifier.publish(Notification{
			Kind:        constant.NotifyRoomsChanged,
			TotalUnread: e.store.TotalUnread(),
			At:          e.opts.Clock(),
		})
	}
}

func (e *Engine) delay(d reconcile.Delay) time.Duration {
	switch d {
	case reconcile.DelayFirstMessage:
		return e.opts.FirstMessageRefreshDelay
	case reconcile.DelayClose:
		return e.opts.CloseRefreshDelay
	default:
		return 0
	}
}

// markRead acknowledges a room; failures are logged and not retried
func (e *Engine) markRead(ctx context.Context, roomId int64) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.ActionTimeout)
	defer cancel()

	if err := e.api.MarkRead(ctx, roomId); err != nil {
		log.CtxWarn(ctx, "mark room read failed: room_id=%d, error=%v", roomId, err)
		return
	}
	log.CtxDebug(ctx, "room marked read: room_id=%d", roomId)
}

func (e *Engine) requestResync() {
	e.mu.Lock()
	resync := e.resync
	e.mu.Unlock()
	if resync == nil {
		return
	}
	select {
	case resync <- struct{}{}:
	default:
	}
}
