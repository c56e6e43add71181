package reconcile

// EffectKind is a side effect requested by the reducer
type EffectKind int

const (
	// EffectRoomsChanged tells consumers the room list changed
	EffectRoomsChanged EffectKind = iota + 1
	// EffectReadAck asks for POST /chat/{roomId}/read
	EffectReadAck
	// EffectRefresh asks for a REST refresh now
	EffectRefresh
	// EffectScheduleRefresh asks for a REST refresh after Delay
	EffectScheduleRefresh
	// EffectResubscribe asks the topic adapter to resync per-room subscriptions
	EffectResubscribe
	// EffectNewActivity signals first activity in a room, even with the chat list closed
	EffectNewActivity
)

func (k EffectKind) String() string {
	switch k {
	case EffectRoomsChanged:
		return "rooms_changed"
	case EffectReadAck:
		return "read_ack"
	case EffectRefresh:
		return "refresh"
	case EffectScheduleRefresh:
		return "schedule_refresh"
	case EffectResubscribe:
		return "resubscribe"
	case EffectNewActivity:
		return "new_activity"
	default:
		return "unknown"
	}
}

// Delay names a configured refresh delay
type Delay int

const (
	DelayNone Delay = iota
	DelayFirstMessage
	DelayClose
)

// Effect is one side effect with its target room
type Effect struct {
	Kind   EffectKind
	RoomId int64
	Delay  Delay
}

// Has reports whether effects contains kind
func Has(effects []Effect, kind EffectKind) bool {
	for _, e := range effects {
		if e.Kind == kind {
			return true
		}
	}
	return false
}
