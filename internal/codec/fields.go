package codec

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
)

// Alternative key names the backend uses for the same field
var (
	messageIdKeys      = []string{"chatMessageId", "id", "messageId"}
	roomIdKeys         = []string{"id", "chatRoomId", "roomId"}
	eventRoomKeys      = []string{"roomId", "chatRoomId"}
	readStatusRoomKeys = []string{"roomId", "chatRoomId", "id"}
	createdKeys        = []string{"createdDate", "createDate", "createdAt"}
	senderKeys         = []string{"memberId", "senderId"}
	readerKeys         = []string{"readerId", "userId", "memberId"}
	eventTypeKeys      = []string{"type", "eventType"}
	memberIdKeys       = []string{"id", "memberId"}
	unreadCountKeys    = []string{"unreadCount", "unreadMessageCount"}
)

// localLayouts are tried after RFC 3339 for timestamps without a zone
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// first returns the first existing, non-null field among keys
func first(res gjson.Result, keys ...string) gjson.Result {
	for _, key := range keys {
		if v := res.Get(key); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

// intOf reads a numeric id that may be sent as a number or a numeric string
func intOf(res gjson.Result) (int64, bool) {
	switch res.Type {
	case gjson.Number:
		return res.Int(), true
	case gjson.String:
		n, err := strconv.ParseInt(strings.TrimSpace(res.Str), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

var serverLoc atomic.Pointer[time.Location]

// SetServerLocation sets the zone of zone-less backend timestamps; nil means UTC
func SetServerLocation(loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	serverLoc.Store(loc)
}

// ServerLocation returns the zone of zone-less backend timestamps
func ServerLocation() *time.Location {
	if loc := serverLoc.Load(); loc != nil {
		return loc
	}
	return time.UTC
}

// ParseTime parses a backend timestamp in ServerLocation
func ParseTime(res gjson.Result) (time.Time, bool) {
	return ParseTimeIn(res, ServerLocation())
}

// ParseTimeIn normalizes the timestamp shapes the backend emits:
// RFC 3339, zone-less date-times, epoch seconds or millis, and
// [year, month, day, hour, minute, second, nanos] arrays. Zone-less shapes
// are read in loc.
func ParseTimeIn(res gjson.Result, loc *time.Location) (time.Time, bool) {
	switch {
	case res.Type == gjson.String:
		s := strings.TrimSpace(res.Str)
		if s == "" {
			return time.Time{}, false
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t, true
		}
		for _, layout := range localLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t, true
			}
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return epoch(n), true
		}
		return time.Time{}, false
	case res.Type == gjson.Number:
		return epoch(res.Int()), true
	case res.IsArray():
		parts := res.Array()
		if len(parts) < 3 {
			return time.Time{}, false
		}
		v := make([]int, 7)
		for i := 0; i < len(parts) && i < 7; i++ {
			v[i] = int(parts[i].Int())
		}
		return time.Date(v[0], time.Month(v[1]), v[2], v[3], v[4], v[5], v[6], loc), true
	default:
		return time.Time{}, false
	}
}

// epoch treats values above 1e12 as milliseconds
func epoch(n int64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}
