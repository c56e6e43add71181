package jwt

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mbeoliero/pawchat/pkg/errcode"
)

// SessionClaims is what the client can learn from the backend's bearer token
// without its signing key.
type SessionClaims struct {
	MemberId  int64
	ExpiresAt time.Time
}

// sessionClaims accepts the member id under memberId, member_id or sub
type sessionClaims struct {
	MemberId any `json:"memberId,omitempty"`
	Member   any `json:"member_id,omitempty"`
	jwt.RegisteredClaims
}

// InspectSessionToken decodes the backend token unverified. The backend is the
// only party able to verify it; the client only reads the member id and expiry.
func InspectSessionToken(tokenString string) (*SessionClaims, error) {
	if tokenString == "" {
		return nil, errcode.ErrTokenMissing
	}

	claims := &sessionClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, errcode.ErrTokenInvalid.Wrap(err)
	}

	out := &SessionClaims{}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	for _, v := range []any{claims.MemberId, claims.Member, claims.Subject} {
		if id, ok := toInt64(v); ok {
			out.MemberId = id
			break
		}
	}
	return out, nil
}

// Expired reports whether the token expired before now
func (c *SessionClaims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), n > 0
	case string:
		id, err := strconv.ParseInt(n, 10, 64)
		return id, err == nil && id > 0
	default:
		return 0, false
	}
}
