package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/pawchat/pkg/constant"
	"github.com/mbeoliero/pawchat/pkg/errcode"
	"github.com/mbeoliero/pawchat/pkg/jwt"
	"github.com/mbeoliero/pawchat/pkg/response"
)

const (
	// OperatorKey is the context key for the authenticated operator
	OperatorKey = "operator"
)

// ControlAuth guards the control API with HS256 tokens signed by secret.
// An empty secret disables the check.
func ControlAuth(secret string) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		if secret == "" {
			c.Next(ctx)
			return
		}

		authHeader := string(c.GetHeader(constant.HeaderAuthorization))
		if authHeader == "" {
			response.Unauthorized(ctx, c, errcode.ErrTokenMissing.Msg)
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, constant.BearerPrefix) {
			response.Unauthorized(ctx, c, errcode.ErrTokenInvalid.Msg)
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, constant.BearerPrefix)
		claims, err := jwt.ParseToken(tokenString, secret)
		if err != nil {
			msg := errcode.ErrTokenInvalid.Msg
			if errors.Is(err, errcode.ErrTokenExpired) {
				msg = errcode.ErrTokenExpired.Msg
			}
			response.Unauthorized(ctx, c, msg)
			c.Abort()
			return
		}

		c.Set(OperatorKey, claims.Operator)
		c.Next(ctx)
	}
}

// GetOperator gets the operator from context
func GetOperator(c *app.RequestContext) string {
	if v, ok := c.Get(OperatorKey); ok {
		return v.(string)
	}
	return ""
}
