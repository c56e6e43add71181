package response

import (
	"context"
	"errors"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/mbeoliero/pawchat/pkg/errcode"
)

// Response is the envelope of every control API reply. Detail carries the
// text of errors that have no code.
type Response struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
	Data   any    `json:"data,omitempty"`
}

func write(c *app.RequestContext, status int, r Response) {
	c.JSON(status, r)
}

// Success replies with code 0
func Success(_ context.Context, c *app.RequestContext, data any) {
	write(c, consts.StatusOK, Response{Msg: "success", Data: data})
}

// Error replies with the code of err; foreign errors map to ErrInternal
func Error(_ context.Context, c *app.RequestContext, err error) {
	r := Response{Code: errcode.CodeOf(err)}

	var e *errcode.Error
	if errors.As(err, &e) {
		r.Msg = e.Msg
	} else {
		r.Msg = errcode.ErrInternal.Msg
		r.Detail = err.Error()
	}
	write(c, consts.StatusOK, r)
}

// ErrorWithCode replies with a bare error code
func ErrorWithCode(_ context.Context, c *app.RequestContext, e *errcode.Error) {
	write(c, consts.StatusOK, Response{Code: e.Code, Msg: e.Msg})
}

// Unauthorized replies 401
func Unauthorized(_ context.Context, c *app.RequestContext, msg string) {
	if msg == "" {
		msg = errcode.ErrUnauthorized.Msg
	}
	write(c, consts.StatusUnauthorized, Response{Code: errcode.ErrUnauthorized.Code, Msg: msg})
}
