package router

import (
	"context"
	"errors"

	"pingbot/internal/paging"
	kit "pingbot/internal/transport"
	"pingbot/internal/users"
	logx "pingbot/pkg/logx"
)

const (
	busyText        = "⏳ Busy, please try again in a moment."
	deniedText      = "⛔ Access denied."
	invalidPageText = "❌ That page does not exist."
	unavailableText = "⚠️ User directory is temporarily unavailable. Please try again later."
	timeoutText     = "⏱️ That took too long. Please try again."
	unchangedText   = "Already up to date"
	genericText     = "Sorry, something went wrong. Please try again."
)

// UserText maps a handler error to the text shown to the user.
func UserText(err error) string {
	switch {
	case errors.Is(err, users.ErrAccessDenied):
		return deniedText
	case errors.Is(err, paging.ErrInvalidPage), errors.Is(err, paging.ErrInvalidPageSize):
		return invalidPageText
	case errors.Is(err, users.ErrUnavailable):
		return unavailableText
	case errors.Is(err, context.DeadlineExceeded):
		return timeoutText
	case errors.Is(err, kit.ErrMessageNotModified):
		return unchangedText
	default:
		return genericText
	}
}

// replyError is the single place handler errors become user-visible.
// Callbacks get a callback answer, messages a reply, and Mini App events
// nothing: the trigger sender never sees fan-out outcomes.
func (m *CommandManager) replyError(ctx context.Context, req *Request, err error) {
	text := UserText(err)
	switch req.Update.Kind {
	case kit.UpdateCallback:
		if aerr := req.Answer(ctx, text); aerr != nil {
			req.Logger.Debug("callback answer failed", logx.Err(aerr))
		}
	case kit.UpdateMessage:
		if errors.Is(err, kit.ErrMessageNotModified) {
			return
		}
		if _, serr := req.Reply(ctx, text, nil); serr != nil {
			req.Logger.Warn("error reply failed", logx.Err(serr))
		}
	default:
		req.Logger.Debug("error not surfaced to sender", logx.Err(err))
	}
}
