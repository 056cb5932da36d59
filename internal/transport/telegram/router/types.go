package router

import (
	"context"
	"sync"
	"time"

	kit "pingbot/internal/transport"
	"pingbot/internal/users"
	logx "pingbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessAdminOnly
)

func (a Access) allows(role users.Role) bool {
	return a == AccessEveryone || role == users.RoleAdmin
}

// RoleResolver is satisfied by *users.Resolver.
type RoleResolver interface {
	ResolveRole(ctx context.Context, chatID string) (users.Role, error)
}

type Command struct {
	// Name is the slash command without the slash, e.g. "users".
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	// Hidden commands are routed but left out of /help and the menu.
	Hidden  bool
	Timeout time.Duration
	Handle  HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

// CallbackRoute handles inline button data "scope:action[:payload]".
type CallbackRoute struct {
	Scope   string
	Action  string
	Access  Access
	Timeout time.Duration
	Handle  CallbackHandlerFunc
}

// Request is the per-event context handed to handlers. Role is resolved
// freshly for every event.
type Request struct {
	Update kit.Update
	Chat   kit.ChatTarget
	// ChatID is the directory key of the acting chat.
	ChatID  string
	FromID  int64
	Sender  users.Profile
	Role    users.Role
	Command string
	Args    []string
	Payload string
	ReqID   string

	Adapter kit.Adapter
	Logger  logx.Logger

	answerMu sync.Mutex
	answered bool
}

// Reply sends text to the chat the event came from.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return r.Adapter.SendText(ctx, r.Chat, text, opt)
}

// Answer acknowledges a callback query. Only the first call reaches the
// platform; later calls and non-callback requests are no-ops.
func (r *Request) Answer(ctx context.Context, text string) error {
	if r.Update.Callback == nil {
		return nil
	}
	r.answerMu.Lock()
	if r.answered {
		r.answerMu.Unlock()
		return nil
	}
	r.answered = true
	r.answerMu.Unlock()
	return r.Adapter.AnswerCallback(ctx, r.Update.Callback.ID, text)
}

// CallbackMessage returns the message carrying the pressed button.
func (r *Request) CallbackMessage() (kit.MessageRef, bool) {
	cb := r.Update.Callback
	if cb == nil {
		return kit.MessageRef{}, false
	}
	return kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}, true
}

func (r *Request) IsAdmin() bool { return r.Role == users.RoleAdmin }
