package transport

import (
	"context"
	"errors"
)

// ErrMessageNotModified is returned by EditText when the new content equals
// the current one. Callers treat it as "unchanged", not as a failure.
var ErrMessageNotModified = errors.New("message is not modified")

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
	// UpdateWebApp carries data sent by a Mini App via Telegram.WebApp.sendData.
	UpdateWebApp UpdateKind = "webapp"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
	WebApp   *WebAppData
}

// Profile holds the display attributes the platform reports for a sender.
type Profile struct {
	Username  string
	FirstName string
	LastName  string
}

type Message struct {
	ID       int
	ChatID   int64
	ThreadID int // telegram forum topic thread id (0 if none)
	FromID   int64
	From     Profile
	Text     string
	IsGroup  bool
}

type Callback struct {
	ID        string
	FromID    int64
	From      Profile
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

type WebAppData struct {
	MessageID  int
	ChatID     int64
	FromID     int64
	From       Profile
	ButtonText string
	Data       string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// Sender is the outbound half of an Adapter.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

type Adapter interface {
	Sender

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface for adapters that can publish
// a platform command menu (Telegram setMyCommands).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
