package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"pingbot/internal/transport/telegram/router"
	"pingbot/internal/users"
	logx "pingbot/pkg/logx"
)

const actionPing = "ping"

var (
	ErrMalformedPayload = errors.New("bot: malformed mini app payload")
	ErrUnknownAction    = errors.New("bot: unknown mini app action")
)

// PingUser is the Telegram WebApp user the Mini App attaches to a ping.
type PingUser struct {
	ID        int64  `json:"id,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// PingPayload is the JSON a Mini App sends with Telegram.WebApp.sendData.
type PingPayload struct {
	Action    string    `json:"action"`
	Timestamp int64     `json:"timestamp"`
	User      *PingUser `json:"user,omitempty"`
}

// ParsePing validates a Mini App payload. Only {"action":"ping"} objects are
// accepted; unknown fields are tolerated.
func ParsePing(raw string) (PingPayload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return PingPayload{}, fmt.Errorf("%w: empty", ErrMalformedPayload)
	}
	var p PingPayload
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	if err := dec.Decode(&p); err != nil {
		return PingPayload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if dec.More() {
		return PingPayload{}, fmt.Errorf("%w: trailing data", ErrMalformedPayload)
	}
	if p.Action != actionPing {
		return PingPayload{}, fmt.Errorf("%w: %q", ErrUnknownAction, p.Action)
	}
	return p, nil
}

// senderLabel prefers the profile Telegram reported for the event and falls
// back to the user the Mini App attached.
func senderLabel(sender users.Profile, p PingPayload) string {
	if l := sender.Label(); l != (users.Profile{}).Label() {
		return l
	}
	if p.User != nil {
		return users.Profile{Username: p.User.Username, FirstName: p.User.FirstName, LastName: p.User.LastName}.Label()
	}
	return sender.Label()
}

// PingText renders the admin notification for a ping.
func PingText(label, chatID, when string) string {
	return "🔔 Ping notification!\n\nUser: " + label + "\nChat ID: " + chatID + "\nTime: " + when
}

// handleWebApp turns a Mini App ping into a fan-out to every admin. The
// sender never gets a reply; outcomes are logged only.
func (b *Bot) handleWebApp(ctx context.Context, req *router.Request) error {
	p, err := ParsePing(req.Payload)
	if err != nil {
		req.Logger.Info("mini app payload ignored", logx.Err(err))
		return nil
	}
	if b.notify == nil {
		return errors.New("bot: notifier not configured")
	}

	when := b.now().In(b.config().Location).Format("2006-01-02 15:04:05 MST")
	text := PingText(senderLabel(req.Sender, p), req.ChatID, when)

	req.Logger.Info("ping received")
	res, err := b.notify.Notify(ctx, actionPing, text, nil)
	if err != nil {
		return fmt.Errorf("ping fan-out: %w", err)
	}
	fields := []logx.Field{
		logx.String("batch", res.BatchID),
		logx.Int("attempted", res.Attempted),
		logx.Int("delivered", res.Delivered),
		logx.Int("failed", len(res.Failed)),
	}
	switch {
	case res.Attempted == 0:
		req.Logger.Warn("ping processed: no admins registered", fields...)
	case res.Delivered == 0:
		req.Logger.Warn("ping processed: no admin notified", fields...)
	default:
		req.Logger.Info("ping processed", fields...)
	}
	return nil
}
