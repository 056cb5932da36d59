package bot

import (
	"context"

	"pingbot/internal/eventbus"
	"pingbot/internal/transport/telegram/router"
	"pingbot/internal/users"
	logx "pingbot/pkg/logx"
	"pingbot/pkg/tgui"
)

const (
	clientWelcome = "Welcome to Ping Bot! 👋\n\nClick the button below to open the Mini App:"
	miniAppButton = "🚀 Open Mini App"

	adminWelcome = "👨‍💼 Welcome, Admin!\n\n" +
		"🔔 You will receive ping notifications from users.\n\n" +
		"📊 Admin features:\n" +
		"• Receive all ping notifications\n" +
		"• View user activity with /users and /stats\n" +
		"• No action required from you"
)

func (b *Bot) cmdStart(ctx context.Context, req *router.Request) error {
	cfg := b.config()
	if req.IsAdmin() {
		if cfg.RefreshAdminProfiles {
			if _, _, err := b.dir.UpsertContact(ctx, req.ChatID, req.Sender); err != nil {
				return err
			}
		}
		_, err := req.Reply(ctx, adminWelcome, nil)
		return err
	}

	id, created, err := b.dir.UpsertContact(ctx, req.ChatID, req.Sender)
	if err != nil {
		return err
	}
	if created {
		req.Logger.Info("new client registered", logx.String("label", id.Profile.Label()))
		b.bus.Publish(eventbus.Event{
			Type: eventbus.TypeIdentityCreated,
			Data: eventbus.IdentityCreated{ChatID: id.ChatID, Role: string(users.RoleClient)},
		})
	}

	msg := tgui.Message{Text: clientWelcome}
	if cfg.MiniAppURL != "" {
		msg = tgui.New().
			Line(clientWelcome).
			Markup(tgui.WebAppKeyboard(miniAppButton, cfg.MiniAppURL)).
			Build()
	}
	_, err = msg.Send(ctx, req.Adapter, req.Chat)
	return err
}
