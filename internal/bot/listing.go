package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"pingbot/internal/paging"
	kit "pingbot/internal/transport"
	"pingbot/internal/transport/telegram/router"
	"pingbot/internal/users"
	"pingbot/pkg/tgui"
)

// Callback data: users:page:N, users:refresh:N, users:noop.
const (
	usersScope    = "users"
	actionPage    = "page"
	actionRefresh = "refresh"
	actionNoop    = "noop"
)

func (b *Bot) cmdUsers(ctx context.Context, req *router.Request) error {
	page := 1
	if len(req.Args) > 0 {
		p, err := paging.ParsePage(req.Args[0])
		if err != nil {
			return err
		}
		page = p
	}
	msg, err := b.renderClients(ctx, page)
	if err != nil {
		return err
	}
	_, err = msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

// cbPage re-renders the listing at the requested page in place.
func (b *Bot) cbPage(ctx context.Context, req *router.Request, payload string) error {
	page, err := paging.ParsePage(payload)
	if err != nil {
		return err
	}
	msg, err := b.renderClients(ctx, page)
	if err != nil {
		return err
	}
	ref, ok := req.CallbackMessage()
	if !ok {
		return nil
	}
	if err := msg.Edit(ctx, req.Adapter, ref); err != nil {
		if errors.Is(err, kit.ErrMessageNotModified) {
			return req.Answer(ctx, "Already up to date")
		}
		return err
	}
	return nil
}

// cbNoop answers the page indicator button.
func (b *Bot) cbNoop(ctx context.Context, req *router.Request, _ string) error {
	return req.Answer(ctx, "")
}

func (b *Bot) renderClients(ctx context.Context, page int) (tgui.Message, error) {
	size := b.config().PageSize
	if _, err := paging.Paginate(0, page, size); err != nil {
		return tgui.Message{}, err
	}
	items, total, err := b.dir.ListByRole(ctx, users.RoleClient, paging.Offset(page, size), size)
	if err != nil {
		return tgui.Message{}, err
	}
	meta, err := paging.Paginate(total, page, size)
	if err != nil {
		return tgui.Message{}, err
	}
	if !meta.InRange() {
		return tgui.Message{}, fmt.Errorf("page %d of %d: %w", page, meta.TotalPages, paging.ErrInvalidPage)
	}

	loc := b.config().Location
	mb := tgui.New().
		Title("👥", "Clients").
		Line(fmt.Sprintf("Page %d of %d • %d total", meta.CurrentPage, meta.TotalPages, meta.TotalCount)).
		Blank()
	if len(items) == 0 {
		mb.Line("No clients yet.")
	}
	for i, id := range items {
		mb.HTML(tgui.JoinH(" ",
			tgui.B(strconv.Itoa(meta.Offset+i+1)+"."),
			tgui.Esc(id.Profile.Label()),
			tgui.Code(id.ChatID),
		))
		mb.Line("   joined " + id.CreatedAt.In(loc).Format("2006-01-02 15:04"))
	}
	return mb.Inline(navKeyboard(meta)).Build(), nil
}

func navKeyboard(meta paging.Meta) *tgui.Inline {
	var nav, tail []tele.Btn
	for _, c := range paging.Controls(meta.CurrentPage, meta.TotalPages) {
		switch c.Kind {
		case paging.ControlIndicator:
			nav = append(nav, tgui.Btn(c.Label, tgui.Data(usersScope, actionNoop, "")))
		case paging.ControlRefresh:
			tail = append(tail, tgui.Btn(c.Label, tgui.Data(usersScope, actionRefresh, strconv.Itoa(c.Page))))
		default:
			nav = append(nav, tgui.Btn(c.Label, tgui.Data(usersScope, actionPage, strconv.Itoa(c.Page))))
		}
	}
	return tgui.NewInline().Row(nav...).Row(tail...)
}

func (b *Bot) cmdStats(ctx context.Context, req *router.Request) error {
	text, err := b.StatsText(ctx)
	if err != nil {
		return err
	}
	_, err = req.Reply(ctx, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}

// StatsText renders the directory counts as HTML.
func (b *Bot) StatsText(ctx context.Context) (string, error) {
	st, err := users.LoadStats(ctx, b.dir)
	if err != nil {
		return "", err
	}
	return tgui.New().
		Title("📊", "Statistics").
		KV("Total users", strconv.Itoa(st.Total)).
		KV("Admins", strconv.Itoa(st.Admins)).
		KV("Clients", strconv.Itoa(st.Clients)).
		Build().Text, nil
}
