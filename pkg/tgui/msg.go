package tgui

import (
	"context"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "pingbot/internal/transport"
)

// Message is a rendered UI payload: text plus send options.
type Message struct {
	Text string
	Opt  *kit.SendOptions
}

func (m Message) Send(ctx context.Context, s kit.Sender, to kit.ChatTarget) (kit.MessageRef, error) {
	return s.SendText(ctx, to, m.Text, m.opt())
}

func (m Message) Edit(ctx context.Context, ad kit.Adapter, ref kit.MessageRef) error {
	return ad.EditText(ctx, ref, m.Text, m.opt())
}

func (m Message) opt() *kit.SendOptions {
	if m.Opt == nil {
		return &kit.SendOptions{}
	}
	return m.Opt
}

// Builder assembles an HTML message line by line.
// Defaults: ParseMode=HTML, DisablePreview=true.
type Builder struct {
	disablePreview bool
	rm             *tele.ReplyMarkup
	lines          []string
}

func New() *Builder {
	return &Builder{disablePreview: true}
}

func (b *Builder) DisablePreview(v bool) *Builder {
	b.disablePreview = v
	return b
}

// Inline attaches an inline keyboard; a nil or empty keyboard clears it.
func (b *Builder) Inline(kb *Inline) *Builder {
	if kb == nil || kb.Rows() == 0 {
		b.rm = nil
		return b
	}
	b.rm = kb.Markup()
	return b
}

// Markup attaches an arbitrary reply markup (e.g. WebAppKeyboard).
func (b *Builder) Markup(rm *tele.ReplyMarkup) *Builder {
	b.rm = rm
	return b
}

// Title adds a bold title line with an optional emoji prefix.
func (b *Builder) Title(emoji, title string) *Builder {
	t := strings.TrimSpace(title)
	if t == "" {
		return b
	}
	if e := strings.TrimSpace(emoji); e != "" {
		b.lines = append(b.lines, Esc(e).String()+" "+B(t).String())
	} else {
		b.lines = append(b.lines, B(t).String())
	}
	return b
}

// Line adds an escaped line.
func (b *Builder) Line(s string) *Builder {
	b.lines = append(b.lines, Esc(s).String())
	return b
}

// HTML appends already-safe HTML.
func (b *Builder) HTML(h H) *Builder {
	b.lines = append(b.lines, h.String())
	return b
}

func (b *Builder) Blank() *Builder { return b.Line("") }

// KV adds a "• key: value" row with a bold key.
func (b *Builder) KV(key, value string) *Builder {
	key = strings.TrimSpace(key)
	if key == "" {
		return b
	}
	b.lines = append(b.lines, "• "+B(key).String()+": "+Esc(strings.TrimSpace(value)).String())
	return b
}

func (b *Builder) Build() Message {
	opt := &kit.SendOptions{ParseMode: tele.ModeHTML, DisablePreview: b.disablePreview}
	if b.rm != nil {
		opt.ReplyMarkupAdapter = b.rm
	}
	return Message{Text: strings.Join(b.lines, "\n"), Opt: opt}
}
