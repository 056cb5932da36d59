// Package bot holds the chat behaviors of pingbot: the welcome flow, the
// admin listing and statistics views, and the Mini App ping trigger.
package bot

import (
	"context"
	"sync"
	"time"

	"pingbot/internal/eventbus"
	"pingbot/internal/notifier"
	kit "pingbot/internal/transport"
	"pingbot/internal/transport/telegram/router"
	"pingbot/internal/users"
	logx "pingbot/pkg/logx"
)

const defaultPageSize = 5

type Config struct {
	MiniAppURL string
	// PageSize is the number of clients per listing page. <=0 means 5.
	PageSize int
	// RefreshAdminProfiles makes /start from an admin refresh its profile.
	RefreshAdminProfiles bool
	// Location is used to render timestamps. nil means UTC.
	Location *time.Location
	// HandlerTimeout bounds every command and callback. 0 means no limit.
	HandlerTimeout time.Duration
}

// Notifier is the fan-out used by the ping trigger.
type Notifier interface {
	Notify(ctx context.Context, reason, text string, opt *kit.SendOptions) (notifier.Result, error)
}

type Option func(*Bot)

// WithClock overrides the time source used for notification timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Bot) {
		if now != nil {
			b.now = now
		}
	}
}

type Bot struct {
	mu  sync.RWMutex
	cfg Config

	dir    users.Directory
	notify Notifier
	bus    eventbus.Publisher
	log    logx.Logger
	now    func() time.Time
}

func New(cfg Config, dir users.Directory, n Notifier, bus eventbus.Publisher, log logx.Logger, opts ...Option) *Bot {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	b := &Bot{dir: dir, notify: n, bus: bus, log: log, now: time.Now}
	for _, o := range opts {
		o(b)
	}
	b.Apply(cfg)
	return b
}

// Apply swaps the runtime configuration.
func (b *Bot) Apply(cfg Config) {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	b.mu.Lock()
	b.cfg = cfg
	b.mu.Unlock()
}

func (b *Bot) config() Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

// Register installs every command, callback route and the Mini App handler.
func (b *Bot) Register(ctx context.Context, m *router.CommandManager) {
	m.SetRegistry(ctx, b.Commands(), b.Callbacks())
	m.SetWebAppHandler(b.handleWebApp)
}

func (b *Bot) Commands() []router.Command {
	timeout := b.config().HandlerTimeout
	cmds := []router.Command{
		{
			Name:        "start",
			Description: "Open the Ping Bot",
			Usage:       "/start",
			Access:      router.AccessEveryone,
			Handle:      b.cmdStart,
		},
		{
			Name:        "users",
			Aliases:     []string{"list", "clients"},
			Description: "List registered clients",
			Usage:       "/users [page]",
			Access:      router.AccessAdminOnly,
			Handle:      b.cmdUsers,
		},
		{
			Name:        "stats",
			Description: "User statistics",
			Usage:       "/stats",
			Access:      router.AccessAdminOnly,
			Handle:      b.cmdStats,
		},
	}
	for i := range cmds {
		cmds[i].Timeout = timeout
	}
	return cmds
}

func (b *Bot) Callbacks() []router.CallbackRoute {
	timeout := b.config().HandlerTimeout
	return []router.CallbackRoute{
		{Scope: usersScope, Action: actionPage, Access: router.AccessAdminOnly, Timeout: timeout, Handle: b.cbPage},
		{Scope: usersScope, Action: actionRefresh, Access: router.AccessAdminOnly, Timeout: timeout, Handle: b.cbPage},
		{Scope: usersScope, Action: actionNoop, Access: router.AccessEveryone, Handle: b.cbNoop},
	}
}
