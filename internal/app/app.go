package app

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"pingbot/internal/bot"
	"pingbot/internal/config"
	"pingbot/internal/digest"
	"pingbot/internal/eventbus"
	"pingbot/internal/notifier"
	"pingbot/internal/observability/ops"
	rtsup "pingbot/internal/runtime/supervisor"
	"pingbot/internal/storage"
	kit "pingbot/internal/transport"
	telegram "pingbot/internal/transport/telegram/adapter"
	"pingbot/internal/transport/telegram/router"
	"pingbot/internal/users"
	logx "pingbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	dir  users.Directory

	adapter kit.Adapter

	notif  *notifier.Service
	bot    *bot.Bot
	cmdm   *router.CommandManager
	digest *digest.Service
	ops    *ops.Service

	updates chan kit.Update
}

type Option func(*options)

type options struct {
	adapter kit.Adapter
	dirOpts []storage.Option
}

// WithAdapter replaces the Telegram adapter (tests, alternative transports).
func WithAdapter(a kit.Adapter) Option { return func(o *options) { o.adapter = a } }

// WithStorageOptions is passed through to storage.Open.
func WithStorageOptions(opts ...storage.Option) Option {
	return func(o *options) { o.dirOpts = append(o.dirOpts, opts...) }
}

// NewApp loads and validates the configuration, opens the directory and
// wires every component. Nothing runs until Start.
func NewApp(ctx context.Context, cfgm *config.ConfigManager, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validate(cfg) })
	cfg, err := cfgm.Load(ctx)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	appLog := log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	ad := o.adapter
	if ad == nil {
		tg, err := telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: cfg.PollTimeout(),
		}, log.With(logx.String("comp", "telegram")))
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
		ad = tg
	}

	sc := StorageConfig(cfg)
	dir, err := storage.Open(ctx, sc, log.With(logx.String("comp", "storage")), o.dirOpts...)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	appLog.Info("directory opened", logx.String("driver", sc.Driver))

	bus := eventbus.New()
	notif := notifier.New(mapNotifierConfig(cfg), dir, ad, bus, log.With(logx.String("comp", "notifier")))
	b := bot.New(mapBotConfig(cfg), dir, notif, bus, log.With(logx.String("comp", "bot")))
	cmdm := router.NewCommandManager(log.With(logx.String("comp", "commands")),
		ad, users.NewResolver(dir), mapRouterConfig(cfg))

	return &App{
		cfgm:    cfgm,
		log:     appLog,
		logs:    logSvc,
		bus:     bus,
		dir:     dir,
		adapter: ad,
		notif:   notif,
		bot:     b,
		cmdm:    cmdm,
		digest:  digest.New(mapDigestConfig(cfg), b, notif, log.With(logx.String("comp", "digest"))),
		ops:     ops.New(mapOpsConfig(cfg), dir, log.With(logx.String("comp", "ops"))),
		updates: make(chan kit.Update, 256),
	}, nil
}

// Directory exposes the opened store.
func (a *App) Directory() users.Directory { return a.dir }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	cfg := a.cfgm.Get()

	a.seedAdmins(a.sup.Context(), cfg.Bot.AdminChatIDs)
	a.bot.Register(a.sup.Context(), a.cmdm)

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.logEvent(e)
			}
		}
	})

	a.digest.Start(a.sup.Context())
	a.ops.Start(a.sup.Context())

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.notifySystemd(daemon.SdNotifyReady)
	a.startWatchdog()

	a.log.Info("app started")
	return nil
}

// applyConfig pushes a validated config into every live component.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartRequired(oldCfg, newCfg); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}

	if slices.Contains(sections, "logging") {
		a.logs.Apply(mapLogConfig(newCfg))
	}
	a.notif.Apply(mapNotifierConfig(newCfg))

	if slices.Contains(sections, "bot") {
		a.bot.Apply(mapBotConfig(newCfg))
		// Handler timeouts live on the routes.
		a.bot.Register(ctx, a.cmdm)
		if added := newIDs(oldCfg.Bot.AdminChatIDs, newCfg.Bot.AdminChatIDs); len(added) > 0 {
			a.seedAdmins(ctx, added)
		}
	}
	a.digest.Apply(mapDigestConfig(newCfg))
	a.ops.Reconfigure(ctx, mapOpsConfig(newCfg))

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// seedAdmins promotes the configured ids. Failures are logged; the bot keeps
// running with whatever admins the directory already has.
func (a *App) seedAdmins(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		a.log.Warn("no admin chat ids configured; admin commands are unreachable")
		return
	}
	rep := users.Seed(ctx, a.dir, ids)
	for _, o := range rep.Outcomes {
		if o.Err != nil {
			a.log.Warn("admin seed failed", logx.String("chat_id", o.ChatID), logx.Err(o.Err))
		}
	}
	a.log.Info("admins seeded",
		logx.Int("count", len(rep.Outcomes)),
		logx.Int("failed", rep.Failed()),
	)
}

func newIDs(oldIDs, newIDs config.IDList) []string {
	var out []string
	for _, id := range newIDs {
		if !slices.Contains(oldIDs, id) {
			out = append(out, id)
		}
	}
	return out
}

func (a *App) logEvent(e eventbus.Event) {
	switch d := e.Data.(type) {
	case eventbus.IdentityCreated:
		a.log.Debug("event", logx.String("type", e.Type), logx.String("chat_id", d.ChatID), logx.String("role", d.Role))
	case eventbus.FanoutDone:
		a.log.Debug("event",
			logx.String("type", e.Type),
			logx.String("batch_id", d.BatchID),
			logx.String("reason", d.Reason),
			logx.Int("attempted", d.Attempted),
			logx.Int("delivered", d.Delivered),
			logx.Int("failed", d.Failed),
		)
	default:
		a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
	}
}

func (a *App) notifySystemd(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		a.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		a.log.Debug("sd_notify sent", logx.String("state", state))
	}
}

// startWatchdog pings systemd at half the WatchdogSec interval when the unit
// enables it.
func (a *App) startWatchdog() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-t.C:
				pctx, cancel := context.WithTimeout(c, interval/4)
				err := a.dir.Ping(pctx)
				cancel()
				if err != nil {
					a.log.Warn("watchdog ping skipped; directory unavailable", logx.Err(err))
					continue
				}
				a.notifySystemd(daemon.SdNotifyWatchdog)
			}
		}
	})
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.notifySystemd(daemon.SdNotifyStopping)

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	stopStep(ctx, a.log, "digest", 2*time.Second, func(c context.Context) error { a.digest.Stop(c); return nil })
	stopStep(ctx, a.log, "ops", 1*time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	stopStep(ctx, a.log, "adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	stopStep(ctx, a.log, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	stopStep(ctx, a.log, "storage", 1*time.Second, func(c context.Context) error { return a.dir.Close() })

	err := a.sup.Err()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}
