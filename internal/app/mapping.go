package app

import (
	"pingbot/internal/bot"
	"pingbot/internal/config"
	"pingbot/internal/digest"
	"pingbot/internal/notifier"
	"pingbot/internal/observability/ops"
	"pingbot/internal/storage"
	"pingbot/internal/transport/telegram/router"
	logx "pingbot/pkg/logx"
)

// The map* helpers translate the validated file config into component
// configs. They never fail: Validate has already rejected bad values.

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// StorageConfig maps the storage section for storage.Open and storage.Migrate.
func StorageConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		DSN:         cfg.Storage.DSN,
		BusyTimeout: cfg.BusyTimeout(),
		MaxConns:    cfg.Storage.MaxConns,
	}
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	return notifier.Config{
		Workers:    cfg.Fanout.Workers,
		RatePerSec: cfg.RatePerSec(),
	}
}

func mapBotConfig(cfg *config.Config) bot.Config {
	return bot.Config{
		MiniAppURL:           cfg.Bot.MiniAppURL,
		PageSize:             cfg.PageSize(),
		RefreshAdminProfiles: cfg.Bot.RefreshAdminProfiles,
		Location:             cfg.Location(),
		HandlerTimeout:       cfg.CommandTimeout(),
	}
}

func mapRouterConfig(cfg *config.Config) router.Config {
	return router.Config{Workers: cfg.Bot.Workers, QueueSize: cfg.Bot.QueueSize}
}

// mapDigestConfig falls back to the bot timezone when the digest has none.
func mapDigestConfig(cfg *config.Config) digest.Config {
	tz := cfg.Digest.Timezone
	if tz == "" {
		tz = cfg.Bot.Timezone
	}
	return digest.Config{
		Enabled:  cfg.Digest.Enabled,
		Schedule: cfg.Digest.Schedule,
		Timezone: tz,
	}
}

func mapOpsConfig(cfg *config.Config) ops.Config {
	read, write, idle := cfg.OpsTimeouts()
	return ops.Config{
		Enabled:       cfg.Ops.Enabled,
		Addr:          cfg.Ops.Addr,
		Token:         cfg.Ops.Token,
		AllowInsecure: cfg.Ops.AllowInsecure,
		Pprof:         cfg.Ops.Pprof,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}
}

// validate is the reload gate: static checks plus the digest schedule.
func validate(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	return digest.Validate(mapDigestConfig(cfg))
}
