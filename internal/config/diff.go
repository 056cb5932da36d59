package config

import (
	"reflect"
	"strings"

	logx "pingbot/pkg/logx"
)

// SummarizeConfigChange returns the changed sections plus safe structured
// fields for logging. Secrets (bot token, ops token, DSN) are only reported
// as set/unset.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 20)

	if oldCfg.Telegram.Token != newCfg.Telegram.Token ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Bot, newCfg.Bot) {
		changed = append(changed, "bot")
		attrs = append(attrs,
			logx.String("bot.mini_app_url", newCfg.Bot.MiniAppURL),
			logx.Int("bot.admin_count", len(newCfg.Bot.AdminChatIDs)),
			logx.Int("bot.page_size", newCfg.PageSize()),
			logx.Bool("bot.refresh_admin_profiles", newCfg.Bot.RefreshAdminProfiles),
			logx.String("bot.timezone", newCfg.Location().String()),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.Bool("storage.dsn_set", strings.TrimSpace(newCfg.Storage.DSN) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Fanout, newCfg.Fanout) {
		changed = append(changed, "fanout")
		attrs = append(attrs,
			logx.Int("fanout.workers", newCfg.Fanout.Workers),
			logx.Int("fanout.rate_per_sec", newCfg.RatePerSec()),
		)
	}

	if oldCfg.Digest != newCfg.Digest {
		changed = append(changed, "digest")
		attrs = append(attrs,
			logx.Bool("digest.enabled", newCfg.Digest.Enabled),
			logx.String("digest.schedule", newCfg.Digest.Schedule),
			logx.String("digest.timezone", newCfg.Digest.Timezone),
		)
	}

	if oldCfg.Ops != newCfg.Ops {
		changed = append(changed, "ops")
		attrs = append(attrs,
			logx.Bool("ops.enabled", newCfg.Ops.Enabled),
			logx.String("ops.addr", strings.TrimSpace(newCfg.Ops.Addr)),
			logx.Bool("ops.token_set", strings.TrimSpace(newCfg.Ops.Token) != ""),
			logx.Bool("ops.pprof", newCfg.Ops.Pprof),
		)
	}

	return changed, attrs
}

// RestartRequired lists changed settings that only take effect on restart.
func RestartRequired(oldCfg, newCfg *Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	var out []string
	if oldCfg.Telegram != newCfg.Telegram {
		out = append(out, "telegram")
	}
	if oldCfg.Storage != newCfg.Storage {
		out = append(out, "storage")
	}
	if oldCfg.Bot.Workers != newCfg.Bot.Workers || oldCfg.Bot.QueueSize != newCfg.Bot.QueueSize {
		out = append(out, "bot.workers")
	}
	return out
}
