package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"pingbot/internal/users"
)

// EnvPrefix namespaces the generic overrides, e.g. PINGBOT_STORAGE_DRIVER.
const EnvPrefix = "PINGBOT"

// envAliases are the short variable names accepted alongside the prefixed
// form. The first one set wins.
var envAliases = map[string][]string{
	"telegram.token":     {"BOT_TOKEN"},
	"bot.mini_app_url":   {"MINI_APP_URL"},
	"bot.admin_chat_ids": {"ADMIN_CHAT_IDS"},
	"storage.dsn":        {"DATABASE_URL"},
}

// overridable lists every key that can be set from the environment.
var overridable = []string{
	"telegram.token",
	"telegram.poll_timeout",
	"bot.mini_app_url",
	"bot.admin_chat_ids",
	"bot.page_size",
	"bot.timezone",
	"bot.refresh_admin_profiles",
	"logging.level",
	"storage.driver",
	"storage.path",
	"storage.dsn",
	"ops.enabled",
	"ops.addr",
	"ops.token",
	"digest.enabled",
	"digest.schedule",
}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// NewEnv returns a viper instance bound to the supported variables.
func NewEnv() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, key := range overridable {
		names := []string{EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}
		names = append(names, envAliases[key]...)
		_ = v.BindEnv(append([]string{key}, names...)...)
	}
	return v
}

// ApplyEnv overlays environment values onto cfg and returns the keys that
// were overridden.
func ApplyEnv(cfg *Config, v *viper.Viper) []string {
	if cfg == nil || v == nil {
		return nil
	}
	var set []string
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = strings.TrimSpace(v.GetString(key))
			set = append(set, key)
		}
	}
	boolean := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
			set = append(set, key)
		}
	}

	str("telegram.token", &cfg.Telegram.Token)
	str("telegram.poll_timeout", &cfg.Telegram.PollTimeout)
	str("bot.mini_app_url", &cfg.Bot.MiniAppURL)
	if v.IsSet("bot.admin_chat_ids") {
		cfg.Bot.AdminChatIDs = users.SplitIDs(v.GetString("bot.admin_chat_ids"))
		set = append(set, "bot.admin_chat_ids")
	}
	if v.IsSet("bot.page_size") {
		cfg.Bot.PageSize = v.GetInt("bot.page_size")
		set = append(set, "bot.page_size")
	}
	str("bot.timezone", &cfg.Bot.Timezone)
	boolean("bot.refresh_admin_profiles", &cfg.Bot.RefreshAdminProfiles)
	str("logging.level", &cfg.Logging.Level)
	str("storage.driver", &cfg.Storage.Driver)
	str("storage.path", &cfg.Storage.Path)
	str("storage.dsn", &cfg.Storage.DSN)
	boolean("ops.enabled", &cfg.Ops.Enabled)
	str("ops.addr", &cfg.Ops.Addr)
	str("ops.token", &cfg.Ops.Token)
	boolean("digest.enabled", &cfg.Digest.Enabled)
	str("digest.schedule", &cfg.Digest.Schedule)
	return set
}
