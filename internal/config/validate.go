package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPageSize   = 5
	MaxPageSize       = 50
	DefaultRatePerSec = 25
)

// PageSize returns bot.page_size or the default.
func (c *Config) PageSize() int {
	if c.Bot.PageSize <= 0 {
		return DefaultPageSize
	}
	return c.Bot.PageSize
}

// Location returns the bot timezone; invalid or empty names mean UTC.
func (c *Config) Location() *time.Location {
	tz := strings.TrimSpace(c.Bot.Timezone)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RatePerSec returns fanout.rate_per_sec; an explicit 0 disables throttling.
func (c *Config) RatePerSec() int {
	if c.Fanout.RatePerSec == nil {
		return DefaultRatePerSec
	}
	return max(*c.Fanout.RatePerSec, 0)
}

// Validate performs the static checks shared by startup and hot reload.
// Every problem is reported, joined into one error.
func Validate(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if strings.TrimSpace(c.Telegram.Token) == "" {
		add("telegram.token is required (or BOT_TOKEN)")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}

	if raw := strings.TrimSpace(c.Bot.MiniAppURL); raw == "" {
		add("bot.mini_app_url is required (or MINI_APP_URL)")
	} else if u, err := url.Parse(raw); err != nil || u.Scheme != "https" || u.Host == "" {
		add("bot.mini_app_url must be an absolute https URL, got %q", raw)
	}
	for _, id := range c.Bot.AdminChatIDs {
		if _, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64); err != nil {
			add("bot.admin_chat_ids: %q is not a numeric chat id", id)
		}
	}
	if c.Bot.PageSize < 0 || c.Bot.PageSize > MaxPageSize {
		add("bot.page_size must be between 1 and %d", MaxPageSize)
	}
	if tz := strings.TrimSpace(c.Bot.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add("bot.timezone: %v", err)
		}
	}
	if c.Bot.Workers < 0 || c.Bot.QueueSize < 0 {
		add("bot.workers and bot.queue_size must be >= 0")
	}
	if _, err := ParseDurationField("bot.command_timeout", c.Bot.CommandTimeout); err != nil {
		errs = append(errs, err)
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "memory", "mem":
	case "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			add("storage.path is required for the sqlite driver")
		}
	case "postgres", "postgresql", "pg":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			add("storage.dsn is required for the postgres driver (or DATABASE_URL)")
		}
	default:
		add("storage.driver %q is not one of memory, sqlite, postgres", c.Storage.Driver)
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}

	if c.Fanout.Workers < 0 {
		add("fanout.workers must be >= 0")
	}
	if c.Fanout.RatePerSec != nil && *c.Fanout.RatePerSec < 0 {
		add("fanout.rate_per_sec must be >= 0")
	}

	if c.Digest.Enabled && strings.TrimSpace(c.Digest.Schedule) == "" {
		add("digest.schedule is required when digest.enabled")
	}

	for path, raw := range map[string]string{
		"ops.read_timeout":  c.Ops.ReadTimeout,
		"ops.write_timeout": c.Ops.WriteTimeout,
		"ops.idle_timeout":  c.Ops.IdleTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
