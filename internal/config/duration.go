package config

import (
	"fmt"
	"strings"
	"time"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// mustDuration is for fields already checked by Validate.
func mustDuration(raw string, def time.Duration) time.Duration {
	d, err := ParseDurationOrDefault("", raw, def)
	if err != nil {
		return def
	}
	return d
}

func (c *Config) PollTimeout() time.Duration {
	return mustDuration(c.Telegram.PollTimeout, 10*time.Second)
}

func (c *Config) CommandTimeout() time.Duration { return mustDuration(c.Bot.CommandTimeout, 0) }

func (c *Config) BusyTimeout() time.Duration {
	return mustDuration(c.Storage.BusyTimeout, 5*time.Second)
}

// OpsTimeouts returns the read, write and idle timeouts of the ops server.
func (c *Config) OpsTimeouts() (read, write, idle time.Duration) {
	return mustDuration(c.Ops.ReadTimeout, 10*time.Second),
		mustDuration(c.Ops.WriteTimeout, 0),
		mustDuration(c.Ops.IdleTimeout, 60*time.Second)
}
