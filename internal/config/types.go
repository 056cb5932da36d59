package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"pingbot/internal/users"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Bot      BotConfig      `json:"bot"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Fanout   FanoutConfig   `json:"fanout"`
	Digest   DigestConfig   `json:"digest"`
	Ops      OpsConfig      `json:"ops"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// BotConfig controls chat behavior and the command router.
//
// Defaults (when fields are omitted/zero):
//   - page_size: 5
//   - timezone: UTC
//   - workers: NumCPU (min 2)
//   - queue_size: 256
//   - command_timeout: "0s" (disabled)
type BotConfig struct {
	MiniAppURL   string `json:"mini_app_url"`
	AdminChatIDs IDList `json:"admin_chat_ids"`
	PageSize     int    `json:"page_size,omitempty"`
	// RefreshAdminProfiles lets /start from a seeded admin refresh its
	// stored profile. Admin records are otherwise left untouched.
	RefreshAdminProfiles bool   `json:"refresh_admin_profiles,omitempty"`
	Timezone             string `json:"timezone,omitempty"`

	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	CommandTimeout string `json:"command_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the user directory backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/pingbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	MaxConns    int32  `json:"max_conns,omitempty"`    // postgres pool size
}

// FanoutConfig controls admin notification delivery.
//
// Defaults: workers 4, rate_per_sec 25. Each admin gets one attempt per
// batch; there is no retry knob.
type FanoutConfig struct {
	Workers    int  `json:"workers,omitempty"`
	RatePerSec *int `json:"rate_per_sec,omitempty"`
}

// DigestConfig schedules a periodic statistics message to every admin.
type DigestConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// OpsConfig controls the operational HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:8090").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // do not log
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// IDList is a list of chat ids. It decodes from a JSON array of strings or
// numbers, or from one comma separated string (the ADMIN_CHAT_IDS form).
type IDList []string

func (l *IDList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*l = nil
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = users.SplitIDs(s)
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("admin_chat_ids: %w", err)
	}
	out := make(IDList, 0, len(raw))
	for _, r := range raw {
		r = bytes.TrimSpace(r)
		var s string
		if len(r) > 0 && r[0] == '"' {
			if err := json.Unmarshal(r, &s); err != nil {
				return err
			}
		} else {
			var n json.Number
			dec := json.NewDecoder(bytes.NewReader(r))
			dec.UseNumber()
			if err := dec.Decode(&n); err != nil {
				return fmt.Errorf("admin_chat_ids: %s is not a chat id", r)
			}
			s = n.String()
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	*l = out
	return nil
}
