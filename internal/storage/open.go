package storage

import (
	"context"
	"fmt"
	"strings"

	"pingbot/internal/users"
	logx "pingbot/pkg/logx"
)

// Open applies pending migrations for SQL drivers and returns the directory.
func Open(ctx context.Context, cfg Config, log logx.Logger, opts ...Option) (users.Directory, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	o := buildOptions(opts)

	switch normalizeDriver(cfg.Driver) {
	case DriverMemory:
		log.Warn("using in-memory directory; identities are lost on restart")
		return NewMemory(opts...), nil
	case DriverSQLite:
		return openSQLite(ctx, cfg, log, o)
	case DriverPostgres:
		return openPostgres(ctx, cfg, log, o)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

func normalizeDriver(d string) string {
	switch strings.ToLower(strings.TrimSpace(d)) {
	case "", "memory", "mem":
		return DriverMemory
	case "sqlite", "sqlite3":
		return DriverSQLite
	case "postgres", "postgresql", "pg":
		return DriverPostgres
	default:
		return strings.ToLower(strings.TrimSpace(d))
	}
}
