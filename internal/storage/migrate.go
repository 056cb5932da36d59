package storage

import (
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	logx "pingbot/pkg/logx"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Migrate runs a migration command against the configured SQL backend.
// Supported commands: "up", "down", "version", "force N". The memory driver
// has no schema and every command is a no-op.
func Migrate(cfg Config, log logx.Logger, command string, args []string) error {
	switch command {
	case "up", "down", "version", "force":
	default:
		return fmt.Errorf("unknown migrate command: %s (use: up, down, version, force)", command)
	}
	if command == "force" && len(args) == 0 {
		return errors.New("force requires a version number argument")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	driver := normalizeDriver(cfg.Driver)
	if driver == DriverMemory {
		log.Info("memory driver has no schema; nothing to migrate")
		return nil
	}
	m, err := newMigrator(driver, cfg)
	if err != nil {
		return err
	}
	defer m.Close()
	m.Log = &migrateLogger{log: log}

	switch command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate up: %w", err)
		}
		ver, dirty, _ := m.Version()
		log.Info("migration complete", logx.Uint64("version", uint64(ver)), logx.Bool("dirty", dirty))
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate down: %w", err)
		}
		log.Info("all migrations rolled back")
	case "version":
		ver, dirty, err := m.Version()
		if err != nil {
			return fmt.Errorf("migrate version: %w", err)
		}
		log.Info("current version", logx.Uint64("version", uint64(ver)), logx.Bool("dirty", dirty))
	case "force":
		version, err := strconv.Atoi(strings.TrimSpace(args[0]))
		if err != nil {
			return fmt.Errorf("invalid version: %w", err)
		}
		if err := m.Force(version); err != nil {
			return fmt.Errorf("migrate force: %w", err)
		}
		log.Info("forced version", logx.Int("version", version))
	}
	return nil
}

// migrateUp is used by Open; it is quiet unless something was applied.
func migrateUp(driver string, cfg Config, log logx.Logger) error {
	m, err := newMigrator(driver, cfg)
	if err != nil {
		return err
	}
	defer m.Close()
	before, _, _ := m.Version()
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("migrate up: %w", err)
	}
	after, _, _ := m.Version()
	log.Info("schema migrated", logx.String("driver", driver), logx.Uint64("from", uint64(before)), logx.Uint64("to", uint64(after)))
	return nil
}

func newMigrator(driver string, cfg Config) (*migrate.Migrate, error) {
	var dir, url string
	switch driver {
	case DriverSQLite:
		path := strings.TrimSpace(cfg.Path)
		if path == "" {
			return nil, errors.New("sqlite path is required")
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		dir, url = "migrations/sqlite", "sqlite://"+filepath.ToSlash(abs)
	case DriverPostgres:
		u, err := pgx5URL(cfg.DSN)
		if err != nil {
			return nil, err
		}
		dir, url = "migrations/postgres", u
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}

	src, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return nil, fmt.Errorf("migrate init: %w", err)
	}
	return m, nil
}

// pgx5URL rewrites a postgres:// DSN to the scheme registered by the
// golang-migrate pgx/v5 driver.
func pgx5URL(dsn string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	for _, p := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, p) {
			return "pgx5://" + strings.TrimPrefix(dsn, p), nil
		}
	}
	if strings.HasPrefix(dsn, "pgx5://") {
		return dsn, nil
	}
	return "", errors.New("postgres dsn must be a postgres:// URL")
}

type migrateLogger struct {
	log logx.Logger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.log.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *migrateLogger) Verbose() bool { return false }
