package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"pingbot/internal/users"
	logx "pingbot/pkg/logx"
)

const identityColumns = `chat_id, role, username, first_name, last_name, created_at, updated_at`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger, o options) (users.Directory, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := migrateUp(DriverSQLite, cfg, log); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = time.Second
	}
	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			log.Warn("sqlite pragma failed", logx.String("pragma", pragma), logx.Err(err))
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, unavailable("sqlite open", err)
	}
	log.Info("sqlite directory opened", logx.String("path", path))
	return &sqliteStore{db: db, log: log, now: o.now}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteIdentity(r rowScanner) (users.Identity, error) {
	var (
		id                    users.Identity
		role                  string
		username, first, last sql.NullString
		created, updated      int64
	)
	if err := r.Scan(&id.ChatID, &role, &username, &first, &last, &created, &updated); err != nil {
		return users.Identity{}, err
	}
	id.Role = users.Role(role)
	id.Profile = users.Profile{Username: username.String, FirstName: first.String, LastName: last.String}
	id.CreatedAt = time.UnixMicro(created).UTC()
	id.UpdatedAt = time.UnixMicro(updated).UTC()
	return id, nil
}

func (s *sqliteStore) UpsertContact(ctx context.Context, chatID string, p users.Profile) (users.Identity, bool, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return users.Identity{}, false, users.ErrEmptyChatID
	}
	id, created, err := s.upsertContact(ctx, chatID, p)
	if err != nil {
		return users.Identity{}, false, unavailable("sqlite upsert contact", err)
	}
	return id, created, nil
}

// upsertContact inserts first and falls back to a profile update, so the
// insert's row count tells whether the record is new.
func (s *sqliteStore) upsertContact(ctx context.Context, chatID string, p users.Profile) (users.Identity, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return users.Identity{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UnixMicro()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO identities(chat_id, role, username, first_name, last_name, created_at, updated_at)
		 VALUES(?, 'CLIENT', ?, ?, ?, ?, ?)
		 ON CONFLICT(chat_id) DO NOTHING`,
		chatID, nullStr(p.Username), nullStr(p.FirstName), nullStr(p.LastName), now, now,
	)
	if err != nil {
		return users.Identity{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return users.Identity{}, false, err
	}
	created := n == 1
	if !created {
		if _, err := tx.ExecContext(ctx,
			`UPDATE identities SET username = ?, first_name = ?, last_name = ?, updated_at = ? WHERE chat_id = ?`,
			nullStr(p.Username), nullStr(p.FirstName), nullStr(p.LastName), now, chatID,
		); err != nil {
			return users.Identity{}, false, err
		}
	}
	id, err := scanSQLiteIdentity(tx.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE chat_id = ?`, chatID))
	if err != nil {
		return users.Identity{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return users.Identity{}, false, err
	}
	return id, created, nil
}

func (s *sqliteStore) GetByChatID(ctx context.Context, chatID string) (users.Identity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE chat_id = ?`, strings.TrimSpace(chatID))
	id, err := scanSQLiteIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return users.Identity{}, users.ErrNotFound
	}
	if err != nil {
		return users.Identity{}, unavailable("sqlite get", err)
	}
	return id, nil
}

func (s *sqliteStore) SetAdminRole(ctx context.Context, chatID string) (users.Identity, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return users.Identity{}, users.ErrEmptyChatID
	}
	now := s.now().UnixMicro()
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO identities(chat_id, role, created_at, updated_at)
		 VALUES(?, 'ADMIN', ?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET
		   updated_at = CASE WHEN identities.role = 'ADMIN' THEN identities.updated_at ELSE excluded.updated_at END,
		   role = 'ADMIN'
		 RETURNING `+identityColumns,
		chatID, now, now,
	)
	id, err := scanSQLiteIdentity(row)
	if err != nil {
		return users.Identity{}, unavailable("sqlite set admin", err)
	}
	return id, nil
}

func (s *sqliteStore) ListByRole(ctx context.Context, role users.Role, offset, limit int) ([]users.Identity, int, error) {
	if err := validRole(role); err != nil {
		return nil, 0, err
	}
	total, err := s.CountByRole(ctx, role)
	if err != nil {
		return nil, 0, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || offset >= total {
		return []users.Identity{}, total, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+identityColumns+` FROM identities
		 WHERE role = ?
		 ORDER BY created_at DESC, chat_id ASC
		 LIMIT ? OFFSET ?`,
		string(role), limit, offset,
	)
	if err != nil {
		return nil, 0, unavailable("sqlite list", err)
	}
	defer rows.Close()

	out := make([]users.Identity, 0, limit)
	for rows.Next() {
		id, err := scanSQLiteIdentity(rows)
		if err != nil {
			return nil, 0, unavailable("sqlite list scan", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, unavailable("sqlite list", err)
	}
	return out, total, nil
}

func (s *sqliteStore) CountByRole(ctx context.Context, role users.Role) (int, error) {
	if err := validRole(role); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM identities WHERE role = ?`, string(role)).Scan(&n); err != nil {
		return 0, unavailable("sqlite count", err)
	}
	return n, nil
}

func (s *sqliteStore) CountAll(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM identities`).Scan(&n); err != nil {
		return 0, unavailable("sqlite count", err)
	}
	return n, nil
}

func (s *sqliteStore) Ping(ctx context.Context) error {
	return unavailable("sqlite ping", s.db.PingContext(ctx))
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
