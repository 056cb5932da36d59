package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pingbot/internal/users"
	logx "pingbot/pkg/logx"
)

type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
	now  func() time.Time
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger, o options) (users.Directory, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	if err := migrateUp(DriverPostgres, cfg, log); err != nil {
		return nil, err
	}

	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, unavailable("postgres open", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, unavailable("postgres ping", err)
	}
	log.Info("postgres directory opened", logx.String("host", pcfg.ConnConfig.Host), logx.String("database", pcfg.ConnConfig.Database))
	return &postgresStore{pool: pool, log: log, now: o.now}, nil
}

// scanPostgresIdentity reads identityColumns followed by any extra columns.
func scanPostgresIdentity(r pgx.Row, extra ...any) (users.Identity, error) {
	var (
		id                    users.Identity
		role                  string
		username, first, last *string
	)
	dest := append([]any{&id.ChatID, &role, &username, &first, &last, &id.CreatedAt, &id.UpdatedAt}, extra...)
	if err := r.Scan(dest...); err != nil {
		return users.Identity{}, err
	}
	id.Role = users.Role(role)
	id.Profile = users.Profile{Username: deref(username), FirstName: deref(first), LastName: deref(last)}
	id.CreatedAt = id.CreatedAt.UTC()
	id.UpdatedAt = id.UpdatedAt.UTC()
	return id, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s *postgresStore) UpsertContact(ctx context.Context, chatID string, p users.Profile) (users.Identity, bool, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return users.Identity{}, false, users.ErrEmptyChatID
	}
	now := s.now().UTC()
	row := s.pool.QueryRow(ctx,
		`INSERT INTO identities(chat_id, role, username, first_name, last_name, created_at, updated_at)
		 VALUES($1, 'CLIENT', $2, $3, $4, $5, $5)
		 ON CONFLICT(chat_id) DO UPDATE SET
		   username = EXCLUDED.username,
		   first_name = EXCLUDED.first_name,
		   last_name = EXCLUDED.last_name,
		   updated_at = EXCLUDED.updated_at
		 RETURNING `+identityColumns+`, (xmax = 0) AS inserted`,
		chatID, nullStr(p.Username), nullStr(p.FirstName), nullStr(p.LastName), now,
	)
	// xmax is zero only for a freshly inserted row version.
	var created bool
	id, err := scanPostgresIdentity(row, &created)
	if err != nil {
		return users.Identity{}, false, unavailable("postgres upsert contact", err)
	}
	return id, created, nil
}

func (s *postgresStore) GetByChatID(ctx context.Context, chatID string) (users.Identity, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE chat_id = $1`, strings.TrimSpace(chatID))
	id, err := scanPostgresIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return users.Identity{}, users.ErrNotFound
	}
	if err != nil {
		return users.Identity{}, unavailable("postgres get", err)
	}
	return id, nil
}

func (s *postgresStore) SetAdminRole(ctx context.Context, chatID string) (users.Identity, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return users.Identity{}, users.ErrEmptyChatID
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO identities(chat_id, role, created_at, updated_at)
		 VALUES($1, 'ADMIN', $2, $2)
		 ON CONFLICT(chat_id) DO UPDATE SET
		   updated_at = CASE WHEN identities.role = 'ADMIN' THEN identities.updated_at ELSE EXCLUDED.updated_at END,
		   role = 'ADMIN'
		 RETURNING `+identityColumns,
		chatID, s.now().UTC(),
	)
	id, err := scanPostgresIdentity(row)
	if err != nil {
		return users.Identity{}, unavailable("postgres set admin", err)
	}
	return id, nil
}

func (s *postgresStore) ListByRole(ctx context.Context, role users.Role, offset, limit int) ([]users.Identity, int, error) {
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
	rows, err := s.pool.Query(ctx,
		`SELECT `+identityColumns+` FROM identities
		 WHERE role = $1
		 ORDER BY created_at DESC, chat_id ASC
		 LIMIT $2 OFFSET $3`,
		string(role), limit, offset,
	)
	if err != nil {
		return nil, 0, unavailable("postgres list", err)
	}
	defer rows.Close()

	out := make([]users.Identity, 0, limit)
	for rows.Next() {
		id, err := scanPostgresIdentity(rows)
		if err != nil {
			return nil, 0, unavailable("postgres list scan", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, unavailable("postgres list", err)
	}
	return out, total, nil
}

func (s *postgresStore) CountByRole(ctx context.Context, role users.Role) (int, error) {
	if err := validRole(role); err != nil {
		return 0, err
	}
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM identities WHERE role = $1`, string(role)).Scan(&n); err != nil {
		return 0, unavailable("postgres count", err)
	}
	return n, nil
}

func (s *postgresStore) CountAll(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM identities`).Scan(&n); err != nil {
		return 0, unavailable("postgres count", err)
	}
	return n, nil
}

func (s *postgresStore) Ping(ctx context.Context) error {
	return unavailable("postgres ping", s.pool.Ping(ctx))
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}
