package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pingbot/internal/users"
	logx "pingbot/pkg/logx"
)

// stepClock advances one second per call so creation order is observable.
type stepClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newStepClock() *stepClock {
	return &stepClock{cur: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Second)
	return c.cur
}

type factory func(t *testing.T, clock *stepClock) users.Directory

func backends() map[string]factory {
	return map[string]factory{
		"memory": func(t *testing.T, clock *stepClock) users.Directory {
			return NewMemory(WithClock(clock.Now))
		},
		"sqlite": func(t *testing.T, clock *stepClock) users.Directory {
			path := filepath.Join(t.TempDir(), "pingbot.db")
			dir, err := Open(context.Background(), Config{Driver: "sqlite", Path: path}, logx.Nop(), WithClock(clock.Now))
			require.NoError(t, err)
			t.Cleanup(func() { _ = dir.Close() })
			return dir
		},
	}
}

func eachBackend(t *testing.T, fn func(t *testing.T, dir users.Directory)) {
	for name, mk := range backends() {
		t.Run(name, func(t *testing.T) {
			fn(t, mk(t, newStepClock()))
		})
	}
}

func TestUpsertContact_CreatesClientAndKeepsCreatedAt(t *testing.T) {
	eachBackend(t, func(t *testing.T, dir users.Directory) {
		ctx := context.Background()

		first, created, err := dir.UpsertContact(ctx, "u1", users.Profile{Username: "alice"})
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, users.RoleClient, first.Role)
		assert.Equal(t, "alice", first.Profile.Username)

		second, created, err := dir.UpsertContact(ctx, "u1", users.Profile{FirstName: "Alice", LastName: "Liddell"})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, users.RoleClient, second.Role)
		assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
		assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
		assert.Equal(t, users.Profile{FirstName: "Alice", LastName: "Liddell"}, second.Profile)

		total, err := dir.CountAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})
}

func TestUpsertContact_ReportsCreationUnderFrozenClock(t *testing.T) {
	frozen := func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	dirs := map[string]users.Directory{"memory": NewMemory(WithClock(frozen))}
	sq, err := Open(context.Background(), Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "frozen.db")}, logx.Nop(), WithClock(frozen))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	dirs["sqlite"] = sq

	for name, dir := range dirs {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first, created, err := dir.UpsertContact(ctx, "u1", users.Profile{Username: "alice"})
			require.NoError(t, err)
			assert.True(t, created)

			second, created, err := dir.UpsertContact(ctx, "u1", users.Profile{Username: "alice2"})
			require.NoError(t, err)
			assert.False(t, created)
			// Same instant on both writes: timestamps alone cannot tell.
			assert.True(t, second.CreatedAt.Equal(second.UpdatedAt))
			assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
			assert.Equal(t, "alice2", second.Profile.Username)
		})
	}
}

func TestUpsertContact_NeverDemotesAdmin(t *testing.T) {
	eachBackend(t, func(t *testing.T, dir users.Directory) {
		ctx := context.Background()
		_, err := dir.SetAdminRole(ctx, "a1")
		require.NoError(t, err)

		got, created, err := dir.UpsertContact(ctx, "a1", users.Profile{Username: "boss"})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, users.RoleAdmin, got.Role)
		assert.Equal(t, "boss", got.Profile.Username)
	})
}

func TestSetAdminRole_Idempotent(t *testing.T) {
	eachBackend(t, func(t *testing.T, dir users.Directory) {
		ctx := context.Background()

		a, err := dir.SetAdminRole(ctx, "a1")
		require.NoError(t, err)
		b, err := dir.SetAdminRole(ctx, "a1")
		require.NoError(t, err)

		assert.Equal(t, users.RoleAdmin, b.Role)
		assert.Equal(t, users.Profile{}, b.Profile)
		assert.True(t, a.CreatedAt.Equal(b.CreatedAt))
		assert.True(t, a.UpdatedAt.Equal(b.UpdatedAt))

		n, err := dir.CountByRole(ctx, users.RoleAdmin)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestSetAdminRole_PromotesExistingClient(t *testing.T) {
	eachBackend(t, func(t *testing.T, dir users.Directory) {
		ctx := context.Background()
		c, _, err := dir.UpsertContact(ctx, "u9", users.Profile{Username: "carol"})
		require.NoError(t, err)

		a, err := dir.SetAdminRole(ctx, "u9")
		require.NoError(t, err)
		assert.Equal(t, users.RoleAdmin, a.Role)
		assert.Equal(t, "carol", a.Profile.Username)
		assert.True(t, c.CreatedAt.Equal(a.CreatedAt))
	})
}

func TestGetByChatID_NotFound(t *testing.T) {
	eachBackend(t, func(t *testing.T, dir users.Directory) {
		_, err := dir.GetByChatID(context.Background(), "nobody")
		assert.ErrorIs(t, err, users.ErrNotFound)
	})
}

func TestListByRole_OrderAndPaging(t *testing.T) {
	eachBackend(t, func(t *testing.T, dir users.Directory) {
		ctx := context.Background()
		for i := 1; i <= 12; i++ {
			_, _, err := dir.UpsertContact(ctx, fmt.Sprintf("c%02d", i), users.Profile{})
			require.NoError(t, err)
		}
		_, err := dir.SetAdminRole(ctx, "a1")
		require.NoError(t, err)

		page1, total, err := dir.ListByRole(ctx, users.RoleClient, 0, 5)
		require.NoError(t, err)
		assert.Equal(t, 12, total)
		require.Len(t, page1, 5)
		assert.Equal(t, "c12", page1[0].ChatID)
		assert.Equal(t, "c08", page1[4].ChatID)

		page3, total, err := dir.ListByRole(ctx, users.RoleClient, 10, 5)
		require.NoError(t, err)
		assert.Equal(t, 12, total)
		require.Len(t, page3, 2)
		assert.Equal(t, "c02", page3[0].ChatID)
		assert.Equal(t, "c01", page3[1].ChatID)

		beyond, total, err := dir.ListByRole(ctx, users.RoleClient, 20, 5)
		require.NoError(t, err)
		assert.Equal(t, 12, total)
		assert.Empty(t, beyond)
	})
}

func TestListByRole_TiesBrokenByChatID(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	dir := NewMemory(WithClock(func() time.Time { return fixed }))
	ctx := context.Background()
	for _, id := range []string{"b", "c", "a"} {
		_, _, err := dir.UpsertContact(ctx, id, users.Profile{})
		require.NoError(t, err)
	}
	items, _, err := dir.ListByRole(ctx, users.RoleClient, 0, 10)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{items[0].ChatID, items[1].ChatID, items[2].ChatID})
}

func TestMemory_FailureIsUnavailable(t *testing.T) {
	dir := NewMemory()
	dir.SetFailure(errors.New("disk on fire"))

	_, err := dir.GetByChatID(context.Background(), "u1")
	assert.ErrorIs(t, err, users.ErrUnavailable)
	assert.ErrorContains(t, err, "disk on fire")
	assert.ErrorIs(t, dir.Ping(context.Background()), users.ErrUnavailable)

	dir.SetFailure(nil)
	assert.NoError(t, dir.Ping(context.Background()))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mongo"}, logx.Nop())
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestPgx5URL(t *testing.T) {
	u, err := pgx5URL("postgres://bot:pw@localhost:5432/pingbot?sslmode=disable")
	require.NoError(t, err)
	assert.Equal(t, "pgx5://bot:pw@localhost:5432/pingbot?sslmode=disable", u)

	_, err = pgx5URL("host=localhost dbname=pingbot")
	assert.Error(t, err)
}

func TestMigrate_SQLiteUpAndVersion(t *testing.T) {
	cfg := Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "m.db")}
	require.NoError(t, Migrate(cfg, logx.Nop(), "up", nil))
	require.NoError(t, Migrate(cfg, logx.Nop(), "up", nil))
	require.NoError(t, Migrate(cfg, logx.Nop(), "version", nil))
	assert.Error(t, Migrate(cfg, logx.Nop(), "sideways", nil))
}
