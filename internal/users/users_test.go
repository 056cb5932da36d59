package users_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pingbot/internal/storage"
	"pingbot/internal/users"
)

func TestProfileLabel(t *testing.T) {
	assert.Equal(t, "@alice", users.Profile{Username: "alice", FirstName: "A"}.Label())
	assert.Equal(t, "@alice", users.Profile{Username: "@alice"}.Label())
	assert.Equal(t, "Ann Lee", users.Profile{FirstName: "Ann", LastName: "Lee"}.Label())
	assert.Equal(t, "Ann", users.Profile{FirstName: "Ann"}.Label())
	assert.Equal(t, "Unknown User", users.Profile{}.Label())
}

func TestResolveRole(t *testing.T) {
	ctx := context.Background()
	dir := storage.NewMemory()
	_, err := dir.SetAdminRole(ctx, "a1")
	require.NoError(t, err)
	_, _, err = dir.UpsertContact(ctx, "u1", users.Profile{})
	require.NoError(t, err)

	r := users.NewResolver(dir)

	role, err := r.ResolveRole(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, users.RoleAdmin, role)

	role, err = r.ResolveRole(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, users.RoleClient, role)
}

func TestResolveRole_UnknownIsClientWithoutSideEffects(t *testing.T) {
	ctx := context.Background()
	dir := storage.NewMemory()
	r := users.NewResolver(dir)

	role, err := r.ResolveRole(ctx, "stranger")
	require.NoError(t, err)
	assert.Equal(t, users.RoleClient, role)

	n, err := dir.CountAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestResolveRole_BackendFailureIsNotMasked(t *testing.T) {
	dir := storage.NewMemory()
	dir.SetFailure(errors.New("down"))

	_, err := users.NewResolver(dir).ResolveRole(context.Background(), "a1")
	assert.ErrorIs(t, err, users.ErrUnavailable)
}

func TestSeed_IdempotentAndDeduplicated(t *testing.T) {
	ctx := context.Background()
	dir := storage.NewMemory()

	rep := users.Seed(ctx, dir, []string{"a1", " a2 ", "", "a1"})
	require.Len(t, rep.Outcomes, 2)
	assert.Zero(t, rep.Failed())

	rep = users.Seed(ctx, dir, []string{"a1", "a2"})
	assert.Zero(t, rep.Failed())

	admins, err := dir.CountByRole(ctx, users.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, 2, admins)
	total, err := dir.CountAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestSeed_ReportsFailures(t *testing.T) {
	dir := storage.NewMemory()
	dir.SetFailure(errors.New("down"))

	rep := users.Seed(context.Background(), dir, []string{"a1", "a2"})
	assert.Equal(t, 2, rep.Failed())
}

func TestSplitIDs(t *testing.T) {
	assert.Equal(t, []string{"1", "2", "3"}, users.SplitIDs(" 1, 2,,3 "))
	assert.Nil(t, users.SplitIDs(""))
}

func TestLoadStats(t *testing.T) {
	ctx := context.Background()
	dir := storage.NewMemory()
	users.Seed(ctx, dir, []string{"a1"})
	for _, id := range []string{"u1", "u2", "u3"} {
		_, _, err := dir.UpsertContact(ctx, id, users.Profile{})
		require.NoError(t, err)
	}
	st, err := users.LoadStats(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, users.Stats{Total: 4, Admins: 1, Clients: 3}, st)
}
