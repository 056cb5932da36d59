package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pingbot/internal/storage"
	"pingbot/internal/users"
	logx "pingbot/pkg/logx"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "pingbot dev")
}

func TestSeedFromArgsAndConfig(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "pingbot.db")
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(
		"bot:\n  admin_chat_ids: [\"10\"]\nstorage:\n  driver: sqlite\n  path: "+db+"\n"), 0o600))

	out, err := run(t, "--config", cfgPath, "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "ok   10")

	out, err = run(t, "--config", cfgPath, "seed", "11", "11", " ")
	require.NoError(t, err)
	assert.Contains(t, out, "ok   11")

	st, err := storage.Open(context.Background(), storage.Config{Driver: "sqlite", Path: db}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	for _, id := range []string{"10", "11"} {
		got, err := st.GetByChatID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, users.RoleAdmin, got.Role)
	}
}

func TestSeedWithoutIDs(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"storage":{"driver":"memory"}}`), 0o600))
	t.Setenv("ADMIN_CHAT_IDS", "")

	_, err := run(t, "--config", cfgPath, "seed")
	assert.ErrorContains(t, err, "admin_chat_ids is empty")
}

func TestMigrateRejectsUnknownCommand(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{}`), 0o600))

	_, err := run(t, "--config", cfgPath, "migrate", "sideways")
	assert.ErrorContains(t, err, "unknown migrate command")
}
