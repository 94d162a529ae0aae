package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDB_ConnectionSettings(t *testing.T) {
	dir := t.TempDir()
	ResetDB()
	t.Cleanup(ResetDB)

	database, err := InitDB(filepath.Join(dir, "relay.db"))
	require.NoError(t, err)

	ctx := context.Background()

	// Hold two connections at once so the pool cannot hand back the same one
	first, err := database.Conn(ctx)
	require.NoError(t, err)
	defer first.Close()
	second, err := database.Conn(ctx)
	require.NoError(t, err)
	defer second.Close()

	var timeout int
	require.NoError(t, first.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout))
	assert.Equal(t, busyTimeoutMs, timeout)
	require.NoError(t, second.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout))
	assert.Equal(t, busyTimeoutMs, timeout)

	var mode string
	require.NoError(t, second.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var table string
	require.NoError(t, first.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'events'").Scan(&table))
	assert.Equal(t, "events", table)
}

func TestNewTestDB_Schema(t *testing.T) {
	testDB, err := NewTestDB()
	require.NoError(t, err)
	defer testDB.Close()

	_, err = testDB.Exec(`INSERT INTO events (session_id, connection_id, op, envelope) VALUES ('s', 1, 'SetTime', '{}')`)
	require.NoError(t, err)

	var count int
	require.NoError(t, testDB.QueryRow("SELECT COUNT(*) FROM events").Scan(&count))
	assert.Equal(t, 1, count)
}
