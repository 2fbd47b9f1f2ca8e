package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteConfig_DSN(t *testing.T) {
	dsn := SQLiteConfig{Path: "/var/lib/auth.db", BusyTimeoutMs: 2500}.DSN()

	assert.Contains(t, dsn, "file:/var/lib/auth.db?")
	assert.Contains(t, dsn, "_txlock=immediate")
	assert.Contains(t, dsn, "busy_timeout%282500%29")
}

func TestOpenSQLiteAndMigrate(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	migrations := widgetMigrations()

	require.NoError(t, Migrate(ctx, db, DialectSQLite, migrations, nil))
	// Re-running is a no-op.
	require.NoError(t, Migrate(ctx, db, DialectSQLite, migrations, nil))

	_, err = db.ExecContext(ctx, `INSERT INTO widgets (name) VALUES ('a')`)
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM widgets`).Scan(&n))
	assert.Equal(t, 1, n)
}
