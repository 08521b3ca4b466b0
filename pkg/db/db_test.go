package db

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_SQLite(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	conn, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, Migrate(ctx, conn, DriverSQLite, logger))

	var last int64
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT last_value FROM import_sequence WHERE id = 1`).Scan(&last))
	assert.Equal(t, int64(0), last)

	var count int
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&count))
	assert.Zero(t, count)

	t.Run("second run is a no-op", func(t *testing.T) {
		require.NoError(t, Migrate(ctx, conn, DriverSQLite, logger))
	})
}

func TestNew_UnsupportedDriver(t *testing.T) {
	_, err := New(Config{Driver: "mysql"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}
