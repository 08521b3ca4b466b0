package repository

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-importer/pkg/db"
)

func newSQLiteStore(t *testing.T) (*SQLiteStore, *sql.DB) {
	t.Helper()
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, db.Migrate(ctx, conn, db.DriverSQLite, slog.New(slog.NewTextHandler(io.Discard, nil))))
	return NewSQLiteStore(conn), conn
}

func countRows(t *testing.T, conn *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM transactions`).Scan(&n))
	return n
}

func TestSQLiteStore_ImportIDsIncrease(t *testing.T) {
	store, _ := newSQLiteStore(t)
	ctx := context.Background()
	userID := uuid.New()

	var ids []int64
	for range 3 {
		err := store.InBatch(ctx, userID, func(ctx context.Context, b Batch) error {
			id, err := b.AllocateImportID(ctx)
			ids = append(ids, id)
			return err
		})
		require.NoError(t, err)
	}
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestSQLiteStore_FindDuplicate(t *testing.T) {
	store, _ := newSQLiteStore(t)
	ctx := context.Background()
	userID := uuid.New()
	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	require.NoError(t, store.InBatch(ctx, userID, func(ctx context.Context, b Batch) error {
		return b.BulkInsert(ctx, []NewTransaction{stagedRow(userID, at, "-1000")})
	}))

	msk := time.FixedZone("MSK", 3*60*60)
	tests := []struct {
		name   string
		user   uuid.UUID
		at     time.Time
		source string
		amount string
		want   bool
	}{
		{"exact match", userID, at, "Тинькофф Black", "-1000", true},
		{"same instant in another zone", userID, at.In(msk), "Тинькофф Black", "-1000.00", true},
		{"different minute", userID, at.Add(time.Minute), "Тинькофф Black", "-1000", false},
		{"different source", userID, at, "СберКарта", "-1000", false},
		{"different amount", userID, at, "Тинькофф Black", "-1000.01", false},
		{"different user", uuid.New(), at, "Тинькофф Black", "-1000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got bool
			err := store.InBatch(ctx, tt.user, func(ctx context.Context, b Batch) error {
				var err error
				got, err = b.FindDuplicate(ctx, tt.user, tt.at, tt.source, decimal.RequireFromString(tt.amount))
				return err
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSQLiteStore_BatchAtomicity(t *testing.T) {
	store, conn := newSQLiteStore(t)
	ctx := context.Background()
	userID := uuid.New()
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	_, err := conn.Exec(`
		CREATE TRIGGER reject_boom BEFORE INSERT ON transactions
		WHEN NEW.description = 'BOOM'
		BEGIN SELECT RAISE(ABORT, 'rejected'); END
	`)
	require.NoError(t, err)

	rows := make([]NewTransaction, 0, 4)
	for i := range 4 {
		r := stagedRow(userID, at.Add(time.Duration(i)*time.Hour), "100")
		if i == 2 {
			r.Description = "BOOM"
		}
		rows = append(rows, r)
	}

	err = store.InBatch(ctx, userID, func(ctx context.Context, b Batch) error {
		if _, err := b.AllocateImportID(ctx); err != nil {
			return err
		}
		return b.BulkInsert(ctx, rows)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Zero(t, countRows(t, conn), "no row of a failed batch may remain")

	t.Run("sequence rolls back with the batch", func(t *testing.T) {
		var id int64
		require.NoError(t, store.InBatch(ctx, userID, func(ctx context.Context, b Batch) error {
			var err error
			id, err = b.AllocateImportID(ctx)
			return err
		}))
		assert.Equal(t, int64(1), id)
	})

	t.Run("callback error rolls back", func(t *testing.T) {
		stop := errors.New("stop")
		err := store.InBatch(ctx, userID, func(ctx context.Context, b Batch) error {
			if err := b.BulkInsert(ctx, rows[:2]); err != nil {
				return err
			}
			return stop
		})
		assert.ErrorIs(t, err, stop)
		assert.Zero(t, countRows(t, conn))
	})
}

func TestSQLiteStore_List(t *testing.T) {
	store, _ := newSQLiteStore(t)
	ctx := context.Background()
	userID := uuid.New()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	target := "-1000 ₽"
	rows := []NewTransaction{
		stagedRow(userID, base, "-250.5"),
		stagedRow(userID, base.Add(48*time.Hour), "-1000"),
		stagedRow(userID, base.Add(96*time.Hour), "300"),
	}
	rows[1].Category = "Переводы"
	rows[1].TargetAmount = &target
	rows[2].ImportID = 8

	require.NoError(t, store.InBatch(ctx, userID, func(ctx context.Context, b Batch) error {
		return b.BulkInsert(ctx, rows)
	}))
	require.NoError(t, store.InBatch(ctx, uuid.New(), func(ctx context.Context, b Batch) error {
		return b.BulkInsert(ctx, []NewTransaction{stagedRow(uuid.New(), base, "1")})
	}))

	t.Run("all rows of the user in date order", func(t *testing.T) {
		got, err := store.List(ctx, userID, Filter{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.True(t, got[0].TransactionDate.Equal(base))
		assert.Equal(t, "-250.5", got[0].Amount.String())
		assert.Equal(t, userID, got[0].UserID)
		assert.Nil(t, got[0].TargetAmount)
	})

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"date range", Filter{From: base.Add(time.Hour), To: base.Add(72 * time.Hour)}, 1},
		{"category", Filter{Category: "Переводы"}, 1},
		{"import id", Filter{ImportID: 8}, 1},
		{"no match", Filter{Category: "Связь"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.List(ctx, userID, tt.filter)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}

	got, err := store.List(ctx, userID, Filter{Category: "Переводы"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].TargetAmount)
	assert.Equal(t, target, *got[0].TargetAmount)
}
