package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-importer/internal/domain/import/classifier"
)

func stagedRow(userID uuid.UUID, at time.Time, amount string) NewTransaction {
	return NewTransaction{
		Transaction: classifier.Transaction{
			TransactionDate: at,
			Amount:          decimal.RequireFromString(amount),
			Currency:        "₽",
			CashSource:      "Тинькофф Black",
			Category:        "Еда",
			Description:     "ПРОДУКТЫ МАГНИТ",
			TransactionType: "expense",
			PDFType:         "tbank_card",
			ImportID:        7,
		},
		UserID:    userID,
		CreatedAt: at.Add(time.Hour),
	}
}

func TestPostgresStore_InBatch(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	t.Run("commits allocate, check and copy in one transaction", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectExec("pg_advisory_xact_lock").
			WithArgs(userID.String()).
			WillReturnResult(pgxmock.NewResult("SELECT", 1))
		mock.ExpectQuery("nextval").
			WillReturnRows(pgxmock.NewRows([]string{"nextval"}).AddRow(int64(7)))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(userID, at, "Тинькофф Black", pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectCopyFrom(pgx.Identifier{"transactions"}, insertColumns).WillReturnResult(1)
		mock.ExpectCommit()

		store := NewPostgresStore(mock)
		err = store.InBatch(ctx, userID, func(ctx context.Context, b Batch) error {
			id, err := b.AllocateImportID(ctx)
			if err != nil {
				return err
			}
			assert.Equal(t, int64(7), id)

			dup, err := b.FindDuplicate(ctx, userID, at, "Тинькофф Black", decimal.RequireFromString("-1000"))
			if err != nil {
				return err
			}
			assert.False(t, dup)

			return b.BulkInsert(ctx, []NewTransaction{stagedRow(userID, at, "-1000")})
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when the copy fails", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		copyErr := errors.New("connection reset")
		mock.ExpectBegin()
		mock.ExpectExec("pg_advisory_xact_lock").
			WithArgs(userID.String()).
			WillReturnResult(pgxmock.NewResult("SELECT", 1))
		mock.ExpectCopyFrom(pgx.Identifier{"transactions"}, insertColumns).WillReturnError(copyErr)
		mock.ExpectRollback()

		store := NewPostgresStore(mock)
		err = store.InBatch(ctx, userID, func(ctx context.Context, b Batch) error {
			return b.BulkInsert(ctx, []NewTransaction{stagedRow(userID, at, "10"), stagedRow(userID, at, "20")})
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrPersistence)
		assert.ErrorIs(t, err, copyErr)

		var pe *PersistenceError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "bulk insert", pe.Op)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("short copy is a failure", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectExec("pg_advisory_xact_lock").WithArgs(userID.String()).WillReturnResult(pgxmock.NewResult("SELECT", 1))
		mock.ExpectCopyFrom(pgx.Identifier{"transactions"}, insertColumns).WillReturnResult(1)
		mock.ExpectRollback()

		store := NewPostgresStore(mock)
		err = store.InBatch(ctx, userID, func(ctx context.Context, b Batch) error {
			return b.BulkInsert(ctx, []NewTransaction{stagedRow(userID, at, "10"), stagedRow(userID, at, "20")})
		})
		assert.ErrorIs(t, err, ErrPersistence)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure surfaces as persistence error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin().WillReturnError(errors.New("no connection"))

		store := NewPostgresStore(mock)
		called := false
		err = store.InBatch(ctx, userID, func(context.Context, Batch) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, ErrPersistence)
		assert.False(t, called)
	})
}

func TestPostgresStore_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	userID := uuid.New()
	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	cols := []string{
		"id", "user_id", "transaction_date", "amount", "currency", "cash_source", "category",
		"description", "counterparty", "check_num", "transaction_type", "transaction_class",
		"target_amount", "target_cash_source", "pdf_type", "import_id", "created_at",
		"edited_at", "edited_by",
	}
	target := "-1000 ₽"
	mock.ExpectQuery("FROM transactions").
		WithArgs(userID, from, "Переводы").
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			int64(1), userID, at, numeric(decimal.RequireFromString("1000.00")), "₽", "Тинькофф Black", "Переводы",
			"ПЕРЕВОД МЕЖДУ СВОИМИ СЧЕТАМИ", "", "", "transfer", "личное",
			&target, (*string)(nil), "tbank_card", int64(3), at,
			(*time.Time)(nil), (*string)(nil),
		))

	store := NewPostgresStore(mock)
	got, err := store.List(context.Background(), userID, Filter{From: from, Category: "Переводы"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, "1000", got[0].Amount.String())
	assert.Equal(t, int64(3), got[0].ImportID)
	require.NotNil(t, got[0].TargetAmount)
	assert.Equal(t, "-1000 ₽", *got[0].TargetAmount)
	assert.Nil(t, got[0].EditedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
