package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// sqliteTime is the stored timestamp format. Fixed width keeps text
// comparison equal to time comparison.
const sqliteTime = "2006-01-02 15:04:05.000000"

// SQLiteStore implements Store on a single-connection sqlite database.
// The one connection serializes every batch.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a sqlite-backed store. db should come from db.OpenSQLite.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) InBatch(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context, b Batch) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail("begin", err)
	}

	if err := fn(ctx, &sqliteBatch{tx: tx}); err != nil {
		_ = tx.Rollback()
		return fail("batch", err)
	}

	if err := tx.Commit(); err != nil {
		return fail("commit", err)
	}
	return nil
}

type sqliteBatch struct {
	tx *sql.Tx
}

func (b *sqliteBatch) AllocateImportID(ctx context.Context) (int64, error) {
	var id int64
	err := b.tx.QueryRowContext(ctx,
		`UPDATE import_sequence SET last_value = last_value + 1 WHERE id = 1 RETURNING last_value`,
	).Scan(&id)
	if err != nil {
		return 0, fail("allocate import id", err)
	}
	return id, nil
}

func (b *sqliteBatch) FindDuplicate(ctx context.Context, userID uuid.UUID, ts time.Time, cashSource string, amount decimal.Decimal) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE user_id = ? AND transaction_date = ? AND cash_source = ? AND amount = ?
		)
	`
	var exists bool
	err := b.tx.QueryRowContext(ctx, query, userID.String(), formatTime(ts), cashSource, amount.StringFixed(2)).Scan(&exists)
	if err != nil {
		return false, fail("find duplicate", err)
	}
	return exists, nil
}

func (b *sqliteBatch) BulkInsert(ctx context.Context, rows []NewTransaction) error {
	if len(rows) == 0 {
		return nil
	}

	stmt, err := b.tx.PrepareContext(ctx, `
		INSERT INTO transactions (`+strings.Join(insertColumns, ", ")+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fail("bulk insert", err)
	}
	defer stmt.Close()

	for i, r := range rows {
		_, err := stmt.ExecContext(ctx,
			r.UserID.String(), formatTime(r.TransactionDate), r.Amount.StringFixed(2), r.Currency, r.CashSource, r.Category,
			r.Description, r.Counterparty, r.CheckNum, r.TransactionType, r.TransactionClass,
			r.TargetAmount, r.TargetCashSource, r.PDFType, r.ImportID, formatTime(r.CreatedAt),
		)
		if err != nil {
			return fail("bulk insert", fmt.Errorf("row %d: %w", i, err))
		}
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, userID uuid.UUID, f Filter) ([]StoredTransaction, error) {
	where := []string{"user_id = ?"}
	args := []any{userID.String()}
	if !f.From.IsZero() {
		where = append(where, "transaction_date >= ?")
		args = append(args, formatTime(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "transaction_date < ?")
		args = append(args, formatTime(f.To))
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.ImportID != 0 {
		where = append(where, "import_id = ?")
		args = append(args, f.ImportID)
	}

	query := `
		SELECT id, user_id, transaction_date, amount, currency, cash_source, category,
		       description, counterparty, check_num, transaction_type, transaction_class,
		       target_amount, target_cash_source, pdf_type, import_id, created_at,
		       edited_at, edited_by
		FROM transactions
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY transaction_date, id
	`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fail("list", err)
	}
	defer rows.Close()

	var out []StoredTransaction
	for rows.Next() {
		var (
			t                        StoredTransaction
			user, date, amount, made string
			edited                   sql.NullString
		)
		err := rows.Scan(
			&t.ID, &user, &date, &amount, &t.Currency, &t.CashSource, &t.Category,
			&t.Description, &t.Counterparty, &t.CheckNum, &t.TransactionType, &t.TransactionClass,
			&t.TargetAmount, &t.TargetCashSource, &t.PDFType, &t.ImportID, &made,
			&edited, &t.EditedBy,
		)
		if err != nil {
			return nil, fail("list", err)
		}
		if err := decodeRow(&t, user, date, amount, made, edited); err != nil {
			return nil, fail("list", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("list", err)
	}
	return out, nil
}

func decodeRow(t *StoredTransaction, user, date, amount, made string, edited sql.NullString) error {
	var err error
	if t.UserID, err = uuid.Parse(user); err != nil {
		return fmt.Errorf("row %d user id: %w", t.ID, err)
	}
	if t.TransactionDate, err = parseTime(date); err != nil {
		return fmt.Errorf("row %d date: %w", t.ID, err)
	}
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return fmt.Errorf("row %d amount: %w", t.ID, err)
	}
	if t.CreatedAt, err = parseTime(made); err != nil {
		return fmt.Errorf("row %d created_at: %w", t.ID, err)
	}
	if edited.Valid {
		at, err := parseTime(edited.String)
		if err != nil {
			return fmt.Errorf("row %d edited_at: %w", t.ID, err)
		}
		t.EditedAt = &at
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTime)
}

func parseTime(s string) (time.Time, error) {
	return time.ParseInLocation(sqliteTime, s, time.UTC)
}
