package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// pgxPool is the subset of *pgxpool.Pool the store needs.
type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var insertColumns = []string{
	"user_id", "transaction_date", "amount", "currency", "cash_source", "category",
	"description", "counterparty", "check_num", "transaction_type", "transaction_class",
	"target_amount", "target_cash_source", "pdf_type", "import_id", "created_at",
}

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	pool pgxPool
}

// NewPostgresStore creates a PostgreSQL-backed store
func NewPostgresStore(pool pgxPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// InBatch holds a per-user transaction-scoped advisory lock for the whole batch.
func (s *PostgresStore) InBatch(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context, b Batch) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fail("begin", err)
	}

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, userID.String()); err != nil {
		_ = tx.Rollback(ctx)
		return fail("lock", err)
	}

	if err := fn(ctx, &pgBatch{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return fail("batch", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fail("commit", err)
	}
	return nil
}

type pgBatch struct {
	tx pgx.Tx
}

func (b *pgBatch) AllocateImportID(ctx context.Context) (int64, error) {
	var id int64
	if err := b.tx.QueryRow(ctx, `SELECT nextval('import_id_seq')`).Scan(&id); err != nil {
		return 0, fail("allocate import id", err)
	}
	return id, nil
}

func (b *pgBatch) FindDuplicate(ctx context.Context, userID uuid.UUID, ts time.Time, cashSource string, amount decimal.Decimal) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE user_id = $1 AND transaction_date = $2 AND cash_source = $3 AND amount = $4
		)
	`
	var exists bool
	if err := b.tx.QueryRow(ctx, query, userID, ts, cashSource, numeric(amount)).Scan(&exists); err != nil {
		return false, fail("find duplicate", err)
	}
	return exists, nil
}

func (b *pgBatch) BulkInsert(ctx context.Context, rows []NewTransaction) error {
	if len(rows) == 0 {
		return nil
	}

	values := make([][]any, 0, len(rows))
	for _, r := range rows {
		values = append(values, []any{
			r.UserID, r.TransactionDate, numeric(r.Amount), r.Currency, r.CashSource, r.Category,
			r.Description, r.Counterparty, r.CheckNum, r.TransactionType, r.TransactionClass,
			r.TargetAmount, r.TargetCashSource, r.PDFType, r.ImportID, r.CreatedAt,
		})
	}

	n, err := b.tx.CopyFrom(ctx, pgx.Identifier{"transactions"}, insertColumns, pgx.CopyFromRows(values))
	if err != nil {
		return fail("bulk insert", err)
	}
	if int(n) != len(rows) {
		return fail("bulk insert", fmt.Errorf("copied %d of %d rows", n, len(rows)))
	}
	return nil
}

// List returns the user's rows ordered by date.
func (s *PostgresStore) List(ctx context.Context, userID uuid.UUID, f Filter) ([]StoredTransaction, error) {
	where := []string{"user_id = $1"}
	args := []any{userID}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if !f.From.IsZero() {
		add("transaction_date >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("transaction_date < $%d", f.To)
	}
	if f.Category != "" {
		add("category = $%d", f.Category)
	}
	if f.ImportID != 0 {
		add("import_id = $%d", f.ImportID)
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

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fail("list", err)
	}
	defer rows.Close()

	var out []StoredTransaction
	for rows.Next() {
		var (
			t      StoredTransaction
			amount pgtype.Numeric
		)
		err := rows.Scan(
			&t.ID, &t.UserID, &t.TransactionDate, &amount, &t.Currency, &t.CashSource, &t.Category,
			&t.Description, &t.Counterparty, &t.CheckNum, &t.TransactionType, &t.TransactionClass,
			&t.TargetAmount, &t.TargetCashSource, &t.PDFType, &t.ImportID, &t.CreatedAt,
			&t.EditedAt, &t.EditedBy,
		)
		if err != nil {
			return nil, fail("list", err)
		}
		t.Amount = fromNumeric(amount)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("list", err)
	}
	return out, nil
}

func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func fromNumeric(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}
