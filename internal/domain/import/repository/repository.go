// Package repository persists classified statement transactions. Each import
// runs inside one store transaction that allocates the batch's import id,
// checks for duplicates and bulk inserts the new rows.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-importer/internal/domain/import/classifier"
)

// ErrPersistence marks any store failure. The batch it happened in is rolled back.
var ErrPersistence = errors.New("persistence failure")

// PersistenceError names the store operation that failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrPersistence, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

func fail(op string, err error) error {
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// NewTransaction is a row staged for insert.
type NewTransaction struct {
	classifier.Transaction
	UserID    uuid.UUID
	CreatedAt time.Time
}

// StoredTransaction is a persisted row.
type StoredTransaction struct {
	classifier.Transaction
	ID        int64
	UserID    uuid.UUID
	CreatedAt time.Time
	EditedAt  *time.Time
	EditedBy  *string
}

// Filter narrows List. Zero values mean "any".
type Filter struct {
	From     time.Time
	To       time.Time
	Category string
	ImportID int64
}

// Batch is the store surface available inside one import. Every call runs in
// the same store transaction.
type Batch interface {
	AllocateImportID(ctx context.Context) (int64, error)
	FindDuplicate(ctx context.Context, userID uuid.UUID, ts time.Time, cashSource string, amount decimal.Decimal) (bool, error)
	BulkInsert(ctx context.Context, rows []NewTransaction) error
}

// Store runs import batches and serves stored rows back.
type Store interface {
	// InBatch runs fn in one store transaction, serialized against other
	// batches of the same user. fn returning an error rolls everything back.
	InBatch(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context, b Batch) error) error
	List(ctx context.Context, userID uuid.UUID, f Filter) ([]StoredTransaction, error)
}
