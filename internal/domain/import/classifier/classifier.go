// Package classifier maps normalized records onto transactions: it parses dates
// and amounts, assigns categories, runs special conditions and applies the
// user's per-import overrides, in that order.
package classifier

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-importer/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-importer/internal/domain/patterns"
)

// ErrParse marks a record dropped because its date or amount did not parse.
var ErrParse = errors.New("unparseable record")

// ParseError describes one dropped record. It is never fatal.
type ParseError struct {
	Line  int
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v: line %d: %s %q: %v", ErrParse, e.Line, e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() []error { return []error{ErrParse, e.Err} }

// Transaction is a classified statement transaction, ready for persistence.
type Transaction struct {
	TransactionDate  time.Time
	Amount           decimal.Decimal
	Currency         string
	CashSource       string
	Category         string
	Description      string
	Counterparty     string
	CheckNum         string
	TransactionType  string
	TransactionClass string
	TargetAmount     *string
	TargetCashSource *string
	PDFType          string
	ImportID         int64
}

// Result holds the classified transactions in record order plus the dropped rows.
type Result struct {
	Transactions []Transaction
	Dropped      int
	Errors       []*ParseError
}

// Classifier is safe for concurrent use; it only reads its config.
type Classifier struct {
	cfg    *patterns.Config
	engine *Engine
	fuzzy  *FuzzyMatcher
	loc    *time.Location
	logger *slog.Logger
}

// New compiles the category patterns of cfg.
func New(cfg *patterns.Config, logger *slog.Logger) *Classifier {
	return &Classifier{
		cfg:    cfg,
		engine: NewEngine(cfg.Categories),
		fuzzy:  NewFuzzyMatcher(cfg.Categories),
		loc:    time.UTC,
		logger: logger,
	}
}

// WithLocation sets the time zone statement timestamps are read in.
func (c *Classifier) WithLocation(loc *time.Location) *Classifier {
	if loc != nil {
		c.loc = loc
	}
	return c
}

// Category returns the first matching category for description, or patterns.OtherCategory.
func (c *Classifier) Category(description string) string {
	if m, ok := c.engine.Match(strings.ToUpper(description)); ok {
		return m.category
	}
	return patterns.OtherCategory
}

// Suggest proposes the closest configured pattern for a description.
func (c *Classifier) Suggest(description string) (Suggestion, bool) {
	return c.fuzzy.Suggest(description)
}

// Classify maps records in order. Rows whose date or amount cannot be parsed are
// dropped and reported in Result.Errors.
func (c *Classifier) Classify(records []normalizer.Record, layout *patterns.TypeLayout, overrides []Override) Result {
	var res Result
	for _, rec := range records {
		tx, perr := c.classifyOne(rec, layout, overrides)
		if perr != nil {
			res.Dropped++
			res.Errors = append(res.Errors, perr)
			c.logger.Debug("record dropped", slog.String("type", layout.Tag), slog.Any("error", perr))
			continue
		}
		if tx.Category == patterns.OtherCategory {
			if s, ok := c.Suggest(tx.Description); ok {
				c.logger.Debug("uncategorized transaction",
					slog.String("description", tx.Description),
					slog.String("closest_category", s.Category),
					slog.String("closest_pattern", s.Pattern),
					slog.Int("score", s.Score),
				)
			}
		}
		res.Transactions = append(res.Transactions, tx)
	}
	return res
}

func (c *Classifier) classifyOne(rec normalizer.Record, layout *patterns.TypeLayout, overrides []Override) (Transaction, *ParseError) {
	ts, err := c.parseTime(rec, layout)
	if err != nil {
		return Transaction{}, &ParseError{Line: rec.Line, Field: "date", Value: strings.TrimSpace(rec.DateText + " " + rec.TimeText), Err: err}
	}
	amount, err := ParseAmount(rec.RawAmount, layout.Currency)
	if err != nil {
		return Transaction{}, &ParseError{Line: rec.Line, Field: "amount", Value: rec.RawAmount, Err: err}
	}

	d := newDraft(rec, layout)
	if layout.InvertSign {
		d.set(patterns.FieldAmount, FormatAmount(amount.Neg(), layout.Currency))
	}
	d.set(patterns.FieldCategory, c.Category(rec.Description))

	if err := d.applyConditions(c.cfg.SpecialConditions, layout.Currency); err != nil {
		return Transaction{}, &ParseError{Line: rec.Line, Field: "amount", Value: d.get(patterns.FieldAmount), Err: err}
	}
	d.applyOverrides(overrides)

	// Conditions may rewrite the amount, so it is parsed again from the draft.
	final, err := ParseAmount(d.get(patterns.FieldAmount), layout.Currency)
	if err != nil {
		return Transaction{}, &ParseError{Line: rec.Line, Field: "amount", Value: d.get(patterns.FieldAmount), Err: err}
	}

	tx := Transaction{
		TransactionDate:  ts,
		Amount:           final,
		Currency:         layout.Currency,
		CashSource:       d.get(patterns.FieldCashSource),
		Category:         d.get(patterns.FieldCategory),
		Description:      d.get(patterns.FieldDescription),
		Counterparty:     d.get(patterns.FieldCounterparty),
		CheckNum:         d.get(patterns.FieldCheckNum),
		TransactionType:  d.get(patterns.FieldTransactionType),
		TransactionClass: d.get(patterns.FieldTransactionClass),
		TargetAmount:     d.optional(patterns.FieldTargetAmount),
		TargetCashSource: d.optional(patterns.FieldTargetCashSource),
		PDFType:          layout.Tag,
	}
	if tx.TransactionType == "" {
		tx.TransactionType = patterns.DefaultTransactionType
	}
	if tx.Category == "" {
		tx.Category = patterns.OtherCategory
	}
	return tx, nil
}

// sentinelTime stands in for statements that carry no time of day.
const sentinelTime = "00:00"

func (c *Classifier) parseTime(rec normalizer.Record, layout *patterns.TypeLayout) (time.Time, error) {
	date := strings.TrimSpace(rec.DateText)
	if date == "" {
		return time.Time{}, errors.New("empty date")
	}
	clock := strings.TrimSpace(rec.TimeText)
	if clock == "" {
		clock = sentinelTime
	}
	ts, err := time.ParseInLocation(layout.DateTimeLayout, date+" "+clock, c.loc)
	if err == nil {
		return ts, nil
	}
	// Date-only layouts.
	if rec.TimeText == "" {
		if ts, err2 := time.ParseInLocation(layout.DateTimeLayout, date, c.loc); err2 == nil {
			return ts, nil
		}
	}
	return time.Time{}, err
}
