// Package patterns holds the declarative rule sets that drive statement import:
// document type detection, per-type layouts, category patterns and special conditions.
// A Config is immutable once loaded; edits only happen between runs.
package patterns

import (
	"regexp"
)

// Family selects the extraction and normalization strategy for a document type.
type Family string

const (
	FamilyGrid                   Family = "grid"
	FamilyStream                 Family = "stream"
	FamilyStreamDescriptionFirst Family = "stream_description_first"
)

// IsStream reports whether the family is extracted as a linear text stream.
func (f Family) IsStream() bool {
	return f == FamilyStream || f == FamilyStreamDescriptionFirst
}

// OtherCategory is assigned when no category pattern matches a description.
const OtherCategory = "Other"

// DefaultTransactionType is used when no special condition sets a type.
const DefaultTransactionType = "expense"

// Config is the compiled PatternConfig.
type Config struct {
	// Types are kept in declaration order; detection picks the first match.
	Types             []*TypeLayout
	Categories        []Category
	SpecialConditions []Condition
}

// Type returns the layout registered under tag.
func (c *Config) Type(tag string) (*TypeLayout, bool) {
	for _, t := range c.Types {
		if t.Tag == tag {
			return t, true
		}
	}
	return nil, false
}

// TypeLayout describes one statement format.
type TypeLayout struct {
	Tag    string
	Family Family

	// Detect patterns are matched case-insensitively against first-page text.
	Detect []*regexp.Regexp

	// Columns lists the raw column indices to keep (grid family). Empty keeps all.
	Columns []int
	// ColumnEdges are optional X coordinates splitting a grid row into cells.
	ColumnEdges []float64

	StartMarker *regexp.Regexp
	EndMarker   *regexp.Regexp
	// SkipLines drop matching rows anywhere in the document (page banners, footers).
	SkipLines []*regexp.Regexp

	// DatePattern marks the row or line that opens a transaction; group 1, when
	// present, is the date text. TimePattern does the same for the time token.
	DatePattern *regexp.Regexp
	TimePattern *regexp.Regexp

	MergeSplitHeader bool
	DeleteRows       RowDeletion

	Fields GridFields
	Stream StreamLayout

	DateTimeLayout string
	Currency       string
	InvertSign     bool

	DefaultCashSource       string
	DefaultTransactionClass string
}

// RowDeletion removes data rows by position after the marker window is applied.
type RowDeletion struct {
	First   int
	Last    int
	Indices []int
}

// IsZero reports whether no deletion is configured.
func (d RowDeletion) IsZero() bool {
	return d.First == 0 && d.Last == 0 && len(d.Indices) == 0
}

// GridFields maps normalized (reindexed) grid columns to record fields.
// A negative index means the field is absent.
type GridFields struct {
	Date        int
	Time        int
	Amount      int
	Description int
	Card        int
}

// StreamLayout holds the fixed relative offsets of a stream record.
//
// After the date line (and the optional time token) the cursor skips SkipAfterDate
// lines, then reads a window of RecordLines lines. The offsets index into that window.
type StreamLayout struct {
	TimeRequired       bool
	SkipAfterDate      int
	RecordLines        int
	AmountOffset       int
	DescriptionOffsets []int
	CardOffset         int
}

// Category is a named, ordered list of description patterns.
type Category struct {
	Name     string
	Patterns []Pattern
}

// Pattern is one category pattern. Literal patterns are matched as
// case-insensitive substrings, the rest as case-insensitive regular expressions.
type Pattern struct {
	Source  string
	Literal bool
	Regex   *regexp.Regexp
}

// Condition applies its actions, in order, when Trigger matches the uppercase description.
type Condition struct {
	Trigger *regexp.Regexp
	Actions []Action
}

// Action assigns the value of Value to Field.
type Action struct {
	Field   Field
	Value   Expr
	Comment string
}
