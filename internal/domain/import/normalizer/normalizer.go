// Package normalizer rebuilds logical transactions from extracted statement rows.
// Each layout family has its own strategy; all of them trim boilerplate first and
// then fold physical rows that belong to one transaction into a single Record.
package normalizer

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/FACorreiaa/statement-importer/internal/domain/import/extractor"
	"github.com/FACorreiaa/statement-importer/internal/domain/patterns"
)

// ErrLayout marks a document whose structure does not fit its detected type.
var ErrLayout = errors.New("statement layout mismatch")

// LayoutError names the type and what was missing.
type LayoutError struct {
	Type   string
	Reason string
}

func (e *LayoutError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrLayout, e.Type, e.Reason)
}

func (e *LayoutError) Unwrap() error { return ErrLayout }

// Record is one logical transaction, still in text form.
type Record struct {
	DateText    string
	TimeText    string // empty when the statement carries no time
	RawAmount   string
	Description string
	CardRef     string
	// Line is the index of the first source row of the record.
	Line int
}

// Stats summarizes what happened to the input rows.
type Stats struct {
	InputRows int
	// Boilerplate rows removed by skip patterns, repeated banners, markers, headers and deletions.
	Boilerplate int
	// Merged continuation rows folded into a record.
	Merged int
	// Orphaned rows that belong to no record, e.g. text before the first date.
	Orphaned int
	// Truncated records whose fixed-offset window ran past the data or into the next record.
	Truncated int
	// Malformed records missing a required token such as the time.
	Malformed int
	Records   int
}

type strategy interface {
	normalize(rows []extractor.Row, layout *patterns.TypeLayout) ([]Record, Stats, error)
}

type (
	gridStrategy             struct{}
	streamStrategy           struct{}
	descriptionFirstStrategy struct{}
)

// Normalize turns raw rows into records in document order.
func Normalize(rows []extractor.Row, layout *patterns.TypeLayout) ([]Record, Stats, error) {
	var s strategy
	switch layout.Family {
	case patterns.FamilyGrid:
		s = gridStrategy{}
	case patterns.FamilyStream:
		s = streamStrategy{}
	case patterns.FamilyStreamDescriptionFirst:
		s = descriptionFirstStrategy{}
	default:
		return nil, Stats{InputRows: len(rows)}, &LayoutError{
			Type:   layout.Tag,
			Reason: fmt.Sprintf("no normalizer for family %q", layout.Family),
		}
	}

	records, stats, err := s.normalize(rows, layout)
	stats.InputRows = len(rows)
	stats.Records = len(records)
	return records, stats, err
}

// capture returns group 1 of the first match, or the whole match when the
// pattern has no group, together with the text following the match.
func capture(re *regexp.Regexp, s string) (value, rest string, ok bool) {
	if re == nil {
		return "", s, false
	}
	loc := re.FindStringSubmatchIndex(s)
	if loc == nil {
		return "", s, false
	}
	value = s[loc[0]:loc[1]]
	if len(loc) >= 4 && loc[2] >= 0 {
		value = s[loc[2]:loc[3]]
	}
	return strings.TrimSpace(value), strings.TrimSpace(s[loc[1]:]), true
}

func matchesAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func appendText(dst, src string) string {
	src = strings.TrimSpace(src)
	switch {
	case src == "":
		return dst
	case dst == "":
		return src
	default:
		return dst + " " + src
	}
}
