package normalizer

import (
	"strings"

	"github.com/FACorreiaa/statement-importer/internal/domain/import/extractor"
	"github.com/FACorreiaa/statement-importer/internal/domain/patterns"
)

type streamLine struct {
	text string
	line int
}

// streamLines flattens rows into trimmed lines and cuts them to the marker window.
func streamLines(rows []extractor.Row, layout *patterns.TypeLayout, stats *Stats) ([]streamLine, error) {
	lines := make([]streamLine, 0, len(rows))
	for i, r := range rows {
		text := strings.Join(strings.Fields(strings.Join(r, " ")), " ")
		if text == "" {
			continue
		}
		if matchesAny(layout.SkipLines, text) {
			stats.Boilerplate++
			continue
		}
		lines = append(lines, streamLine{text: text, line: i})
	}

	start := 0
	if layout.StartMarker != nil {
		start = -1
		for i, l := range lines {
			if layout.StartMarker.MatchString(l.text) {
				start = i + 1
				break
			}
		}
		if start < 0 {
			return nil, &LayoutError{Type: layout.Tag, Reason: "start marker not found"}
		}
	}
	end := len(lines)
	if layout.EndMarker != nil {
		end = -1
		for i := start; i < len(lines); i++ {
			if layout.EndMarker.MatchString(lines[i].text) {
				end = i
				break
			}
		}
		if end < 0 {
			return nil, &LayoutError{Type: layout.Tag, Reason: "end marker not found"}
		}
	}
	stats.Boilerplate += start + len(lines) - end
	return lines[start:end], nil
}

// cursor walks the line window of one document.
type cursor struct {
	lines  []streamLine
	pos    int
	layout *patterns.TypeLayout
}

func (c *cursor) done() bool { return c.pos >= len(c.lines) }

func (c *cursor) isDate(i int) bool {
	return i < len(c.lines) && c.layout.DatePattern.MatchString(c.lines[i].text)
}

// openRecord consumes the date line at pos and the time token that follows it,
// either on the same line or on the next one.
func (c *cursor) openRecord(rec *Record) {
	date, rest, _ := capture(c.layout.DatePattern, c.lines[c.pos].text)
	rec.DateText = date
	rec.Line = min(rec.Line, c.lines[c.pos].line)
	c.pos++

	if t, _, ok := capture(c.layout.TimePattern, rest); ok {
		rec.TimeText = t
		return
	}
	if !c.done() && !c.isDate(c.pos) {
		if t, _, ok := capture(c.layout.TimePattern, c.lines[c.pos].text); ok {
			rec.TimeText = t
			c.pos++
		}
	}
}

// readWindow skips the configured lines and fills the fixed-offset fields.
// It reports false when the window runs past the data or into the next date line.
func (c *cursor) readWindow(rec *Record) bool {
	s := c.layout.Stream
	from := c.pos + s.SkipAfterDate
	to := from + s.RecordLines
	if to > len(c.lines) {
		c.pos = len(c.lines)
		return false
	}
	for i := from; i < to; i++ {
		if c.isDate(i) {
			c.pos = i
			return false
		}
	}

	window := c.lines[from:to]
	rec.RawAmount = window[s.AmountOffset].text
	for _, o := range s.DescriptionOffsets {
		rec.Description = appendText(rec.Description, window[o].text)
	}
	if s.CardOffset >= 0 {
		rec.CardRef = window[s.CardOffset].text
	}
	c.pos = to
	return true
}

// skipToDate moves to the next date line, counting what it passes.
func (c *cursor) skipToDate() int {
	n := 0
	for !c.done() && !c.isDate(c.pos) {
		c.pos++
		n++
	}
	return n
}

func (streamStrategy) normalize(rows []extractor.Row, layout *patterns.TypeLayout) ([]Record, Stats, error) {
	var stats Stats
	lines, err := streamLines(rows, layout, &stats)
	if err != nil {
		return nil, stats, err
	}

	c := &cursor{lines: lines, layout: layout}
	var (
		records    []Record
		candidates int
	)
	for !c.done() {
		if !c.isDate(c.pos) {
			stats.Orphaned += c.skipToDate()
			continue
		}
		candidates++
		rec := Record{Line: c.lines[c.pos].line}
		c.openRecord(&rec)

		if rec.TimeText == "" && layout.Stream.TimeRequired {
			stats.Malformed++
			stats.Orphaned += c.skipToDate()
			continue
		}
		if !c.readWindow(&rec) {
			stats.Truncated++
			stats.Orphaned += c.skipToDate()
			continue
		}
		for !c.done() && !c.isDate(c.pos) {
			rec.Description = appendText(rec.Description, c.lines[c.pos].text)
			stats.Merged++
			c.pos++
		}
		records = append(records, rec)
	}

	if err := allCandidatesFailed(layout, candidates, records); err != nil {
		return nil, stats, err
	}
	return records, stats, nil
}

func (descriptionFirstStrategy) normalize(rows []extractor.Row, layout *patterns.TypeLayout) ([]Record, Stats, error) {
	var stats Stats
	lines, err := streamLines(rows, layout, &stats)
	if err != nil {
		return nil, stats, err
	}

	c := &cursor{lines: lines, layout: layout}
	var (
		records    []Record
		candidates int
		pending    []streamLine
	)
	for !c.done() {
		if !c.isDate(c.pos) {
			pending = append(pending, c.lines[c.pos])
			c.pos++
			continue
		}
		candidates++
		rec := Record{Line: c.lines[c.pos].line}
		for _, l := range pending {
			rec.Description = appendText(rec.Description, l.text)
			rec.Line = min(rec.Line, l.line)
		}
		consumed := len(pending)
		pending = nil
		c.openRecord(&rec)

		if rec.TimeText == "" && layout.Stream.TimeRequired {
			stats.Malformed++
			stats.Orphaned += consumed
			continue
		}
		if !c.readWindow(&rec) {
			stats.Truncated++
			stats.Orphaned += consumed
			continue
		}
		// Description lines were consumed ahead of the date line.
		stats.Merged += max(consumed-1, 0)
		records = append(records, rec)
	}
	stats.Orphaned += len(pending)

	if err := allCandidatesFailed(layout, candidates, records); err != nil {
		return nil, stats, err
	}
	return records, stats, nil
}

func allCandidatesFailed(layout *patterns.TypeLayout, candidates int, records []Record) error {
	if candidates > 0 && len(records) == 0 {
		return &LayoutError{Type: layout.Tag, Reason: "every record ran out of input or lacked a required field"}
	}
	return nil
}
