package normalizer

import (
	"strings"

	"github.com/FACorreiaa/statement-importer/internal/domain/import/extractor"
	"github.com/FACorreiaa/statement-importer/internal/domain/patterns"
)

type gridRow struct {
	cells []string
	line  int
}

func (r gridRow) cell(i int) string {
	if i < 0 || i >= len(r.cells) {
		return ""
	}
	return r.cells[i]
}

func (gridStrategy) normalize(rows []extractor.Row, layout *patterns.TypeLayout) ([]Record, Stats, error) {
	var stats Stats

	// Column selection and page-level skip patterns.
	selected := make([]gridRow, 0, len(rows))
	for i, raw := range rows {
		if matchesAny(layout.SkipLines, strings.Join(raw, " ")) {
			stats.Boilerplate++
			continue
		}
		selected = append(selected, gridRow{cells: selectColumns(raw, layout.Columns), line: i})
	}

	selected = dropRepeatedBanners(selected, layout, &stats)

	start := -1
	for i, r := range selected {
		if layout.StartMarker.MatchString(r.cell(0)) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, stats, &LayoutError{Type: layout.Tag, Reason: "start marker not found"}
	}
	end := len(selected)
	if layout.EndMarker != nil {
		end = -1
		for i := start + 1; i < len(selected); i++ {
			if layout.EndMarker.MatchString(selected[i].cell(0)) {
				end = i
				break
			}
		}
		if end < 0 {
			return nil, stats, &LayoutError{Type: layout.Tag, Reason: "end marker not found"}
		}
	}
	stats.Boilerplate += start + len(selected) - end
	window := selected[start:end]

	// The marker row is the table header. A header wrapped onto two rows is
	// merged first so the continuation never reaches the data.
	header := 1
	if layout.MergeSplitHeader && len(window) > 1 {
		window[0] = mergeRows(window[0], window[1])
		header = 2
	}
	stats.Boilerplate += header
	data := window[min(header, len(window)):]

	data = deleteRows(data, layout.DeleteRows, &stats)

	return foldContinuations(data, layout, &stats), stats, nil
}

func selectColumns(raw extractor.Row, columns []int) []string {
	if len(columns) == 0 {
		out := make([]string, len(raw))
		for i, c := range raw {
			out[i] = strings.TrimSpace(c)
		}
		return out
	}
	out := make([]string, len(columns))
	for i, c := range columns {
		if c < len(raw) {
			out[i] = strings.TrimSpace(raw[c])
		}
	}
	return out
}

// dropRepeatedBanners keeps only the first occurrence of a header banner.
// Banners repeat on every page of a multi-page statement.
func dropRepeatedBanners(rows []gridRow, layout *patterns.TypeLayout, stats *Stats) []gridRow {
	seen := make(map[string]bool)
	out := rows[:0:0]
	for i := 0; i < len(rows); i++ {
		first := rows[i].cell(0)
		if !layout.StartMarker.MatchString(first) {
			out = append(out, rows[i])
			continue
		}
		if !seen[first] {
			seen[first] = true
			out = append(out, rows[i])
			continue
		}
		stats.Boilerplate++
		if layout.MergeSplitHeader && i+1 < len(rows) && !startsRecord(rows[i+1], layout) {
			stats.Boilerplate++
			i++
		}
	}
	return out
}

func mergeRows(a, b gridRow) gridRow {
	n := max(len(a.cells), len(b.cells))
	merged := gridRow{cells: make([]string, n), line: a.line}
	for i := range n {
		merged.cells[i] = appendText(a.cell(i), b.cell(i))
	}
	return merged
}

func deleteRows(rows []gridRow, del patterns.RowDeletion, stats *Stats) []gridRow {
	if del.IsZero() {
		return rows
	}
	drop := make(map[int]bool)
	for i := 0; i < del.First && i < len(rows); i++ {
		drop[i] = true
	}
	for i := len(rows) - del.Last; i < len(rows); i++ {
		if i >= 0 {
			drop[i] = true
		}
	}
	for _, i := range del.Indices {
		if i >= 0 && i < len(rows) {
			drop[i] = true
		}
	}
	out := make([]gridRow, 0, len(rows))
	for i, r := range rows {
		if drop[i] {
			stats.Boilerplate++
			continue
		}
		out = append(out, r)
	}
	return out
}

func startsRecord(r gridRow, layout *patterns.TypeLayout) bool {
	return layout.DatePattern.MatchString(r.cell(layout.Fields.Date))
}

// foldContinuations appends every row whose date cell does not open a
// transaction to the record above it, cell by cell.
func foldContinuations(rows []gridRow, layout *patterns.TypeLayout, stats *Stats) []Record {
	var (
		groups  []gridRow
		current *gridRow
	)
	for _, r := range rows {
		if startsRecord(r, layout) {
			groups = append(groups, gridRow{cells: append([]string(nil), r.cells...), line: r.line})
			current = &groups[len(groups)-1]
			continue
		}
		if current == nil {
			stats.Orphaned++
			continue
		}
		*current = mergeRows(*current, r)
		stats.Merged++
	}

	records := make([]Record, 0, len(groups))
	for _, g := range groups {
		records = append(records, gridRecord(g, layout))
	}
	return records
}

func gridRecord(g gridRow, layout *patterns.TypeLayout) Record {
	f := layout.Fields
	rec := Record{
		RawAmount:   g.cell(f.Amount),
		Description: strings.Join(strings.Fields(g.cell(f.Description)), " "),
		CardRef:     g.cell(f.Card),
		Line:        g.line,
	}
	date, rest, _ := capture(layout.DatePattern, g.cell(f.Date))
	rec.DateText = date

	timeCell := rest
	if f.Time >= 0 {
		timeCell = g.cell(f.Time)
	}
	if t, _, ok := capture(layout.TimePattern, timeCell); ok {
		rec.TimeText = t
	}
	return rec
}
