// Package extractor pulls raw rows out of statement PDFs: grid-aligned cells for
// card statements and one single-cell row per text line for passbook statements.
package extractor

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/text/unicode/norm"

	"github.com/FACorreiaa/statement-importer/internal/domain/patterns"
)

// Row is one extracted row of cell strings, before any semantic mapping.
type Row []string

const (
	// DefaultGapThreshold is the horizontal gap, in points, that separates two grid cells
	// when a layout has no explicit column edges.
	DefaultGapThreshold = 12.0
	// wordGapRatio of the font size separates two words inside a cell.
	wordGapRatio = 0.15
)

// Extractor reads statement PDFs.
type Extractor struct {
	logger       *slog.Logger
	gapThreshold float64
	open         func(path string) (PageSource, func() error, error)
}

// New creates an Extractor backed by github.com/ledongthuc/pdf.
func New(logger *slog.Logger) *Extractor {
	return &Extractor{
		logger:       logger,
		gapThreshold: DefaultGapThreshold,
		open:         openPDF,
	}
}

// WithGapThreshold overrides the cell gap used for layouts without column edges.
func (e *Extractor) WithGapThreshold(points float64) *Extractor {
	if points > 0 {
		e.gapThreshold = points
	}
	return e
}

func openPDF(path string) (src PageSource, closeFn func() error, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf library panic: %v", r)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return pdfSource{r: r}, f.Close, nil
}

// FirstPageText returns the normalized text of page 1, used for type detection.
func (e *Extractor) FirstPageText(path string) (string, error) {
	src, closeFn, err := e.open(path)
	if err != nil {
		return "", &ExtractionError{Path: path, Err: err}
	}
	defer closeFn()

	if src.NumPage() < 1 {
		return "", &ExtractionError{Path: path, Err: ErrNoText}
	}
	text, err := src.PageText(1)
	if err != nil {
		return "", &ExtractionError{Path: path, Page: 1, Err: err}
	}
	return normalizeText(text), nil
}

// Extract opens path and returns its rows in page order.
func (e *Extractor) Extract(path string, layout *patterns.TypeLayout) ([]Row, error) {
	src, closeFn, err := e.open(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	defer closeFn()

	rows, err := e.ExtractFrom(src, layout)
	if err != nil {
		if xe, ok := err.(*ExtractionError); ok {
			xe.Path = path
		}
		return nil, err
	}
	return rows, nil
}

// ExtractFrom reads rows from an already opened source. Pages that fail are
// logged and skipped; the call fails only when nothing at all was recovered.
func (e *Extractor) ExtractFrom(src PageSource, layout *patterns.TypeLayout) ([]Row, error) {
	var (
		rows    []Row
		lastErr error
		errPage int
	)
	for page := 1; page <= src.NumPage(); page++ {
		var (
			pageRows []Row
			err      error
		)
		if layout.Family.IsStream() {
			pageRows, err = e.streamRows(src, page)
		} else {
			pageRows, err = e.gridRows(src, page, layout.ColumnEdges)
		}
		if err != nil {
			e.logger.Warn("skipping unreadable page",
				slog.String("type", layout.Tag),
				slog.Int("page", page),
				slog.Any("error", err),
			)
			lastErr, errPage = err, page
			continue
		}
		rows = append(rows, pageRows...)
	}

	if len(rows) == 0 {
		if lastErr != nil {
			return nil, &ExtractionError{Page: errPage, Err: lastErr}
		}
		return nil, &ExtractionError{Err: ErrNoText}
	}

	e.logger.Debug("rows extracted",
		slog.String("type", layout.Tag),
		slog.Int("pages", src.NumPage()),
		slog.Int("rows", len(rows)),
	)
	return rows, nil
}

func (e *Extractor) streamRows(src PageSource, page int) ([]Row, error) {
	text, err := src.PageText(page)
	if err != nil {
		return nil, err
	}
	var rows []Row
	for _, line := range strings.Split(normalizeText(text), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			rows = append(rows, Row{line})
		}
	}
	return rows, nil
}

func (e *Extractor) gridRows(src PageSource, page int, edges []float64) ([]Row, error) {
	textRows, err := src.PageRows(page)
	if err != nil {
		return nil, err
	}
	var rows []Row
	for _, tr := range textRows {
		var row Row
		if len(edges) > 0 {
			row = splitByEdges(tr.Glyphs, edges)
		} else {
			row = splitByGap(tr.Glyphs, e.gapThreshold)
		}
		if !blank(row) {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// splitByEdges assigns each glyph to the column whose [edge[i-1], edge[i]) span holds it.
func splitByEdges(glyphs []Glyph, edges []float64) Row {
	columns := make([][]Glyph, len(edges)+1)
	for _, g := range glyphs {
		col := sort.SearchFloat64s(edges, g.X+g.W/2)
		// SearchFloat64s returns the insertion point; a glyph sitting exactly on an edge belongs right.
		if col < len(edges) && edges[col] == g.X+g.W/2 {
			col++
		}
		columns[col] = append(columns[col], g)
	}
	row := make(Row, len(columns))
	for i, col := range columns {
		row[i] = joinGlyphs(col)
	}
	return row
}

func splitByGap(glyphs []Glyph, threshold float64) Row {
	sorted := sortedByX(glyphs)
	var (
		row  Row
		cell []Glyph
	)
	for i, g := range sorted {
		if i > 0 {
			prev := sorted[i-1]
			if g.X-(prev.X+prev.W) >= threshold {
				row = append(row, joinGlyphs(cell))
				cell = nil
			}
		}
		cell = append(cell, g)
	}
	if len(cell) > 0 {
		row = append(row, joinGlyphs(cell))
	}
	return row
}

func joinGlyphs(glyphs []Glyph) string {
	sorted := sortedByX(glyphs)
	var b strings.Builder
	for i, g := range sorted {
		if i > 0 {
			prev := sorted[i-1]
			size := prev.FontSize
			if size <= 0 {
				size = 10
			}
			if g.X-(prev.X+prev.W) > wordGapRatio*size {
				b.WriteByte(' ')
			}
		}
		b.WriteString(g.S)
	}
	return strings.Join(strings.Fields(normalizeText(b.String())), " ")
}

func sortedByX(glyphs []Glyph) []Glyph {
	out := make([]Glyph, len(glyphs))
	copy(out, glyphs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].X < out[j].X })
	return out
}

func blank(row Row) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}

// normalizeText folds compatibility characters (no-break and thin spaces,
// full-width digits) so downstream patterns only deal with plain forms.
func normalizeText(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
