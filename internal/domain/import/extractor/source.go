package extractor

import (
	"fmt"
	"sort"

	"github.com/ledongthuc/pdf"
)

// Glyph is one positioned text run on a page.
type Glyph struct {
	X        float64
	W        float64
	FontSize float64
	S        string
}

// TextRow is a physical line of glyphs sharing a baseline.
type TextRow struct {
	Y      float64
	Glyphs []Glyph
}

// PageSource is the view of a PDF the extractor needs. Pages are 1-based.
type PageSource interface {
	NumPage() int
	PageText(page int) (string, error)
	PageRows(page int) ([]TextRow, error)
}

type pdfSource struct {
	r *pdf.Reader
}

func (s pdfSource) NumPage() int {
	return s.r.NumPage()
}

func (s pdfSource) PageText(n int) (text string, err error) {
	defer recoverPage(n, &err)

	p := s.r.Page(n)
	if p.V.IsNull() {
		return "", nil
	}
	return p.GetPlainText(nil)
}

func (s pdfSource) PageRows(n int) (rows []TextRow, err error) {
	defer recoverPage(n, &err)

	p := s.r.Page(n)
	if p.V.IsNull() {
		return nil, nil
	}
	byRow, err := p.GetTextByRow()
	if err != nil {
		return nil, err
	}
	for _, row := range byRow {
		tr := TextRow{Y: float64(row.Position)}
		for _, t := range row.Content {
			tr.Glyphs = append(tr.Glyphs, Glyph{X: t.X, W: t.W, FontSize: t.FontSize, S: t.S})
		}
		rows = append(rows, tr)
	}
	// PDF user space grows upwards, so the top of the page has the largest Y.
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Y > rows[j].Y })
	return rows, nil
}

// recoverPage turns a panic inside the PDF library into a page error.
func recoverPage(page int, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("pdf library panic on page %d: %v", page, r)
	}
}
