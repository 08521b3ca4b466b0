package extractor

import (
	"errors"
	"fmt"
)

var (
	// ErrExtraction marks a document that yielded no usable rows.
	ErrExtraction = errors.New("no table or text could be extracted")
	// ErrNoText is the cause when every page came back empty, e.g. a scanned statement.
	ErrNoText = errors.New("document has no extractable text")
)

// ExtractionError locates an extraction failure. Page is 1-based, 0 means the whole document.
type ExtractionError struct {
	Path string
	Page int
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("%v: %s page %d: %v", ErrExtraction, e.Path, e.Page, e.Err)
	}
	return fmt.Sprintf("%v: %s: %v", ErrExtraction, e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() []error {
	return []error{ErrExtraction, e.Err}
}
