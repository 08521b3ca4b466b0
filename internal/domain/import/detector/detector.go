// Package detector identifies which configured statement type a PDF belongs to
// by matching its first-page text against each type's detection patterns.
package detector

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/FACorreiaa/statement-importer/internal/domain/patterns"
)

// ErrDetection is returned when no configured type matches a document.
var ErrDetection = errors.New("unknown statement type")

// DetectionError carries the text sample that failed to match, for manual review.
type DetectionError struct {
	Sample string
}

func (e *DetectionError) Error() string {
	if e.Sample == "" {
		return ErrDetection.Error() + ": first page is empty"
	}
	return fmt.Sprintf("%v (first page starts with %q)", ErrDetection, e.Sample)
}

func (e *DetectionError) Unwrap() error { return ErrDetection }

// Result is the outcome of a successful detection.
type Result struct {
	Tag string
	// Ambiguous lists the other types whose patterns also matched, in config order.
	Ambiguous []string
}

// sampleRunes bounds the text echoed back in a DetectionError.
const sampleRunes = 80

// Detector wraps Detect with logging.
type Detector struct {
	logger *slog.Logger
}

// New creates a Detector.
func New(logger *slog.Logger) *Detector {
	return &Detector{logger: logger}
}

// Detect returns the first type, in configuration order, with any detection
// pattern matching text. Additional matches are logged and returned in
// Result.Ambiguous, the first match still wins.
func (d *Detector) Detect(text string, cfg *patterns.Config) (Result, error) {
	res, err := Detect(text, cfg)
	if err != nil {
		d.logger.Warn("statement type not detected", slog.Any("error", err))
		return res, err
	}
	if len(res.Ambiguous) > 0 {
		d.logger.Warn("statement matches several types, using the first declared",
			slog.String("type", res.Tag),
			slog.Any("also_matched", res.Ambiguous),
		)
	} else {
		d.logger.Debug("statement type detected", slog.String("type", res.Tag))
	}
	return res, nil
}

// Detect is the pure form of Detector.Detect.
func Detect(text string, cfg *patterns.Config) (Result, error) {
	text = cleanText(text)

	var res Result
	for _, layout := range cfg.Types {
		if !matchesAny(text, layout) {
			continue
		}
		if res.Tag == "" {
			res.Tag = layout.Tag
			continue
		}
		res.Ambiguous = append(res.Ambiguous, layout.Tag)
	}
	if res.Tag == "" {
		return Result{}, &DetectionError{Sample: sample(text)}
	}
	return res, nil
}

func matchesAny(text string, layout *patterns.TypeLayout) bool {
	for _, re := range layout.Detect {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func cleanText(text string) string {
	text = strings.TrimPrefix(text, "\uFEFF")
	return strings.TrimSpace(text)
}

func sample(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) > sampleRunes {
		return string(r[:sampleRunes])
	}
	return text
}
