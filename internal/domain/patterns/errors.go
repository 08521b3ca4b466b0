package patterns

import (
	"errors"
	"fmt"
)

// ErrConfig marks a malformed pattern configuration. It is fatal at load time.
var ErrConfig = errors.New("invalid pattern configuration")

// ConfigError locates a configuration problem.
type ConfigError struct {
	Path string // dotted location inside the rule file, e.g. pdf_types.sber.stream
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%v: %v", ErrConfig, e.Err)
	}
	return fmt.Sprintf("%v: %s: %v", ErrConfig, e.Path, e.Err)
}

func (e *ConfigError) Unwrap() []error {
	return []error{ErrConfig, e.Err}
}

func configErr(path string, format string, args ...any) *ConfigError {
	return &ConfigError{Path: path, Err: fmt.Errorf(format, args...)}
}
