// Package errors provides error construction helpers that tag every error
// with the file and line it originated from. Wrapping uses %w throughout, so
// sentinel checks with the standard library's errors.Is see through the
// added context.
package errors

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// New creates a new error with file and line number information.
func New(format string, a ...interface{}) error {
	return fmt.Errorf("[%s] %s", caller(), fmt.Sprintf(format, a...))
}

// Wrapf adds context (including file and line number) to an existing error.
// If the provided error is nil, Wrapf returns nil.
func Wrapf(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("[%s] %s: %w", caller(), fmt.Sprintf(format, a...), err)
}

// Kindf wraps err in both a sentinel kind and the originating file and line,
// so callers can classify the failure with errors.Is while the underlying
// cause stays visible.
func Kindf(kind, err error, format string, a ...interface{}) error {
	if err == nil {
		return fmt.Errorf("[%s] %w: %s", caller(), kind, fmt.Sprintf(format, a...))
	}
	return fmt.Errorf("[%s] %w: %s: %w", caller(), kind, fmt.Sprintf(format, a...), err)
}

func caller() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "???:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
