// Package errx wraps package sentinel errors with their underlying cause
// while keeping both reachable through errors.Is.
package errx

import "fmt"

// Wrap returns an error that matches both sentinel and cause.
// A nil cause yields the sentinel unchanged.
func Wrap(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}

// With annotates sentinel with a formatted suffix. The format is appended
// verbatim, so callers usually start it with ": " or " ".
func With(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w"+format, append([]any{sentinel}, args...)...)
}
