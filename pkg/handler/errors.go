package handler

import (
	"errors"
	"fmt"
)

var (
	ErrResolver       = errors.New("resolver failed")
	ErrInvalidHandler = errors.New("invalid handler")
)

// PanicError is returned when a resolver panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("resolver panicked: %v", e.Value)
}

// ResolverError wraps a failure raised by a resolver with the handler that
// was executing it.
type ResolverError struct {
	Handler Info
	Err     error
}

func (e *ResolverError) Error() string {
	return fmt.Sprintf("%s: %v", e.Handler.Header, e.Err)
}

func (e *ResolverError) Unwrap() []error { return []error{ErrResolver, e.Err} }
