package engine

import "errors"

var (
	ErrNoHandlerSource = errors.New("engine: handler source is required")
	ErrUnhandled       = errors.New("engine: unhandled strategy failed")
)
