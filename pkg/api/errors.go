package api

import "errors"

var (
	ErrUnhandledRequest    = errors.New("unhandled request")
	ErrUnhandledConnection = errors.New("unhandled connection")
	ErrNetworkError        = errors.New("mocked network error")
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrReadBody            = errors.New("read request body")
	ErrFrameSettled        = errors.New("frame already settled")
	ErrNotConnected        = errors.New("websocket server is not connected")
)
