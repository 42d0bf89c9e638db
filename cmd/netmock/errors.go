package main

import "errors"

// Logging errors
var (
	ErrInvalidLogLevel  = errors.New("invalid log level")
	ErrInvalidLogFormat = errors.New("invalid log format")
)

// Serve errors
var (
	ErrLoadMocks     = errors.New("load mock file")
	ErrCompileMocks  = errors.New("compile mock file")
	ErrBuildEngine   = errors.New("build engine")
	ErrOpenEventSink = errors.New("open event sink")
	ErrListen        = errors.New("listen")
)

// Journal errors
var (
	ErrRunIDRequired = errors.New("--run-id is required")
	ErrReadJournal   = errors.New("read event journal")
)
