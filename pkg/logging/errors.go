package logging

import "errors"

var (
	ErrCreateLogFile  = errors.New("logging: create log file")
	ErrWriteEvent     = errors.New("logging: write event")
	ErrMarshalData    = errors.New("logging: marshal event data")
	ErrCloseWriter    = errors.New("logging: close writer")
	ErrOpenJournal    = errors.New("logging: open event journal")
	ErrMigrateJournal = errors.New("logging: migrate event journal")
	ErrQueryJournal   = errors.New("logging: query event journal")
)
