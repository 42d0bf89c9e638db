package logging

import (
	"encoding/json"
	"io"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jingkaihe/netmock/internal/errx"
)

// JSONLWriter is a Sink writing one JSON object per line.
type JSONLWriter struct {
	mu  sync.Mutex
	out io.WriteCloser
	enc *json.Encoder
}

// NewJSONLWriter appends to path, creating the file but not its parent
// directory.
func NewJSONLWriter(path string) (*JSONLWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errx.Wrap(ErrCreateLogFile, err)
	}
	return newJSONLWriter(f), nil
}

// RotationConfig bounds the size of a rotating event journal.
type RotationConfig struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewRotatingJSONLWriter creates a JSON-L writer whose file is rotated
// once it grows past cfg.MaxSizeMB. Missing parent directories are
// created.
func NewRotatingJSONLWriter(path string, cfg RotationConfig) *JSONLWriter {
	return newJSONLWriter(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
}

func newJSONLWriter(out io.WriteCloser) *JSONLWriter {
	return &JSONLWriter{out: out, enc: json.NewEncoder(out)}
}

// Write serializes the event as a single JSON line.
func (w *JSONLWriter) Write(event *Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(event); err != nil {
		return errx.Wrap(ErrWriteEvent, err)
	}
	return nil
}

// Close syncs when backed by a plain file, then closes the output.
func (w *JSONLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if f, ok := w.out.(*os.File); ok {
		_ = f.Sync()
	}
	if err := w.out.Close(); err != nil {
		return errx.Wrap(ErrCloseWriter, err)
	}
	return nil
}
