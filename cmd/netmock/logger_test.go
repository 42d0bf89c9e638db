package main

import (
	"io"
	"log/slog"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(prev)
		viper.Reset()
	})

	tests := []struct {
		level  string
		format string
		err    error
	}{
		{"debug", "json", nil},
		{"WARN", "text", nil},
		{"loud", "text", ErrInvalidLogLevel},
		{"info", "xml", ErrInvalidLogFormat},
	}
	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			viper.Set("log-level", tt.level)
			viper.Set("log-format", tt.format)

			logger, closer, err := newLogger()
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			require.NoError(t, closer.Close())
			assert.NotNil(t, logger)
		})
	}
}
