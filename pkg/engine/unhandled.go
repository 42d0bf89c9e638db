package engine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jingkaihe/netmock/internal/errx"
	"github.com/jingkaihe/netmock/pkg/api"
	"github.com/jingkaihe/netmock/pkg/frame"
)

// Printer prints the diagnostic of one unhandled unit.
type Printer struct {
	logger  *slog.Logger
	message string
	attrs   []any
}

// Message returns the diagnostic text.
func (p Printer) Message() string { return p.message }

func (p Printer) Warning() { p.logger.Warn(p.message, p.attrs...) }

func (p Printer) Error() { p.logger.Error(p.message, p.attrs...) }

// UnhandledFunc decides what happens to a unit no handler claimed. A
// non-nil error fails the unit instead of passing it through.
type UnhandledFunc func(ctx context.Context, f frame.Frame, p Printer) error

// Strategy returns the built-in UnhandledFunc called name. Unknown names
// fall back to warn.
func Strategy(name string) UnhandledFunc {
	switch strings.ToLower(name) {
	case api.UnhandledBypass:
		return bypassUnhandled
	case api.UnhandledError:
		return errorUnhandled
	default:
		return warnUnhandled
	}
}

func bypassUnhandled(context.Context, frame.Frame, Printer) error { return nil }

func warnUnhandled(_ context.Context, _ frame.Frame, p Printer) error {
	p.Warning()
	return nil
}

func errorUnhandled(_ context.Context, f frame.Frame, p Printer) error {
	p.Error()
	sentinel := api.ErrUnhandledRequest
	if f.Protocol() == api.ProtocolWebSocket {
		sentinel = api.ErrUnhandledConnection
	}
	return errx.With(sentinel, ": %s", unitLine(p.Message()))
}

func unitLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); strings.HasPrefix(line, "•") {
			return strings.TrimSpace(strings.TrimPrefix(line, "•"))
		}
	}
	return s
}
