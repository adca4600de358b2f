package logger

import (
	"context"
	"io"
	"log/slog"
	"time"
)

const colorReset = "\033[0m"

// ColorTextHandler wraps a slog text handler and prefixes every message with
// its level in ANSI color.
type ColorTextHandler struct {
	inner    slog.Handler
	showTime bool
}

func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions, showTime bool) *ColorTextHandler {
	return &ColorTextHandler{
		inner:    slog.NewTextHandler(w, opts),
		showTime: showTime,
	}
}

func (h *ColorTextHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.inner.Enabled(ctx, l)
}

func (h *ColorTextHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.showTime {
		// text handler omits the time attribute for a zero time
		r.Time = time.Time{}
	}
	r.Message = levelColor(r.Level) + r.Level.String() + colorReset + "  " + r.Message
	return h.inner.Handle(ctx, r)
}

func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ColorTextHandler{inner: h.inner.WithAttrs(attrs), showTime: h.showTime}
}

func (h *ColorTextHandler) WithGroup(name string) slog.Handler {
	return &ColorTextHandler{inner: h.inner.WithGroup(name), showTime: h.showTime}
}

func levelColor(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "\033[31m" // red
	case l >= slog.LevelWarn:
		return "\033[33m" // yellow
	case l >= slog.LevelInfo:
		return "\033[32m" // green
	default:
		return "\033[36m" // cyan
	}
}
