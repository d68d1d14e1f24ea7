// ABOUTME: Best-effort event emission after durable writes
// ABOUTME: Sink failures are logged and never affect the write that triggered them

package relay

import (
	"context"
	"log/slog"
)

// Event is the shape handed to an external event log after a durable write
// of interest.
type Event struct {
	Source   string
	Type     string
	Identity string
	Data     map[string]any
}

// EventSink receives events fire-and-forget. Implementations must not block
// long and must swallow their own failures; the triggering write has
// already committed.
type EventSink interface {
	Emit(ctx context.Context, ev Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(context.Context, Event) {}

// LogSink writes events to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger falls back to slog.Default.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "events")}
}

func (l *LogSink) Emit(_ context.Context, ev Event) {
	l.logger.Debug("event",
		"source", ev.Source,
		"type", ev.Type,
		"identity", ev.Identity,
		"data", ev.Data,
	)
}
