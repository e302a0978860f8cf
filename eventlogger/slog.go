package eventlogger

import (
	"context"
	"log/slog"
)

// SlogEventLogger writes events to a structured logger instead of a database.
type SlogEventLogger struct {
	logger *slog.Logger
}

func NewSlogEventLogger(logger *slog.Logger) *SlogEventLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogEventLogger{logger: logger}
}

func (el *SlogEventLogger) Save(ctx context.Context, e Event) error {
	attrs := []any{"event_id", e.ID.String(), "event_type", e.Type, "event_data", e.Data}
	for k, v := range e.Metadata {
		attrs = append(attrs, k, v)
	}
	el.logger.InfoContext(ctx, "notification intent", attrs...)
	return nil
}
