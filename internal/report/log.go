package report

import (
	"context"
	"log/slog"
)

// LogReporter writes events to a structured logger. Drops are logged at
// warn level since they are the only silent data loss in the queue.
type LogReporter struct {
	Logger *slog.Logger
}

func (l LogReporter) Report(ctx context.Context, evt Event) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelDebug
	switch evt.Kind {
	case KindDropped, KindPurged:
		level = slog.LevelWarn
	case KindRejected, KindRequeued:
		level = slog.LevelInfo
	}
	attrs := []slog.Attr{
		slog.String("kind", string(evt.Kind)),
		slog.String("namespace", evt.Namespace),
	}
	if evt.Key != "" {
		attrs = append(attrs, slog.String("key", evt.Key))
	}
	if evt.Operation != "" {
		attrs = append(attrs, slog.String("op", evt.Operation))
	}
	if evt.Try > 0 {
		attrs = append(attrs, slog.Int("try", evt.Try))
	}
	if evt.Reason != "" {
		attrs = append(attrs, slog.String("reason", evt.Reason))
	}
	if evt.Kind == KindPurged {
		attrs = append(attrs, slog.Int("count", evt.Count))
	}
	logger.LogAttrs(ctx, level, "queue event", attrs...)
	return nil
}
