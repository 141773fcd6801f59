package events

import "log/slog"

// LogEmitter writes every event to a structured logger. It doubles as a
// minimal indexer for deployments without a dedicated event pipeline.
type LogEmitter struct {
	Logger *slog.Logger
}

// Emit implements the Emitter interface.
func (l LogEmitter) Emit(event Event) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("protocol event",
		slog.String("type", event.EventType()),
		slog.Any("event", event),
	)
}
