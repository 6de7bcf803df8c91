package ingest

import (
	"context"

	"go.uber.org/zap"
)

// Sink is an append-only destination for ingested events. Append returning
// nil does not imply the event is durable.
type Sink interface {
	Append(ctx context.Context, e Event) error
}

// LogSink writes every event, pretty-printed, to a logger at info level.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.L()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Append(_ context.Context, e Event) error {
	s.logger.Info(e.Pretty())
	return nil
}
