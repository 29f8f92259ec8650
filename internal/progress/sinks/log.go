package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/siepe-rag/internal/progress"
)

// LogSink writes each event as a structured log line: debug for normal
// progress, warn for failures.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("job_id", evt.JobID),
			zap.String("kind", string(evt.Kind)),
			zap.String("ano", evt.Target.Year),
			zap.String("area", evt.Target.CategoryCode),
			zap.String("evento", evt.Target.EventCode),
		}
		if evt.URL != "" {
			fields = append(fields, zap.String("url", evt.URL))
		}
		switch evt.Kind {
		case progress.KindItemStart, progress.KindItemDone:
			fields = append(fields,
				zap.String("titulo", evt.Title),
				zap.Int("idx", evt.Index),
				zap.Int("total", evt.Total),
			)
			if evt.Status != "" {
				fields = append(fields, zap.String("status", evt.Status))
			}
		case progress.KindPageStart:
			fields = append(fields, zap.Int("total", evt.Total))
		case progress.KindPageDone:
			fields = append(fields,
				zap.Int("total", evt.Total),
				zap.Int("ok", evt.OK),
				zap.Int("falha", evt.Failed),
			)
		case progress.KindJobDone, progress.KindJobError:
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.IsFailure() {
			if evt.Err != "" {
				fields = append(fields, zap.String("error", evt.Err))
			}
			s.logger.Warn("progress event", fields...)
			continue
		}
		s.logger.Debug("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
