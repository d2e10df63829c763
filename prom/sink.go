package prom

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/nikiz24/meter"
)

// LogSink logs every Report in text exposition format at info level.
func LogSink(logger *zap.Logger) meter.Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return meter.SinkFunc(func(_ context.Context, r *meter.Report) error {
		text, err := FormatString(r)
		if err != nil {
			return fmt.Errorf("formatting report: %w", err)
		}
		logger.Info("metrics report\n"+text,
			zap.Bool("destructive", r.Destructive()),
			zap.Int("entries", r.Len()))
		return nil
	})
}

// WriterSink writes every Report to w in text exposition format, followed
// by a blank line.
func WriterSink(w io.Writer) meter.Sink {
	var mu sync.Mutex
	return meter.SinkFunc(func(_ context.Context, r *meter.Report) error {
		mu.Lock()
		defer mu.Unlock()
		if err := Format(w, r); err != nil {
			return err
		}
		_, err := io.WriteString(w, "\n")
		return err
	})
}
