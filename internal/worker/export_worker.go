package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"smartspend/internal/amqp"
)

// Exporter exports a single analysis and sweeps pending ones.
type Exporter interface {
	ExportOne(ctx context.Context, id int64) error
	ProcessPending(ctx context.Context) int
}

// Consumer delivers analysis saved messages until ctx is done.
type Consumer interface {
	ConsumeAnalysisSaved(ctx context.Context, handler func(context.Context, *amqp.AnalysisSavedMessage) error) error
}

// ExportWorker copies saved analyses to the spreadsheet. Messages from the
// broker are handled as they arrive; a periodic sweep catches anything the
// broker lost.
type ExportWorker struct {
	exporter      Exporter
	consumer      Consumer
	sweepInterval time.Duration
}

// NewExportWorker creates a worker. consumer may be nil, in which case only
// the sweep runs.
func NewExportWorker(exporter Exporter, consumer Consumer, sweepInterval time.Duration) *ExportWorker {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	return &ExportWorker{
		exporter:      exporter,
		consumer:      consumer,
		sweepInterval: sweepInterval,
	}
}

// HandleAnalysisSaved processes a single analysis saved message from AMQP.
// A failed export is left to the sweep instead of being requeued, so a
// broken spreadsheet does not turn into a redelivery loop. Only a cancelled
// context is returned, which puts the message back on the queue.
func (w *ExportWorker) HandleAnalysisSaved(ctx context.Context, msg *amqp.AnalysisSavedMessage) error {
	slog.InfoContext(ctx, "Processing analysis saved message",
		"id", msg.ID,
		"ref", msg.Ref,
		"message_id", msg.MessageID)

	if err := w.exporter.ExportOne(ctx, msg.ID); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("export analysis %d: %w", msg.ID, ctx.Err())
		}
		slog.WarnContext(ctx, "Export failed, leaving analysis for the sweep",
			"id", msg.ID, "error", err)
	}
	return nil
}

// StartupExportCheck exports whatever is still pending when the worker starts.
func (w *ExportWorker) StartupExportCheck(ctx context.Context) {
	n := w.exporter.ProcessPending(ctx)
	slog.InfoContext(ctx, "Startup export check completed", "exported", n)
}

// Run consumes messages and sweeps until ctx is cancelled or the consumer
// fails. Cancellation is not reported as an error.
func (w *ExportWorker) Run(ctx context.Context) error {
	w.StartupExportCheck(ctx)

	g, gctx := errgroup.WithContext(ctx)

	if w.consumer != nil {
		g.Go(func() error {
			return w.consumer.ConsumeAnalysisSaved(gctx, w.HandleAnalysisSaved)
		})
	} else {
		slog.WarnContext(ctx, "No AMQP consumer configured, relying on periodic sweep")
	}

	g.Go(func() error {
		ticker := time.NewTicker(w.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				w.exporter.ProcessPending(gctx)
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}
