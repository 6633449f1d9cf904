package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"smartspend/internal/core"
	"smartspend/internal/sheets"
	"smartspend/internal/storage"
)

// ExportProcessorConfig holds configuration for the export processor
type ExportProcessorConfig struct {
	// PollInterval is how often to sweep for pending analyses (default: 1m)
	PollInterval time.Duration

	// BatchSize is the max number of analyses exported per sweep (default: 10)
	BatchSize int
}

func DefaultExportProcessorConfig() ExportProcessorConfig {
	return ExportProcessorConfig{
		PollInterval: time.Minute,
		BatchSize:    10,
	}
}

// ExportProcessor copies saved analyses to the spreadsheet. It is driven
// both by AMQP messages (ExportOne) and by a periodic sweep over rows still
// pending or in error, which covers lost messages and worker downtime.
type ExportProcessor struct {
	storage  storage.ExportQueue
	exporter sheets.AnalysisExporter
	config   ExportProcessorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewExportProcessor(queue storage.ExportQueue, exporter sheets.AnalysisExporter, config ExportProcessorConfig) *ExportProcessor {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultExportProcessorConfig().PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultExportProcessorConfig().BatchSize
	}
	return &ExportProcessor{
		storage:  queue,
		exporter: exporter,
		config:   config,
	}
}

// Start begins the sweep loop. Returns an error if already running.
func (p *ExportProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("export processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Export processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop signals the loop and waits for it to finish or for ctx to expire.
func (p *ExportProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Export processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Export processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

func (p *ExportProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ExportProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	// Sweep immediately on startup
	p.ProcessPending(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessPending(ctx)
		}
	}
}

// ProcessPending exports one batch of pending analyses and returns how many
// succeeded.
func (p *ExportProcessor) ProcessPending(ctx context.Context) int {
	pending, err := p.storage.PendingExports(ctx, p.config.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load pending exports", "error", err)
		return 0
	}
	if len(pending) == 0 {
		return 0
	}

	slog.DebugContext(ctx, "Processing pending exports", "count", len(pending))

	exported := 0
	for _, a := range pending {
		if ctx.Err() != nil {
			break
		}
		if err := p.export(ctx, a); err != nil {
			slog.ErrorContext(ctx, "Failed to export analysis", "id", a.ID, "ref", a.Ref, "error", err)
			continue
		}
		exported++
	}

	slog.InfoContext(ctx, "Export sweep completed",
		"total", len(pending),
		"exported", exported,
		"errors", len(pending)-exported)
	return exported
}

// ExportOne exports the analysis with the given id. Analyses already
// exported are skipped.
func (p *ExportProcessor) ExportOne(ctx context.Context, id int64) error {
	a, err := p.storage.GetAnalysisByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get analysis %d: %w", id, err)
	}
	if a.ExportStatus == core.ExportDone {
		slog.DebugContext(ctx, "Analysis already exported", "id", id, "ref", a.Ref)
		return nil
	}
	return p.export(ctx, a)
}

func (p *ExportProcessor) export(ctx context.Context, a core.Analysis) error {
	ref, err := p.exporter.ExportAnalysis(ctx, a)
	if err != nil {
		if markErr := p.storage.MarkExportError(ctx, a.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error", "id", a.ID, "error", markErr)
		}
		return fmt.Errorf("export analysis: %w", err)
	}

	if err := p.storage.MarkExported(ctx, a.ID); err != nil {
		// The row is in the sheet; the exporter skips known refs on retry.
		slog.ErrorContext(ctx, "Failed to mark as exported", "id", a.ID, "error", err)
	}

	slog.InfoContext(ctx, "Exported analysis",
		"id", a.ID,
		"ref", a.Ref,
		"sheets_ref", ref)
	return nil
}
