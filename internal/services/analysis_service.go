package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"smartspend/internal/analytics"
	"smartspend/internal/cache"
	"smartspend/internal/core"
	"smartspend/internal/storage"
)

// Publisher announces saved analyses to the export worker.
type Publisher interface {
	PublishAnalysisSaved(ctx context.Context, id int64, ref string) error
	Close() error
}

// AnalysisServiceConfig tunes the ref lookup cache and insight text.
type AnalysisServiceConfig struct {
	CurrencySymbol string
	CacheSize      int
	CacheTTL       time.Duration
}

func DefaultAnalysisServiceConfig() AnalysisServiceConfig {
	return AnalysisServiceConfig{
		CurrencySymbol: "R",
		CacheSize:      256,
		CacheTTL:       10 * time.Minute,
	}
}

// AnalysisService runs uploads through the analytics pipeline and persists
// the results, publishing an export message for every saved analysis.
type AnalysisService struct {
	storage   storage.Repository
	publisher Publisher
	insights  analytics.InsightProvider
	config    AnalysisServiceConfig

	byRef  *cache.LRUCache[core.Analysis]
	loader *cache.Loader[core.Analysis]
}

// NewAnalysisService wires the service. publisher and insights may be nil.
func NewAnalysisService(repo storage.Repository, publisher Publisher, insights analytics.InsightProvider, config AnalysisServiceConfig) *AnalysisService {
	if config.CacheSize <= 0 {
		config.CacheSize = DefaultAnalysisServiceConfig().CacheSize
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = DefaultAnalysisServiceConfig().CacheTTL
	}
	byRef := cache.NewLRUCache[core.Analysis](config.CacheSize, config.CacheTTL)
	return &AnalysisService{
		storage:   repo,
		publisher: publisher,
		insights:  insights,
		config:    config,
		byRef:     byRef,
		loader:    cache.NewLoader[core.Analysis](byRef),
	}
}

// Cache exposes the ref cache so a cache.Manager can expire it.
func (s *AnalysisService) Cache() *cache.LRUCache[core.Analysis] {
	return s.byRef
}

// Analyze runs the pipeline over an uploaded file. Server-side insights are
// used unless local is set. A file without usable rows yields core.ErrNoData.
func (s *AnalysisService) Analyze(ctx context.Context, text string, local bool) (core.Summary, error) {
	summary, _, err := s.AnalyzeUpload(ctx, text, local)
	return summary, err
}

// AnalyzeUpload is Analyze that also reports how many lines were kept.
func (s *AnalysisService) AnalyzeUpload(ctx context.Context, text string, local bool) (core.Summary, analytics.IngestStats, error) {
	opts := analytics.Options{Local: local, CurrencySymbol: s.config.CurrencySymbol}
	if !local && s.insights != nil {
		opts.Provider = s.insights
	}

	summary, stats, ok, err := analytics.AnalyzeWithStats(text, opts)
	if err != nil {
		return core.Summary{}, stats, err
	}
	slog.DebugContext(ctx, "Upload ingested",
		"lines", stats.Lines,
		"accepted", stats.Accepted,
		"dropped", stats.Dropped,
		"undated", stats.Undated)
	if !ok {
		return core.Summary{}, stats, core.ErrNoData
	}
	return summary, stats, nil
}

// SaveAnalysis stores a and publishes an export message. A failed publish is
// logged only; the sweep in the export worker picks the row up later.
func (s *AnalysisService) SaveAnalysis(ctx context.Context, a core.Analysis) (core.Analysis, error) {
	saved, err := s.storage.SaveAnalysis(ctx, a)
	if err != nil {
		return core.Analysis{}, fmt.Errorf("save analysis: %w", err)
	}
	s.byRef.Set(saved.Ref, saved)

	if err := s.publish(ctx, saved); err != nil {
		slog.ErrorContext(ctx, "Failed to publish analysis saved message",
			"id", saved.ID, "ref", saved.Ref, "error", err)
	}

	slog.InfoContext(ctx, "Analysis saved",
		"id", saved.ID,
		"ref", saved.Ref,
		"total", saved.Total,
		"anomalies", saved.Anomalies)
	return saved, nil
}

// SaveSummary persists the headline of summary for email.
func (s *AnalysisService) SaveSummary(ctx context.Context, email string, summary core.Summary) (core.Analysis, error) {
	a, err := summary.ToAnalysis(email)
	if err != nil {
		return core.Analysis{}, err
	}
	return s.SaveAnalysis(ctx, a)
}

func (s *AnalysisService) publish(ctx context.Context, a core.Analysis) error {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping analysis saved message")
		return nil
	}
	return s.publisher.PublishAnalysisSaved(ctx, a.ID, a.Ref)
}

// GetAnalysis looks an analysis up by ref through the LRU cache.
func (s *AnalysisService) GetAnalysis(ctx context.Context, ref string) (core.Analysis, error) {
	if ref == "" {
		return core.Analysis{}, core.ErrNotFound
	}
	return s.loader.Get(ctx, ref, func(ctx context.Context) (core.Analysis, error) {
		return s.storage.GetAnalysis(ctx, ref)
	})
}

// ListAnalyses returns the newest analyses, optionally for one owner.
func (s *AnalysisService) ListAnalyses(ctx context.Context, email string, limit int) ([]core.Analysis, error) {
	return s.storage.ListAnalyses(ctx, core.NormalizeEmail(email), limit)
}

func (s *AnalysisService) SaveProfile(ctx context.Context, p core.Profile) (core.Profile, error) {
	if err := p.Validate(); err != nil {
		return core.Profile{}, err
	}
	saved, err := s.storage.UpsertProfile(ctx, p)
	if err != nil {
		return core.Profile{}, fmt.Errorf("save profile: %w", err)
	}
	return saved, nil
}

// GetProfile returns the stored profile for email, or core.ErrNotFound.
func (s *AnalysisService) GetProfile(ctx context.Context, email string) (core.Profile, error) {
	email = core.NormalizeEmail(email)
	if email == "" {
		return core.Profile{}, core.ErrEmptyEmail
	}
	return s.storage.GetProfile(ctx, email)
}

// Close closes both storage and AMQP connections
func (s *AnalysisService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close analysis service: %w", errors.Join(errs...))
	}

	return nil
}
