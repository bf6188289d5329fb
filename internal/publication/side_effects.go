package publication

import (
	"context"
	"errors"
	"time"

	"financial-diagnostics/config"
	"financial-diagnostics/internal/cache"
	"financial-diagnostics/internal/events"
	"financial-diagnostics/internal/logging"
)

// Invalidator drops cached read models of a company
type Invalidator interface {
	InvalidateCompanyCharts(ctx context.Context, companyID string, categories []string) error
	InvalidatePublishedSeries(ctx context.Context, companyID string) error
}

// ReportQueue accepts report regeneration jobs
type ReportQueue interface {
	EnqueueReportRegeneration(ctx context.Context, queue string, job cache.ReportRegenerationJob) error
}

const sideEffectTimeout = 5 * time.Second

// SideEffects reacts to publication and recompute events. Failures are
// logged and dropped; the database stays the source of truth.
type SideEffects struct {
	cache      Invalidator
	reports    ReportQueue
	categories []string
	queue      string
	logger     *logging.Logger
}

// NewSideEffects wires cache invalidation and report requests
func NewSideEffects(c Invalidator, reports ReportQueue, cfg config.PublicationConfig) *SideEffects {
	return &SideEffects{
		cache:      c,
		reports:    reports,
		categories: cfg.ChartCategories,
		queue:      cfg.ReportQueue,
		logger:     logging.WithComponent("publication"),
	}
}

// Register subscribes the handlers on bus
func (s *SideEffects) Register(bus *events.EventBus) {
	bus.Subscribe(events.EventMetricsPublished, s.onPublished)
	bus.Subscribe(events.EventMetricsUnpublished, s.onInvalidate)
	bus.Subscribe(events.EventSeriesRecomputed, s.onInvalidate)
}

func (s *SideEffects) onPublished(e events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	companyID := e.GetString("company_id")
	s.invalidate(ctx, companyID)

	if s.reports == nil || s.queue == "" {
		return
	}
	job := cache.ReportRegenerationJob{
		CompanyID:   companyID,
		PeriodID:    e.GetString("period_id"),
		IsTaxRecord: e.GetBool("is_tax_record"),
		RequestedAt: e.Timestamp.UTC(),
	}
	if err := s.reports.EnqueueReportRegeneration(ctx, s.queue, job); err != nil {
		s.warn(err, "Report regeneration not queued", companyID)
		return
	}
	s.logger.Debug("Report regeneration queued", "company_id", companyID, "period_id", job.PeriodID)
}

func (s *SideEffects) onInvalidate(e events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	s.invalidate(ctx, e.GetString("company_id"))
}

func (s *SideEffects) invalidate(ctx context.Context, companyID string) {
	if s.cache == nil || companyID == "" {
		return
	}
	if err := s.cache.InvalidateCompanyCharts(ctx, companyID, s.categories); err != nil {
		s.warn(err, "Chart cache invalidation failed", companyID)
	}
	if err := s.cache.InvalidatePublishedSeries(ctx, companyID); err != nil {
		s.warn(err, "Series cache invalidation failed", companyID)
	}
}

func (s *SideEffects) warn(err error, msg, companyID string) {
	if errors.Is(err, cache.ErrCacheUnavailable) {
		s.logger.Debug(msg, "company_id", companyID, "error", err)
		return
	}
	s.logger.WithError(err).Warn(msg, "company_id", companyID)
}
