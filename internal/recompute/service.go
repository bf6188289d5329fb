package recompute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"financial-diagnostics/internal/database"
	"financial-diagnostics/internal/engine"
	"financial-diagnostics/internal/events"
	"financial-diagnostics/internal/logging"
	"financial-diagnostics/internal/statements"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds RecomputeAll when no limit is configured
const DefaultConcurrency = 4

// Service recomputes whole series inside one locked transaction each
type Service struct {
	store       Store
	bus         *events.EventBus
	locks       *keyedLocks
	logger      *logging.Logger
	concurrency int
}

// NewService creates a new recompute service. bus may be nil.
func NewService(store Store, bus *events.EventBus, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:       store,
		bus:         bus,
		locks:       newKeyedLocks(),
		logger:      logger.WithComponent("recompute"),
		concurrency: DefaultConcurrency,
	}
}

// SetConcurrency bounds how many series RecomputeAll runs at once
func (s *Service) SetConcurrency(n int) {
	if n < 1 {
		n = 1
	}
	s.concurrency = n
}

// Recompute rebuilds every computed row of one series
func (s *Service) Recompute(ctx context.Context, companyID string, isTaxRecord bool, opts Options) (*Result, error) {
	if companyID == "" {
		return nil, &engine.InvalidSeriesError{Index: -1, Reason: "company id is required"}
	}
	key := statements.SeriesKey{CompanyID: companyID, IsTaxRecord: isTaxRecord}
	return s.run(ctx, key, opts, nil)
}

// OnStatementChanged recomputes the series a period belongs to. It is the
// hook called after any statement write.
func (s *Service) OnStatementChanged(ctx context.Context, periodID string) (*Result, error) {
	p, err := s.store.GetPeriod(ctx, periodID)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, p.SeriesKey(), Options{}, nil)
}

// DeletePeriod removes a period and recomputes the surviving periods of its
// series in the same transaction.
func (s *Service) DeletePeriod(ctx context.Context, periodID string) (*Result, error) {
	p, err := s.store.GetPeriod(ctx, periodID)
	if err != nil {
		return nil, err
	}

	key := p.SeriesKey()
	result, err := s.run(ctx, key, Options{}, func(ctx context.Context, tx database.SeriesTx) error {
		if err := tx.DeletePeriod(ctx, periodID); err != nil {
			return &PhaseError{Phase: PhaseDelete, Err: err}
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	if s.bus != nil {
		s.bus.PublishPeriodDeleted(key.CompanyID, key.IsTaxRecord, periodID)
	}
	return result, nil
}

// RecomputeCompany recomputes the monthly and tax series of a company
func (s *Service) RecomputeCompany(ctx context.Context, companyID string, opts Options) ([]*Result, error) {
	return recomputeCompany(ctx, s, companyID, opts)
}

// RecomputeAll recomputes every series of the given companies, or of every
// company with at least one period when companyIDs is empty.
func (s *Service) RecomputeAll(ctx context.Context, companyIDs []string, opts Options) ([]*Result, error) {
	return recomputeAll(ctx, s, s.store, s.concurrency, companyIDs, opts)
}

// run executes one series recompute. before, when set, runs inside the
// transaction ahead of the load.
func (s *Service) run(ctx context.Context, key statements.SeriesKey, opts Options, before func(context.Context, database.SeriesTx) error) (*Result, error) {
	start := time.Now()
	result := &Result{
		RunID:       uuid.NewString(),
		CompanyID:   key.CompanyID,
		IsTaxRecord: key.IsTaxRecord,
		Attempts:    1,
	}
	log := s.logger.WithFields(map[string]interface{}{
		"run_id":     result.RunID,
		"company_id": key.CompanyID,
		"series":     key.SeriesName(),
	})

	fail := func(err error) (*Result, error) {
		result.Duration = time.Since(start)
		result.Error = err.Error()
		log.WithError(err).Warn("Series recompute failed", "phase", string(phaseOf(err)))
		return result, err
	}

	unlock, err := s.locks.Lock(ctx, key)
	if err != nil {
		return fail(&PhaseError{Phase: PhaseLock, Err: err})
	}
	defer unlock()

	err = s.store.RunInSeriesTx(ctx, key, func(ctx context.Context, tx database.SeriesTx) error {
		if before != nil {
			if err := before(ctx, tx); err != nil {
				return err
			}
		}

		inputs, err := tx.LoadSeries(ctx)
		if err != nil {
			return &PhaseError{Phase: PhaseLoad, Err: err}
		}

		results, err := engine.ComputeSeries(inputs)
		if err != nil {
			return &PhaseError{Phase: PhaseCompute, Err: err}
		}
		if len(results) > 0 {
			result.Warnings = engine.Inspect(inputs).Warnings
		}

		if err := tx.UpsertComputedMetrics(ctx, results, database.UpsertOptions{ResetPublication: opts.ResetPublication}); err != nil {
			return &PhaseError{Phase: PhasePersist, Err: err}
		}
		result.Periods = len(results)
		return nil
	})
	if err != nil {
		var pe *PhaseError
		if !errors.As(err, &pe) {
			err = &PhaseError{Phase: PhaseCommit, Err: err}
		}
		return fail(err)
	}

	result.Success = true
	result.Duration = time.Since(start)
	log.WithDuration(result.Duration).Info("Series recomputed", "periods", result.Periods, "warnings", len(result.Warnings))

	if s.bus != nil {
		s.bus.PublishSeriesRecomputed(key.CompanyID, key.IsTaxRecord, result.RunID, result.Periods)
	}
	return result, nil
}

func phaseOf(err error) Phase {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Phase
	}
	return PhaseUnknown
}

// recomputeCompany runs both series of a company concurrently. A failure in
// one series does not cancel the other.
func recomputeCompany(ctx context.Context, r Recomputer, companyID string, opts Options) ([]*Result, error) {
	results := make([]*Result, 2)
	var g errgroup.Group
	for i, isTax := range []bool{false, true} {
		i, isTax := i, isTax
		g.Go(func() error {
			res, err := r.Recompute(ctx, companyID, isTax, opts)
			results[i] = res
			return err
		})
	}
	return results, g.Wait()
}

// recomputeAll fans out over every series with a concurrency bound. One
// failing series does not stop the others; the first error is returned.
func recomputeAll(ctx context.Context, r Recomputer, store Store, limit int, companyIDs []string, opts Options) ([]*Result, error) {
	if len(companyIDs) == 0 {
		ids, err := store.ListCompanyIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list companies: %w", err)
		}
		companyIDs = ids
	}

	results := make([]*Result, 2*len(companyIDs))
	errs := make([]error, len(results))

	if limit < 1 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i, companyID := range companyIDs {
		companyID := companyID
		for j, isTax := range []bool{false, true} {
			isTax := isTax
			idx := 2*i + j
			g.Go(func() error {
				results[idx], errs[idx] = r.Recompute(ctx, companyID, isTax, opts)
				return nil
			})
		}
	}
	g.Wait()

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}
