package recompute

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"financial-diagnostics/config"
	"financial-diagnostics/internal/database"
	"financial-diagnostics/internal/engine"
	"financial-diagnostics/internal/events"
	"financial-diagnostics/internal/logging"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// RetryConfig defines retry behavior
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	}
}

// RetryConfigFrom builds a RetryConfig from application config. Unset fields
// keep their defaults.
func RetryConfigFrom(cfg config.RecomputeConfig) *RetryConfig {
	rc := DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		rc.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialBackoff > 0 {
		rc.InitialBackoff = cfg.InitialBackoff
	}
	if cfg.MaxBackoff > 0 {
		rc.MaxBackoff = cfg.MaxBackoff
	}
	return rc
}

func (c *RetryConfig) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.InitialBackoff
	exp.MaxInterval = c.MaxBackoff
	exp.MaxElapsedTime = 0

	retries := c.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

// Postgres error codes worth another attempt
var retryablePgCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
	"57P01": true, // admin_shutdown
	"53300": true, // too_many_connections
}

// ErrorClassifier classifies errors as retryable or not
type ErrorClassifier struct{}

// IsRetryable determines if an error should trigger a retry
func (c *ErrorClassifier) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var invalid *engine.InvalidSeriesError
	if errors.As(err, &invalid) {
		return false
	}
	if errors.Is(err, database.ErrPeriodNotFound) || errors.Is(err, context.Canceled) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08 is connection exceptions
		return retryablePgCodes[pgErr.Code] || strings.HasPrefix(pgErr.Code, "08")
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"deadlock",
		"lock timeout",
		"serialization failure",
		"too many connections",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// IdentifyPhase returns the phase an error was tagged with
func (c *ErrorClassifier) IdentifyPhase(err error) Phase {
	return phaseOf(err)
}

// RetryingService wraps Service with bounded retries. A series whose retries
// are exhausted, or whose error is not retryable, is written to the failure
// log for the reconciler.
type RetryingService struct {
	service    *Service
	store      Store
	bus        *events.EventBus
	config     *RetryConfig
	classifier *ErrorClassifier
	logger     *logging.Logger
	onError    func(RecomputeError)
}

// NewRetryingService creates a recompute service with retry support
func NewRetryingService(service *Service, cfg *RetryConfig) *RetryingService {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	return &RetryingService{
		service:    service,
		store:      service.store,
		bus:        service.bus,
		config:     cfg,
		classifier: &ErrorClassifier{},
		logger:     service.logger.WithComponent("recompute-retry"),
	}
}

// SetErrorCallback sets an optional callback invoked on every failed attempt
func (r *RetryingService) SetErrorCallback(callback func(RecomputeError)) {
	r.onError = callback
}

// Recompute rebuilds one series, retrying transient failures
func (r *RetryingService) Recompute(ctx context.Context, companyID string, isTaxRecord bool, opts Options) (*Result, error) {
	return r.withRetry(ctx, companyID, isTaxRecord, func(ctx context.Context) (*Result, error) {
		return r.service.Recompute(ctx, companyID, isTaxRecord, opts)
	})
}

// OnStatementChanged recomputes the series of a period, retrying transient failures
func (r *RetryingService) OnStatementChanged(ctx context.Context, periodID string) (*Result, error) {
	p, err := r.store.GetPeriod(ctx, periodID)
	if err != nil {
		return nil, err
	}
	key := p.SeriesKey()
	return r.withRetry(ctx, key.CompanyID, key.IsTaxRecord, func(ctx context.Context) (*Result, error) {
		return r.service.run(ctx, key, Options{}, nil)
	})
}

// DeletePeriod deletes a period and recomputes its series, retrying transient failures
func (r *RetryingService) DeletePeriod(ctx context.Context, periodID string) (*Result, error) {
	p, err := r.store.GetPeriod(ctx, periodID)
	if err != nil {
		return nil, err
	}
	return r.withRetry(ctx, p.CompanyID, p.IsTaxRecord, func(ctx context.Context) (*Result, error) {
		return r.service.DeletePeriod(ctx, periodID)
	})
}

// RecomputeCompany recomputes both series of a company
func (r *RetryingService) RecomputeCompany(ctx context.Context, companyID string, opts Options) ([]*Result, error) {
	return recomputeCompany(ctx, r, companyID, opts)
}

// RecomputeAll recomputes every series of the given companies, or all companies
func (r *RetryingService) RecomputeAll(ctx context.Context, companyIDs []string, opts Options) ([]*Result, error) {
	return recomputeAll(ctx, r, r.store, r.service.concurrency, companyIDs, opts)
}

func (r *RetryingService) withRetry(ctx context.Context, companyID string, isTaxRecord bool, op func(context.Context) (*Result, error)) (*Result, error) {
	var (
		result  *Result
		attempt int
		last    RecomputeError
	)

	operation := func() error {
		attempt++
		res, err := op(ctx)
		result = res
		if err == nil {
			return nil
		}

		last = RecomputeError{
			CompanyID:   companyID,
			IsTaxRecord: isTaxRecord,
			Phase:       r.classifier.IdentifyPhase(err),
			Attempt:     attempt,
			Error:       err,
			Timestamp:   time.Now(),
			Retryable:   r.classifier.IsRetryable(err),
		}
		r.logger.Warn(last.String())
		if r.onError != nil {
			r.onError(last)
		}

		if !last.Retryable {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		r.logger.Info("Waiting before retry", "company_id", companyID, "attempt", attempt+1, "wait", wait.String())
	}

	err := backoff.RetryNotify(operation, r.config.backOff(ctx), notify)
	if result != nil {
		result.Attempts = attempt
	}
	if err == nil {
		return result, nil
	}

	if errors.Is(err, database.ErrPeriodNotFound) || companyID == "" {
		return result, err
	}
	r.markFailed(ctx, last, err)
	return result, err
}

// markFailed records the failure for the reconciler and announces it.
func (r *RetryingService) markFailed(ctx context.Context, last RecomputeError, err error) {
	failure := &database.RecomputeFailure{
		ID:          uuid.NewString(),
		CompanyID:   last.CompanyID,
		IsTaxRecord: last.IsTaxRecord,
		Phase:       string(last.Phase),
		Attempts:    last.Attempt,
		Retryable:   last.Retryable,
		Error:       err.Error(),
	}

	// the caller's context may already be cancelled
	if recErr := r.store.RecordRecomputeFailure(context.WithoutCancel(ctx), failure); recErr != nil {
		r.logger.WithError(recErr).Error("Failed to record recompute failure", "company_id", last.CompanyID)
	} else {
		r.logger.Error("Series marked for reconciliation",
			"company_id", last.CompanyID, "failure_id", failure.ID, "attempts", last.Attempt)
	}

	if r.bus != nil {
		r.bus.PublishRecomputeFailed(last.CompanyID, last.IsTaxRecord, string(last.Phase), err)
	}
}
