// Package recompute keeps computed_period_metrics in step with the statements
// they derive from. Every recompute covers a whole series.
package recompute

import (
	"context"
	"fmt"
	"time"

	"financial-diagnostics/internal/database"
	"financial-diagnostics/internal/statements"
)

// Store is the persistence the recompute service needs
type Store interface {
	GetPeriod(ctx context.Context, periodID string) (*statements.Period, error)
	RunInSeriesTx(ctx context.Context, key statements.SeriesKey, fn func(ctx context.Context, tx database.SeriesTx) error) error
	ListCompanyIDs(ctx context.Context) ([]string, error)
	RecordRecomputeFailure(ctx context.Context, f *database.RecomputeFailure) error
	ListOpenFailures(ctx context.Context, limit int) ([]database.RecomputeFailure, error)
	ResolveSeriesFailures(ctx context.Context, companyID string, isTaxRecord bool) (int64, error)
}

// Recomputer is implemented by Service and RetryingService
type Recomputer interface {
	Recompute(ctx context.Context, companyID string, isTaxRecord bool, opts Options) (*Result, error)
	OnStatementChanged(ctx context.Context, periodID string) (*Result, error)
	DeletePeriod(ctx context.Context, periodID string) (*Result, error)
	RecomputeCompany(ctx context.Context, companyID string, opts Options) ([]*Result, error)
	RecomputeAll(ctx context.Context, companyIDs []string, opts Options) ([]*Result, error)
}

// Options tunes a recompute
type Options struct {
	ResetPublication bool `json:"reset_publication"` // unpublish every row of the series
}

// Result holds the outcome of one series recompute
type Result struct {
	RunID       string        `json:"run_id"`
	CompanyID   string        `json:"company_id"`
	IsTaxRecord bool          `json:"is_tax_record"`
	Periods     int           `json:"periods"`
	Warnings    []string      `json:"warnings,omitempty"`
	Duration    time.Duration `json:"duration"`
	Attempts    int           `json:"attempts"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
}

// Phase names the step of a recompute that failed
type Phase string

const (
	PhaseLock    Phase = "lock"
	PhaseDelete  Phase = "delete"
	PhaseLoad    Phase = "load"
	PhaseCompute Phase = "compute"
	PhasePersist Phase = "persist"
	PhaseCommit  Phase = "commit"
	PhaseUnknown Phase = "unknown"
)

// PhaseError tags an error with the phase it happened in
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// RecomputeError describes one failed attempt
type RecomputeError struct {
	CompanyID   string
	IsTaxRecord bool
	Phase       Phase
	Attempt     int
	Error       error
	Timestamp   time.Time
	Retryable   bool
}

func (e *RecomputeError) String() string {
	series := "monthly"
	if e.IsTaxRecord {
		series = "tax"
	}
	return fmt.Sprintf("[%s] Company %s, Series %s, Phase %s, Attempt %d: %v",
		e.Timestamp.Format(time.RFC3339), e.CompanyID, series, e.Phase, e.Attempt, e.Error)
}
