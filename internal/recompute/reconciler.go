package recompute

import (
	"context"
	"fmt"
	"time"

	"financial-diagnostics/internal/logging"
	"financial-diagnostics/internal/statements"
)

// DefaultReconcileLimit caps the failure records handled per run
const DefaultReconcileLimit = 100

// ReconcileReport summarizes one reconciliation pass
type ReconcileReport struct {
	Checked      int      `json:"checked"`   // open failure records read
	Series       int      `json:"series"`    // distinct series re-run
	Recovered    int      `json:"recovered"` // series that recomputed cleanly
	Resolved     int64    `json:"resolved"`  // failure records closed
	StillFailing []string `json:"still_failing,omitempty"`
}

// Reconciler re-runs series that have open failure records and closes the
// records once the series recomputes cleanly.
type Reconciler struct {
	store      Store
	recomputer Recomputer
	limit      int
	logger     *logging.Logger
}

// NewReconciler creates a reconciler. recomputer is normally the plain
// Service so a failed reconcile does not write a fresh failure record.
func NewReconciler(store Store, recomputer Recomputer, limit int, logger *logging.Logger) *Reconciler {
	if limit <= 0 {
		limit = DefaultReconcileLimit
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{
		store:      store,
		recomputer: recomputer,
		limit:      limit,
		logger:     logger.WithComponent("reconciler"),
	}
}

// RunOnce processes the open failures once
func (r *Reconciler) RunOnce(ctx context.Context) (*ReconcileReport, error) {
	start := time.Now()

	failures, err := r.store.ListOpenFailures(ctx, r.limit)
	if err != nil {
		return nil, err
	}

	// one run per series, whatever its number of open records
	seen := make(map[statements.SeriesKey]bool, len(failures))
	keys := make([]statements.SeriesKey, 0, len(failures))
	for _, f := range failures {
		key := f.SeriesKey()
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}

	report := &ReconcileReport{Checked: len(failures), Series: len(keys)}
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if _, err := r.recomputer.Recompute(ctx, key.CompanyID, key.IsTaxRecord, Options{}); err != nil {
			r.logger.WithError(err).Warn("Series still failing", "series", key.String())
			report.StillFailing = append(report.StillFailing, key.String())
			continue
		}

		n, err := r.store.ResolveSeriesFailures(ctx, key.CompanyID, key.IsTaxRecord)
		if err != nil {
			return report, fmt.Errorf("failed to resolve failures of %s: %w", key, err)
		}
		report.Recovered++
		report.Resolved += n
	}

	r.logger.WithDuration(time.Since(start)).Info("Reconcile pass finished",
		"checked", report.Checked, "series", report.Series, "recovered", report.Recovered, "still_failing", len(report.StillFailing))
	return report, nil
}
