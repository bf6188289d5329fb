package database

import (
	"errors"
	"fmt"
	"time"

	"financial-diagnostics/internal/ratios"
	"financial-diagnostics/internal/statements"
)

var (
	// ErrPeriodNotFound is returned when a period id does not exist
	ErrPeriodNotFound = errors.New("period not found")

	// ErrMetricsNotFound is returned when a period has no computed metrics row
	ErrMetricsNotFound = errors.New("computed metrics not found")

	// ErrFailureNotFound is returned when a recompute failure record does not exist
	ErrFailureNotFound = errors.New("recompute failure not found")
)

// statementTables maps each statement kind to its table
var statementTables = map[statements.Kind]string{
	statements.KindBalance:         "balance_reports",
	statements.KindProfitLoss:      "profit_loss_statements",
	statements.KindSoldProductFee:  "sold_product_fee_statements",
	statements.KindAccountTurnover: "account_turnover_statements",
}

func statementTable(kind statements.Kind) (string, error) {
	table, ok := statementTables[kind]
	if !ok {
		return "", fmt.Errorf("unknown statement kind %q", kind)
	}
	return table, nil
}

// ComputedMetrics is one computed_period_metrics row
type ComputedMetrics struct {
	PeriodID    string         `json:"period_id"`
	CompanyID   string         `json:"company_id"`
	IsTaxRecord bool           `json:"is_tax_record"`
	Metrics     ratios.Metrics `json:"metrics"`
	IsPublished bool           `json:"is_published"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// PublishedMetrics is a published row joined with its period, as served to
// read APIs.
type PublishedMetrics struct {
	PeriodID  string         `json:"period_id"`
	Year      int            `json:"year"`
	Month     *int           `json:"month,omitempty"`
	Metrics   ratios.Metrics `json:"metrics"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// PublicationChange describes the outcome of a publication flag update
type PublicationChange struct {
	PeriodID    string `json:"period_id"`
	CompanyID   string `json:"company_id"`
	IsTaxRecord bool   `json:"is_tax_record"`
	Previous    bool   `json:"previous"`
	Current     bool   `json:"current"`
}

// Changed reports whether the flag actually flipped.
func (c PublicationChange) Changed() bool {
	return c.Previous != c.Current
}

// UpsertOptions tunes how computed metrics are written
type UpsertOptions struct {
	// ResetPublication sets is_published back to false on existing rows.
	ResetPublication bool
}

// RecomputeFailure is a durable record of a recompute that exhausted its retries
type RecomputeFailure struct {
	ID          string     `json:"id"`
	CompanyID   string     `json:"company_id"`
	IsTaxRecord bool       `json:"is_tax_record"`
	Phase       string     `json:"phase"` // load, compute, persist, commit
	Attempts    int        `json:"attempts"`
	Retryable   bool       `json:"retryable"`
	Error       string     `json:"error"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// SeriesKey returns the series the failure belongs to.
func (f RecomputeFailure) SeriesKey() statements.SeriesKey {
	return statements.SeriesKey{CompanyID: f.CompanyID, IsTaxRecord: f.IsTaxRecord}
}
