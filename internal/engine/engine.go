// Package engine turns an ordered series of period statements into per-period
// metrics. It performs no I/O.
package engine

import (
	"financial-diagnostics/internal/extract"
	"financial-diagnostics/internal/ratios"
	"financial-diagnostics/internal/statements"
)

// PeriodResult is the computed output for one input period
type PeriodResult struct {
	PeriodID    string            `json:"period_id"`
	Period      statements.Period `json:"-"`
	Metrics     ratios.Metrics    `json:"metrics"`
	IsPublished bool              `json:"is_published"` // always false when produced here
}

// ComputeSeries validates the series, extracts each period's fields and
// derives its metrics. Results are index-aligned with inputs.
func ComputeSeries(inputs []statements.PeriodInput) ([]PeriodResult, error) {
	if err := ValidateSeries(inputs); err != nil {
		return nil, err
	}

	metrics := ratios.Calculate(extract.ExtractSeries(inputs))

	results := make([]PeriodResult, len(inputs))
	for i := range inputs {
		results[i] = PeriodResult{
			PeriodID: inputs[i].Period.ID,
			Period:   inputs[i].Period,
			Metrics:  metrics[i],
		}
	}
	return results, nil
}
