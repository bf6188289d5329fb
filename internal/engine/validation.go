package engine

import (
	"fmt"

	"financial-diagnostics/internal/statements"
)

// InvalidSeriesError is returned when the input series breaks an invariant
// the calculator relies on. It is fatal to the invocation.
type InvalidSeriesError struct {
	Key      statements.SeriesKey
	Index    int    // position of the offending period, -1 for series-wide problems
	PeriodID string
	Reason   string
}

func (e *InvalidSeriesError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid series %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("invalid series %s: period %d (%s): %s", e.Key, e.Index, e.PeriodID, e.Reason)
}

// ValidationResult lists the data-quality findings for a series
type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`   // invariant violations, the series is rejected
	Warnings []string `json:"warnings"` // missing statements and suspicious values
}

// ValidateSeries checks that inputs form one well-ordered series.
func ValidateSeries(inputs []statements.PeriodInput) error {
	if len(inputs) == 0 {
		return nil
	}
	key := inputs[0].Period.SeriesKey()

	fail := func(i int, reason string, args ...interface{}) error {
		id := ""
		if i >= 0 {
			id = inputs[i].Period.ID
		}
		return &InvalidSeriesError{Key: key, Index: i, PeriodID: id, Reason: fmt.Sprintf(reason, args...)}
	}

	if key.CompanyID == "" {
		return fail(0, "period has no company")
	}

	seen := make(map[string]bool, len(inputs))
	for i, in := range inputs {
		p := in.Period
		if p.ID == "" {
			return fail(i, "period has no id")
		}
		if seen[p.ID] {
			return fail(i, "duplicate period id")
		}
		seen[p.ID] = true

		if p.CompanyID != key.CompanyID {
			return fail(i, "company %q does not match series company %q", p.CompanyID, key.CompanyID)
		}
		if p.IsTaxRecord != key.IsTaxRecord {
			return fail(i, "is_tax_record=%t does not match series", p.IsTaxRecord)
		}
		if p.Year <= 0 {
			return fail(i, "year must be positive, got %d", p.Year)
		}
		if p.Month != nil && (*p.Month < 1 || *p.Month > 12) {
			return fail(i, "month must be within 1-12, got %d", *p.Month)
		}
		if i > 0 {
			prev := inputs[i-1].Period
			if prev.Ordinal() == p.Ordinal() {
				return fail(i, "duplicate period %s", p.Label())
			}
			if prev.Ordinal() > p.Ordinal() {
				return fail(i, "period %s is out of order after %s", p.Label(), prev.Label())
			}
		}
	}
	return nil
}

// Inspect runs ValidateSeries and collects non-fatal findings.
func Inspect(inputs []statements.PeriodInput) *ValidationResult {
	result := &ValidationResult{
		IsValid:  true,
		Errors:   []string{},
		Warnings: []string{},
	}

	if err := ValidateSeries(inputs); err != nil {
		result.Errors = append(result.Errors, err.Error())
		result.IsValid = false
	}

	for _, in := range inputs {
		label := in.Period.Label()
		set := in.Statements

		for _, kind := range statements.Kinds {
			if set.Get(kind) == nil {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("%s: %s missing, its fields count as zero", label, kind))
			}
		}

		if b := set.Balance; b != nil {
			if b.TotalCurrentAsset.IsNegative() || b.TotalNonCurrentAsset.IsNegative() {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("%s: negative asset total", label))
			}
			if b.FirstPeriodInventory.IsNegative() || b.EndPeriodInventory.IsNegative() {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("%s: negative inventory", label))
			}
		}
	}

	return result
}
