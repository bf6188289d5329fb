package engine

import (
	"errors"
	"testing"

	"financial-diagnostics/internal/statements"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func month(m int) *int { return &m }

func period(id string, year int, m *int) statements.Period {
	return statements.Period{ID: id, CompanyID: "acme", Year: year, Month: m}
}

func withAssets(p statements.Period, asset, profit string) statements.PeriodInput {
	return statements.PeriodInput{
		Period: p,
		Statements: statements.StatementSet{
			Balance: &statements.BalanceReport{
				TotalCurrentAsset: d(asset),
				NetProfit:         d(profit),
			},
		},
	}
}

// ============================================================================
// TEST: ComputeSeries
// ============================================================================

func TestComputeSeries_AlignedAndUnpublished(t *testing.T) {
	inputs := []statements.PeriodInput{
		withAssets(period("p1", 1400, nil), "100", "10"),
		withAssets(period("p2", 1401, nil), "200", "20"),
		withAssets(period("p3", 1402, nil), "300", "60"),
	}

	results, err := ComputeSeries(inputs)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, r := range results {
		assert.Equal(t, inputs[i].Period.ID, r.PeriodID)
		assert.False(t, r.IsPublished)
		expected := inputs[i].Statements.Balance.NetProfit.Div(d("200"))
		assert.True(t, r.Metrics.ROA.Equal(expected), "roa[%d] expected %s got %s", i, expected, r.Metrics.ROA)
	}
}

func TestComputeSeries_Empty(t *testing.T) {
	results, err := ComputeSeries(nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestComputeSeries_DeletingPeriodChangesAggregatesOnly(t *testing.T) {
	full := []statements.PeriodInput{
		withAssets(period("p1", 1400, nil), "100", "10"),
		withAssets(period("p2", 1401, nil), "200", "20"),
		withAssets(period("p3", 1402, nil), "300", "60"),
	}
	before, err := ComputeSeries(full)
	require.NoError(t, err)

	// drop p3: mean total_asset goes from 200 to 150
	after, err := ComputeSeries(full[:2])
	require.NoError(t, err)
	require.Len(t, after, 2)

	assert.True(t, before[0].Metrics.ROA.Equal(d("0.05")))
	assert.Equal(t, "0.0667", after[0].Metrics.ROA.StringFixed(4))
	assert.Equal(t, "0.1333", after[1].Metrics.ROA.StringFixed(4))

	for i := range after {
		assert.True(t, after[i].Metrics.TotalAsset.Equal(before[i].Metrics.TotalAsset))
		assert.True(t, after[i].Metrics.CapitalToAssetRatio.Equal(before[i].Metrics.CapitalToAssetRatio))
		assert.True(t, after[i].Metrics.Usability.Equal(before[i].Metrics.Usability))
	}
}

// ============================================================================
// TEST: ValidateSeries
// ============================================================================

func TestValidateSeries_Rejects(t *testing.T) {
	other := period("x", 1401, nil)
	other.CompanyID = "globex"
	tax := period("x", 1401, nil)
	tax.IsTaxRecord = true
	noCompany := period("p1", 1400, nil)
	noCompany.CompanyID = ""

	testCases := []struct {
		name  string
		input []statements.Period
		index int
	}{
		{"duplicate id", []statements.Period{period("p1", 1400, nil), period("p1", 1401, nil)}, 1},
		{"duplicate period", []statements.Period{period("p1", 1400, month(3)), period("p2", 1400, month(3))}, 1},
		{"out of order", []statements.Period{period("p1", 1401, nil), period("p2", 1400, nil)}, 1},
		{"mixed company", []statements.Period{period("p1", 1400, nil), other}, 1},
		{"mixed series", []statements.Period{period("p1", 1400, nil), tax}, 1},
		{"non-positive year", []statements.Period{period("p1", 0, nil)}, 0},
		{"month out of range", []statements.Period{period("p1", 1400, month(13))}, 0},
		{"missing company", []statements.Period{noCompany}, 0},
		{"missing id", []statements.Period{period("", 1400, nil)}, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			inputs := make([]statements.PeriodInput, len(tc.input))
			for i, p := range tc.input {
				inputs[i] = statements.PeriodInput{Period: p}
			}

			_, err := ComputeSeries(inputs)

			var invalid *InvalidSeriesError
			require.True(t, errors.As(err, &invalid), "expected InvalidSeriesError, got %v", err)
			assert.Equal(t, tc.index, invalid.Index)
		})
	}
}

func TestValidateSeries_YearlyBeforeMonths(t *testing.T) {
	inputs := []statements.PeriodInput{
		{Period: period("y", 1400, nil)},
		{Period: period("m1", 1400, month(1))},
		{Period: period("m12", 1400, month(12))},
		{Period: period("n", 1401, nil)},
	}
	assert.NoError(t, ValidateSeries(inputs))
}

func TestInspect_Warnings(t *testing.T) {
	inputs := []statements.PeriodInput{
		{
			Period: period("p1", 1400, nil),
			Statements: statements.StatementSet{
				Balance: &statements.BalanceReport{TotalCurrentAsset: d("-1")},
			},
		},
	}

	result := Inspect(inputs)

	assert.True(t, result.IsValid)
	assert.Empty(t, result.Errors)
	// three missing statements plus the negative asset total
	assert.Len(t, result.Warnings, 4)
}
