package ratios

import (
	"financial-diagnostics/internal/extract"

	"github.com/shopspring/decimal"
)

// Altman weights
var (
	altmanCapitalWeight     = decimal.RequireFromString("1.2")
	altmanAccumulatedWeight = decimal.RequireFromString("1.4")
	altmanBeforeTaxWeight   = decimal.RequireFromString("3.3")
	altmanEquityWeight      = decimal.RequireFromString("0.6")
)

// SeriesAggregates holds the series-wide means used by cross-period ratios.
type SeriesAggregates struct {
	MeanTotalAsset decimal.Decimal
	MeanInventory  decimal.Decimal
}

// Aggregate computes the means over every period of the series. Zero values
// take part in the mean like any other value.
func Aggregate(series []extract.FieldSet) SeriesAggregates {
	assets := make([]decimal.Decimal, len(series))
	inventories := make([]decimal.Decimal, len(series))
	for i := range series {
		assets[i] = series[i].TotalAsset
		inventories[i] = series[i].Inventory
	}
	return SeriesAggregates{
		MeanTotalAsset: mean(assets),
		MeanInventory:  mean(inventories),
	}
}

// Calculate derives the metrics for an ordered series (oldest first). The
// output is index-aligned with the input; an empty series yields an empty
// slice.
func Calculate(series []extract.FieldSet) []Metrics {
	out := make([]Metrics, len(series))
	if len(series) == 0 {
		return out
	}
	agg := Aggregate(series)
	for i := range series {
		out[i] = CalculatePeriod(series[i], agg)
	}
	return out
}

// CalculatePeriod derives one period's metrics given the series aggregates.
func CalculatePeriod(f extract.FieldSet, agg SeriesAggregates) Metrics {
	m := Metrics{
		CurrentAsset:             f.TotalCurrentAsset,
		CurrentDebt:              f.TotalCurrentDebt,
		NonCurrentAsset:          f.TotalNonCurrentAsset,
		NonCurrentDebt:           f.TotalNonCurrentDebt,
		TotalAsset:               f.TotalAsset,
		TotalDebt:                f.TotalDebt,
		Inventory:                f.Inventory,
		OwnershipRightTotal:      f.OwnershipRightTotal,
		NetSale:                  f.NetSale,
		NetProfit:                f.NetProfit,
		GrossProfit:              f.GrossProfit,
		OperationalIncome:        f.OperationalIncome,
		OperationalProfit:        f.OperationalProfit,
		ProceedProfit:            f.ProceedProfit,
		AccumulatedProfitLoss:    f.AccumulatedProfitLoss,
		SoldProductTotalPrice:    f.SoldProductTotalPrice,
		EndYearAccumulatedProfit: f.EndYearAccumulatedProfit,
		MarketingFee:             f.MarketingFee,
	}

	currentAsset := f.TotalCurrentAsset
	currentDebt := f.TotalCurrentDebt

	m.Usability = SafeDiv(f.NetProfit, f.NetSale)
	m.Efficiency = SafeDiv(f.NetSale, f.TotalAsset)
	m.ROE = SafeDiv(f.NetProfit, f.OwnershipRightTotal)
	m.DebtRatio = SafeDiv(f.TotalDebt, f.TotalAsset)
	m.CapitalRatio = SafeDiv(f.NetProfit, f.OwnershipRightTotal)
	// Inverted relative to the textbook definition; stored values depend on it.
	m.ProprietaryRatio = SafeDiv(f.TotalAsset, f.ProceedProfit)
	m.EquityPerTotalDebtRatio = SafeDiv(f.OwnershipRightTotal, f.TotalDebt)
	m.EquityPerTotalNonCurrentAssetRatio = SafeDiv(f.OwnershipRightTotal, f.TotalNonCurrentAsset)
	m.CurrentRatio = SafeDiv(currentAsset, currentDebt)
	m.InstantRatio = SafeDiv(currentAsset.Sub(f.Inventory), currentDebt)
	m.GrossProfitMargin = SafeDiv(f.GrossProfit, f.OperationalIncome)
	if !f.NetProfit.IsZero() {
		m.ProfitMarginRatio = SafeDiv(f.NetProfit, f.OperationalIncome)
	}
	m.SalaryProductionFee = f.DirectWage.Add(f.SalaryFee)
	m.CapitalToAssetRatio = SafeDiv(currentAsset.Sub(currentDebt), f.TotalAsset)
	m.AccumulatedProfitToAssetRatio = SafeDiv(f.AccumulatedProfitLoss, f.TotalAsset)
	m.BeforeTaxProfitToAssetRatio = SafeDiv(f.ProceedProfit, f.TotalAsset)
	m.SaleToAssetRatio = SafeDiv(f.NetSale, f.TotalAsset)
	m.EquityToDebtRatio = SafeDiv(f.OwnershipRightTotal, f.TotalDebt)

	// series-level
	m.ROA = SafeDiv(f.NetProfit, agg.MeanTotalAsset)
	m.StockTurnover = SafeDiv(f.SoldProductTotalPrice, agg.MeanInventory)
	m.ROAB = m.Usability.Mul(m.Efficiency)

	m.AltmanBankruptcyRatio = Altman(
		m.CapitalToAssetRatio,
		m.AccumulatedProfitToAssetRatio,
		m.BeforeTaxProfitToAssetRatio,
		m.EquityPerTotalDebtRatio,
		m.SaleToAssetRatio,
	)

	return m
}

// Altman combines the five weighted sub-ratios of the bankruptcy index.
func Altman(capitalToAsset, accumulatedProfitToAsset, beforeTaxProfitToAsset, equityPerTotalDebt, saleToAsset decimal.Decimal) decimal.Decimal {
	return altmanCapitalWeight.Mul(capitalToAsset).
		Add(altmanAccumulatedWeight.Mul(accumulatedProfitToAsset)).
		Add(altmanBeforeTaxWeight.Mul(beforeTaxProfitToAsset)).
		Add(altmanEquityWeight.Mul(equityPerTotalDebt)).
		Add(saleToAsset)
}

// QuotientDigits is the number of significant digits kept by SafeDiv,
// counted from the leading digit of the quotient.
const QuotientDigits = 28

// SafeDiv divides num by den, returning zero when den is zero. The quotient
// keeps QuotientDigits significant digits however small it is, so a tiny
// ratio never collapses into the zero of the division guard.
func SafeDiv(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	places := QuotientDigits - (magnitude(num) - magnitude(den)) + 1
	if places < 0 {
		places = 0
	}
	return num.DivRound(den, int32(places))
}

// magnitude is the power of ten of the leading digit of d.
func magnitude(d decimal.Decimal) int {
	if d.IsZero() {
		return 0
	}
	return d.NumDigits() + int(d.Exponent()) - 1
}

func mean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return SafeDiv(decimal.Sum(decimal.Zero, values...), decimal.NewFromInt(int64(len(values))))
}
