package extract

import (
	"financial-diagnostics/internal/statements"

	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// FieldSet is the flat set of values the ratio calculator reads for one period.
// Missing sub-statements contribute zeros.
type FieldSet struct {
	// Balance report
	TotalCurrentAsset                 decimal.Decimal
	TotalNonCurrentAsset              decimal.Decimal
	TotalCurrentDebt                  decimal.Decimal
	TotalNonCurrentDebt               decimal.Decimal
	OwnershipRightTotal               decimal.Decimal
	NetSale                           decimal.Decimal
	NetProfit                         decimal.Decimal // falls back to ProfitAfterTax
	FirstPeriodInventory              decimal.Decimal
	EndPeriodInventory                decimal.Decimal
	AccumulatedProfitLoss             decimal.Decimal
	TradePayable                      decimal.Decimal
	Advance                           decimal.Decimal
	Reserves                          decimal.Decimal
	LongTermPayable                   decimal.Decimal
	EmployeeTerminationBenefitReserve decimal.Decimal

	// Profit-loss statement
	OperationalProfit        decimal.Decimal
	GrossProfit              decimal.Decimal
	SalaryFee                decimal.Decimal
	ProfitAfterTax           decimal.Decimal
	ProceedProfit            decimal.Decimal
	OperationalIncome        decimal.Decimal
	OperationalIncomeExpense decimal.Decimal
	MarketingFee             decimal.Decimal

	// Sold-product-fee statement
	ConsumingMaterial     decimal.Decimal
	ConstructionOverhead  decimal.Decimal
	ProductionTotalPrice  decimal.Decimal
	DirectWage            decimal.Decimal
	SoldProductTotalPrice decimal.Decimal

	// Account-turnover statement
	EndYearAccumulatedProfit decimal.Decimal

	// Derived
	Inventory  decimal.Decimal
	TotalAsset decimal.Decimal
	TotalDebt  decimal.Decimal
}

// Extract returns every field of the given statement kind keyed by name.
// When the statement is absent each field is exactly zero.
func Extract(set statements.StatementSet, kind statements.Kind) map[string]decimal.Decimal {
	values := make(map[string]decimal.Decimal)
	if stmt := set.Get(kind); stmt != nil {
		for _, ref := range stmt.Fields() {
			values[ref.Name] = *ref.Value
		}
		return values
	}
	for _, name := range statements.Columns(kind) {
		values[name] = decimal.Zero
	}
	return values
}

// ExtractFields flattens a period's statements and applies the derived fields.
func ExtractFields(set statements.StatementSet) FieldSet {
	b := Extract(set, statements.KindBalance)
	pl := Extract(set, statements.KindProfitLoss)
	spf := Extract(set, statements.KindSoldProductFee)
	at := Extract(set, statements.KindAccountTurnover)

	fs := FieldSet{
		TotalCurrentAsset:                 b[statements.FieldTotalCurrentAsset],
		TotalNonCurrentAsset:              b[statements.FieldTotalNonCurrentAsset],
		TotalCurrentDebt:                  b[statements.FieldTotalCurrentDebt],
		TotalNonCurrentDebt:               b[statements.FieldTotalNonCurrentDebt],
		OwnershipRightTotal:               b[statements.FieldOwnershipRightTotal],
		NetSale:                           b[statements.FieldNetSale],
		NetProfit:                         b[statements.FieldNetProfit],
		FirstPeriodInventory:              b[statements.FieldFirstPeriodInventory],
		EndPeriodInventory:                b[statements.FieldEndPeriodInventory],
		AccumulatedProfitLoss:             b[statements.FieldAccumulatedProfitLoss],
		TradePayable:                      b[statements.FieldTradePayable],
		Advance:                           b[statements.FieldAdvance],
		Reserves:                          b[statements.FieldReserves],
		LongTermPayable:                   b[statements.FieldLongTermPayable],
		EmployeeTerminationBenefitReserve: b[statements.FieldEmployeeTerminationBenefitReserve],

		OperationalProfit:        pl[statements.FieldOperationalProfit],
		GrossProfit:              pl[statements.FieldGrossProfit],
		SalaryFee:                pl[statements.FieldSalaryFee],
		ProfitAfterTax:           pl[statements.FieldProfitAfterTax],
		ProceedProfit:            pl[statements.FieldProceedProfit],
		OperationalIncome:        pl[statements.FieldOperationalIncome],
		OperationalIncomeExpense: pl[statements.FieldOperationalIncomeExpense],
		MarketingFee:             pl[statements.FieldMarketingFee],

		ConsumingMaterial:     spf[statements.FieldConsumingMaterial],
		ConstructionOverhead:  spf[statements.FieldConstructionOverhead],
		ProductionTotalPrice:  spf[statements.FieldProductionTotalPrice],
		DirectWage:            spf[statements.FieldDirectWage],
		SoldProductTotalPrice: spf[statements.FieldSoldProductTotalPrice],

		EndYearAccumulatedProfit: at[statements.FieldEndYearAccumulatedProfit],
	}

	if set.Balance != nil {
		fs.Inventory = fs.FirstPeriodInventory.Add(fs.EndPeriodInventory).Div(two)
	}
	fs.TotalAsset = fs.TotalCurrentAsset.Add(fs.TotalNonCurrentAsset)
	fs.TotalDebt = fs.TotalCurrentDebt.Add(fs.TotalNonCurrentDebt)

	if set.Balance == nil || fs.NetProfit.IsZero() {
		fs.NetProfit = fs.ProfitAfterTax
	}

	return fs
}

// ExtractSeries extracts every period of an ordered series, keeping order.
func ExtractSeries(inputs []statements.PeriodInput) []FieldSet {
	out := make([]FieldSet, len(inputs))
	for i := range inputs {
		out[i] = ExtractFields(inputs[i].Statements)
	}
	return out
}
