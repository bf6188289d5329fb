package ratios

import (
	"financial-diagnostics/internal/statements"

	"github.com/shopspring/decimal"
)

// Metrics is the derived record stored for one period
type Metrics struct {
	// Pass-through values used by charts
	CurrentAsset             decimal.Decimal `json:"current_asset"`
	CurrentDebt              decimal.Decimal `json:"current_debt"`
	NonCurrentAsset          decimal.Decimal `json:"non_current_asset"`
	NonCurrentDebt           decimal.Decimal `json:"non_current_debt"`
	TotalAsset               decimal.Decimal `json:"total_asset"`
	TotalDebt                decimal.Decimal `json:"total_debt"`
	Inventory                decimal.Decimal `json:"inventory"`
	OwnershipRightTotal      decimal.Decimal `json:"ownership_right_total"`
	NetSale                  decimal.Decimal `json:"net_sale"`
	NetProfit                decimal.Decimal `json:"net_profit"`
	GrossProfit              decimal.Decimal `json:"gross_profit"`
	OperationalIncome        decimal.Decimal `json:"operational_income"`
	OperationalProfit        decimal.Decimal `json:"operational_profit"`
	ProceedProfit            decimal.Decimal `json:"proceed_profit"`
	AccumulatedProfitLoss    decimal.Decimal `json:"accumulated_profit_loss"`
	SoldProductTotalPrice    decimal.Decimal `json:"sold_product_total_price"`
	EndYearAccumulatedProfit decimal.Decimal `json:"end_year_accumulated_profit"`
	MarketingFee             decimal.Decimal `json:"marketing_fee"`

	// Ratios
	Usability                          decimal.Decimal `json:"usability"`
	Efficiency                         decimal.Decimal `json:"efficiency"`
	ROA                                decimal.Decimal `json:"roa"`
	ROAB                               decimal.Decimal `json:"roab"`
	ROE                                decimal.Decimal `json:"roe"`
	DebtRatio                          decimal.Decimal `json:"debt_ratio"`
	CapitalRatio                       decimal.Decimal `json:"capital_ratio"`
	ProprietaryRatio                   decimal.Decimal `json:"proprietary_ratio"`
	EquityPerTotalDebtRatio            decimal.Decimal `json:"equity_per_total_debt_ratio"`
	EquityPerTotalNonCurrentAssetRatio decimal.Decimal `json:"equity_per_total_non_current_asset_ratio"`
	CurrentRatio                       decimal.Decimal `json:"current_ratio"`
	InstantRatio                       decimal.Decimal `json:"instant_ratio"`
	StockTurnover                      decimal.Decimal `json:"stock_turnover"`
	GrossProfitMargin                  decimal.Decimal `json:"gross_profit_margin"`
	ProfitMarginRatio                  decimal.Decimal `json:"profit_margin_ratio"`
	SalaryProductionFee                decimal.Decimal `json:"salary_production_fee"`
	CapitalToAssetRatio                decimal.Decimal `json:"capital_to_asset_ratio"`
	AccumulatedProfitToAssetRatio      decimal.Decimal `json:"accumulated_profit_to_asset_ratio"`
	BeforeTaxProfitToAssetRatio        decimal.Decimal `json:"before_tax_profit_to_asset_ratio"`
	SaleToAssetRatio                   decimal.Decimal `json:"sale_to_asset_ratio"`
	EquityToDebtRatio                  decimal.Decimal `json:"equity_to_debt_ratio"`
	AltmanBankruptcyRatio              decimal.Decimal `json:"altman_bankruptcy_ratio"`
}

// Fields exposes every metric column in storage order. The database layer
// builds its column lists from here.
func (m *Metrics) Fields() []statements.FieldRef {
	return []statements.FieldRef{
		{Name: "current_asset", Value: &m.CurrentAsset},
		{Name: "current_debt", Value: &m.CurrentDebt},
		{Name: "non_current_asset", Value: &m.NonCurrentAsset},
		{Name: "non_current_debt", Value: &m.NonCurrentDebt},
		{Name: "total_asset", Value: &m.TotalAsset},
		{Name: "total_debt", Value: &m.TotalDebt},
		{Name: "inventory", Value: &m.Inventory},
		{Name: "ownership_right_total", Value: &m.OwnershipRightTotal},
		{Name: "net_sale", Value: &m.NetSale},
		{Name: "net_profit", Value: &m.NetProfit},
		{Name: "gross_profit", Value: &m.GrossProfit},
		{Name: "operational_income", Value: &m.OperationalIncome},
		{Name: "operational_profit", Value: &m.OperationalProfit},
		{Name: "proceed_profit", Value: &m.ProceedProfit},
		{Name: "accumulated_profit_loss", Value: &m.AccumulatedProfitLoss},
		{Name: "sold_product_total_price", Value: &m.SoldProductTotalPrice},
		{Name: "end_year_accumulated_profit", Value: &m.EndYearAccumulatedProfit},
		{Name: "marketing_fee", Value: &m.MarketingFee},

		{Name: "usability", Value: &m.Usability},
		{Name: "efficiency", Value: &m.Efficiency},
		{Name: "roa", Value: &m.ROA},
		{Name: "roab", Value: &m.ROAB},
		{Name: "roe", Value: &m.ROE},
		{Name: "debt_ratio", Value: &m.DebtRatio},
		{Name: "capital_ratio", Value: &m.CapitalRatio},
		{Name: "proprietary_ratio", Value: &m.ProprietaryRatio},
		{Name: "equity_per_total_debt_ratio", Value: &m.EquityPerTotalDebtRatio},
		{Name: "equity_per_total_non_current_asset_ratio", Value: &m.EquityPerTotalNonCurrentAssetRatio},
		{Name: "current_ratio", Value: &m.CurrentRatio},
		{Name: "instant_ratio", Value: &m.InstantRatio},
		{Name: "stock_turnover", Value: &m.StockTurnover},
		{Name: "gross_profit_margin", Value: &m.GrossProfitMargin},
		{Name: "profit_margin_ratio", Value: &m.ProfitMarginRatio},
		{Name: "salary_production_fee", Value: &m.SalaryProductionFee},
		{Name: "capital_to_asset_ratio", Value: &m.CapitalToAssetRatio},
		{Name: "accumulated_profit_to_asset_ratio", Value: &m.AccumulatedProfitToAssetRatio},
		{Name: "before_tax_profit_to_asset_ratio", Value: &m.BeforeTaxProfitToAssetRatio},
		{Name: "sale_to_asset_ratio", Value: &m.SaleToAssetRatio},
		{Name: "equity_to_debt_ratio", Value: &m.EquityToDebtRatio},
		{Name: "altman_bankruptcy_ratio", Value: &m.AltmanBankruptcyRatio},
	}
}

// Columns returns the metric column names in storage order.
func Columns() []string {
	var m Metrics
	refs := m.Fields()
	names := make([]string, len(refs))
	for i, ref := range refs {
		names[i] = ref.Name
	}
	return names
}

// Equal reports whether every metric of m equals the same metric of other.
func (m *Metrics) Equal(other *Metrics) bool {
	a, b := m.Fields(), other.Fields()
	for i := range a {
		if !a[i].Value.Equal(*b[i].Value) {
			return false
		}
	}
	return true
}
