package statements

import "github.com/shopspring/decimal"

// Field names shared by storage, extraction and the ratio calculator.
const (
	// Balance report
	FieldTotalCurrentAsset                 = "total_current_asset"
	FieldTotalNonCurrentAsset              = "total_non_current_asset"
	FieldTotalCurrentDebt                  = "total_current_debt"
	FieldTotalNonCurrentDebt               = "total_non_current_debt"
	FieldOwnershipRightTotal               = "ownership_right_total"
	FieldNetSale                           = "net_sale"
	FieldNetProfit                         = "net_profit"
	FieldFirstPeriodInventory              = "first_period_inventory"
	FieldEndPeriodInventory                = "end_period_inventory"
	FieldAccumulatedProfitLoss             = "accumulated_profit_loss"
	FieldTradePayable                      = "trade_payable"
	FieldAdvance                           = "advance"
	FieldReserves                          = "reserves"
	FieldLongTermPayable                   = "long_term_payable"
	FieldEmployeeTerminationBenefitReserve = "employee_termination_benefit_reserve"

	// Profit-loss statement
	FieldOperationalProfit        = "operational_profit"
	FieldGrossProfit              = "gross_profit"
	FieldSalaryFee                = "salary_fee"
	FieldProfitAfterTax           = "profit_after_tax"
	FieldProceedProfit            = "proceed_profit"
	FieldOperationalIncome        = "operational_income"
	FieldOperationalIncomeExpense = "operational_income_expense"
	FieldMarketingFee             = "marketing_fee"

	// Sold-product-fee statement
	FieldConsumingMaterial     = "consuming_material"
	FieldConstructionOverhead  = "construction_overhead"
	FieldProductionTotalPrice  = "production_total_price"
	FieldDirectWage            = "direct_wage"
	FieldSoldProductTotalPrice = "sold_product_total_price"

	// Account-turnover statement
	FieldEndYearAccumulatedProfit = "end_year_accumulated_profit"
)

// BalanceReport is the balance sheet of a period
type BalanceReport struct {
	TotalCurrentAsset                 decimal.Decimal `json:"total_current_asset"`
	TotalNonCurrentAsset              decimal.Decimal `json:"total_non_current_asset"`
	TotalCurrentDebt                  decimal.Decimal `json:"total_current_debt"`
	TotalNonCurrentDebt               decimal.Decimal `json:"total_non_current_debt"`
	OwnershipRightTotal               decimal.Decimal `json:"ownership_right_total"` // total equity
	NetSale                           decimal.Decimal `json:"net_sale"`
	NetProfit                         decimal.Decimal `json:"net_profit"`
	FirstPeriodInventory              decimal.Decimal `json:"first_period_inventory"`
	EndPeriodInventory                decimal.Decimal `json:"end_period_inventory"`
	AccumulatedProfitLoss             decimal.Decimal `json:"accumulated_profit_loss"`
	TradePayable                      decimal.Decimal `json:"trade_payable"`
	Advance                           decimal.Decimal `json:"advance"`
	Reserves                          decimal.Decimal `json:"reserves"`
	LongTermPayable                   decimal.Decimal `json:"long_term_payable"`
	EmployeeTerminationBenefitReserve decimal.Decimal `json:"employee_termination_benefit_reserve"`
}

func (b *BalanceReport) Kind() Kind { return KindBalance }

func (b *BalanceReport) Fields() []FieldRef {
	return []FieldRef{
		{FieldTotalCurrentAsset, &b.TotalCurrentAsset},
		{FieldTotalNonCurrentAsset, &b.TotalNonCurrentAsset},
		{FieldTotalCurrentDebt, &b.TotalCurrentDebt},
		{FieldTotalNonCurrentDebt, &b.TotalNonCurrentDebt},
		{FieldOwnershipRightTotal, &b.OwnershipRightTotal},
		{FieldNetSale, &b.NetSale},
		{FieldNetProfit, &b.NetProfit},
		{FieldFirstPeriodInventory, &b.FirstPeriodInventory},
		{FieldEndPeriodInventory, &b.EndPeriodInventory},
		{FieldAccumulatedProfitLoss, &b.AccumulatedProfitLoss},
		{FieldTradePayable, &b.TradePayable},
		{FieldAdvance, &b.Advance},
		{FieldReserves, &b.Reserves},
		{FieldLongTermPayable, &b.LongTermPayable},
		{FieldEmployeeTerminationBenefitReserve, &b.EmployeeTerminationBenefitReserve},
	}
}

// ProfitLossStatement is the income statement of a period
type ProfitLossStatement struct {
	OperationalProfit        decimal.Decimal `json:"operational_profit"`
	GrossProfit              decimal.Decimal `json:"gross_profit"`
	SalaryFee                decimal.Decimal `json:"salary_fee"`
	ProfitAfterTax           decimal.Decimal `json:"profit_after_tax"`
	ProceedProfit            decimal.Decimal `json:"proceed_profit"` // profit before tax
	OperationalIncome        decimal.Decimal `json:"operational_income"`
	OperationalIncomeExpense decimal.Decimal `json:"operational_income_expense"`
	MarketingFee             decimal.Decimal `json:"marketing_fee"`
}

func (p *ProfitLossStatement) Kind() Kind { return KindProfitLoss }

func (p *ProfitLossStatement) Fields() []FieldRef {
	return []FieldRef{
		{FieldOperationalProfit, &p.OperationalProfit},
		{FieldGrossProfit, &p.GrossProfit},
		{FieldSalaryFee, &p.SalaryFee},
		{FieldProfitAfterTax, &p.ProfitAfterTax},
		{FieldProceedProfit, &p.ProceedProfit},
		{FieldOperationalIncome, &p.OperationalIncome},
		{FieldOperationalIncomeExpense, &p.OperationalIncomeExpense},
		{FieldMarketingFee, &p.MarketingFee},
	}
}

// SoldProductFeeStatement is the cost of goods sold breakdown
type SoldProductFeeStatement struct {
	ConsumingMaterial     decimal.Decimal `json:"consuming_material"`
	ConstructionOverhead  decimal.Decimal `json:"construction_overhead"`
	ProductionTotalPrice  decimal.Decimal `json:"production_total_price"`
	DirectWage            decimal.Decimal `json:"direct_wage"`
	SoldProductTotalPrice decimal.Decimal `json:"sold_product_total_price"`
}

func (s *SoldProductFeeStatement) Kind() Kind { return KindSoldProductFee }

func (s *SoldProductFeeStatement) Fields() []FieldRef {
	return []FieldRef{
		{FieldConsumingMaterial, &s.ConsumingMaterial},
		{FieldConstructionOverhead, &s.ConstructionOverhead},
		{FieldProductionTotalPrice, &s.ProductionTotalPrice},
		{FieldDirectWage, &s.DirectWage},
		{FieldSoldProductTotalPrice, &s.SoldProductTotalPrice},
	}
}

// AccountTurnoverStatement carries the year-end retained earnings
type AccountTurnoverStatement struct {
	EndYearAccumulatedProfit decimal.Decimal `json:"end_year_accumulated_profit"`
}

func (a *AccountTurnoverStatement) Kind() Kind { return KindAccountTurnover }

func (a *AccountTurnoverStatement) Fields() []FieldRef {
	return []FieldRef{
		{FieldEndYearAccumulatedProfit, &a.EndYearAccumulatedProfit},
	}
}

// StatementSet holds the zero-or-one sub-statements of a period.
type StatementSet struct {
	Balance         *BalanceReport            `json:"balance,omitempty"`
	ProfitLoss      *ProfitLossStatement      `json:"profit_loss,omitempty"`
	SoldProductFee  *SoldProductFeeStatement  `json:"sold_product_fee,omitempty"`
	AccountTurnover *AccountTurnoverStatement `json:"account_turnover,omitempty"`
}

// Get returns the statement of the given kind, or nil when absent.
func (s *StatementSet) Get(kind Kind) Statement {
	switch kind {
	case KindBalance:
		if s.Balance != nil {
			return s.Balance
		}
	case KindProfitLoss:
		if s.ProfitLoss != nil {
			return s.ProfitLoss
		}
	case KindSoldProductFee:
		if s.SoldProductFee != nil {
			return s.SoldProductFee
		}
	case KindAccountTurnover:
		if s.AccountTurnover != nil {
			return s.AccountTurnover
		}
	}
	return nil
}

// Put stores stmt in the slot for its kind, replacing any previous value.
func (s *StatementSet) Put(stmt Statement) {
	switch v := stmt.(type) {
	case *BalanceReport:
		s.Balance = v
	case *ProfitLossStatement:
		s.ProfitLoss = v
	case *SoldProductFeeStatement:
		s.SoldProductFee = v
	case *AccountTurnoverStatement:
		s.AccountTurnover = v
	}
}
