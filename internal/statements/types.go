package statements

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies one of the four sub-statements a period may carry.
type Kind string

const (
	KindBalance         Kind = "balance_report"
	KindProfitLoss      Kind = "profit_loss_statement"
	KindSoldProductFee  Kind = "sold_product_fee_statement"
	KindAccountTurnover Kind = "account_turnover_statement"
)

// Kinds lists every statement kind in storage order.
var Kinds = []Kind{KindBalance, KindProfitLoss, KindSoldProductFee, KindAccountTurnover}

// ParseKind accepts the table-style name of a statement kind
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown statement kind %q", s)
}

// Period is one filing period of a company (financial_assets row)
type Period struct {
	ID          string    `json:"id"`
	CompanyID   string    `json:"company_id"`
	Year        int       `json:"year"`
	Month       *int      `json:"month,omitempty"` // nil for yearly filings
	IsTaxRecord bool      `json:"is_tax_record"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SeriesKey returns the (company, series type) pair the period belongs to.
func (p Period) SeriesKey() SeriesKey {
	return SeriesKey{CompanyID: p.CompanyID, IsTaxRecord: p.IsTaxRecord}
}

// Ordinal orders periods inside a series. A yearly period sorts before the
// months of the same year.
func (p Period) Ordinal() int {
	month := 0
	if p.Month != nil {
		month = *p.Month
	}
	return p.Year*100 + month
}

// Label is a human readable form of the period, e.g. "1402" or "1402-05".
func (p Period) Label() string {
	if p.Month == nil {
		return fmt.Sprintf("%d", p.Year)
	}
	return fmt.Sprintf("%d-%02d", p.Year, *p.Month)
}

// SeriesKey identifies a series: all periods of one company restricted to
// one is_tax_record value.
type SeriesKey struct {
	CompanyID   string `json:"company_id"`
	IsTaxRecord bool   `json:"is_tax_record"`
}

func (k SeriesKey) String() string {
	return fmt.Sprintf("%s/%s", k.CompanyID, k.SeriesName())
}

// SeriesName is "tax" or "monthly".
func (k SeriesKey) SeriesName() string {
	if k.IsTaxRecord {
		return "tax"
	}
	return "monthly"
}

// ParseSeriesName is the inverse of SeriesKey.SeriesName.
func ParseSeriesName(s string) (bool, error) {
	switch s {
	case "tax":
		return true, nil
	case "monthly", "":
		return false, nil
	}
	return false, fmt.Errorf("unknown series %q (want tax or monthly)", s)
}

// PeriodInput is one entry of the ordered series handed to the engine.
type PeriodInput struct {
	Period     Period       `json:"period"`
	Statements StatementSet `json:"statements"`
}

// FieldRef binds a column name to the decimal it is stored in.
type FieldRef struct {
	Name  string
	Value *decimal.Decimal
}

// Statement is implemented by the four sub-statement types.
type Statement interface {
	Kind() Kind
	Fields() []FieldRef
}

// NewStatement returns an empty statement of the given kind.
func NewStatement(kind Kind) (Statement, error) {
	switch kind {
	case KindBalance:
		return &BalanceReport{}, nil
	case KindProfitLoss:
		return &ProfitLossStatement{}, nil
	case KindSoldProductFee:
		return &SoldProductFeeStatement{}, nil
	case KindAccountTurnover:
		return &AccountTurnoverStatement{}, nil
	}
	return nil, fmt.Errorf("unknown statement kind %q", kind)
}

// Columns returns the field names of a statement kind in storage order.
func Columns(kind Kind) []string {
	stmt, err := NewStatement(kind)
	if err != nil {
		return nil
	}
	refs := stmt.Fields()
	names := make([]string, len(refs))
	for i, ref := range refs {
		names[i] = ref.Name
	}
	return names
}
