package core

import "github.com/shopspring/decimal"

// Budget status thresholds, in percent of the budgeted amount.
var (
	NearLimitPercent  = decimal.NewFromInt(80)
	OverBudgetPercent = decimal.NewFromInt(100)
)

// BudgetSpending is the spent-to-date view of one budget.
type BudgetSpending struct {
	BudgetID        int64           `json:"budgetId"`
	CategoryID      int64           `json:"categoryId"`
	StartDate       Date            `json:"startDate"`
	EndDate         Date            `json:"endDate"`
	Amount          decimal.Decimal `json:"amount"`
	SpentAmount     decimal.Decimal `json:"spentAmount"`
	PercentageUsed  decimal.Decimal `json:"percentageUsed"`
	RemainingAmount decimal.Decimal `json:"remainingAmount"`
	IsOverBudget    bool            `json:"isOverBudget"`
	IsNearLimit     bool            `json:"isNearLimit"`
}

// NewBudgetSpending derives the status of b given what was spent in its window.
//
// A zero budget amount reports 0% and neither flag. Exactly 100% is over
// budget; near limit is [80, 100).
func NewBudgetSpending(b Budget, spent decimal.Decimal) BudgetSpending {
	if spent.IsNegative() {
		spent = decimal.Zero
	}
	s := BudgetSpending{
		BudgetID:        b.ID,
		CategoryID:      b.CategoryID,
		StartDate:       b.StartDate,
		EndDate:         b.EndDate,
		Amount:          b.Amount,
		SpentAmount:     spent,
		PercentageUsed:  decimal.Zero,
		RemainingAmount: b.Amount.Sub(spent),
	}
	if !b.Amount.IsPositive() {
		return s
	}
	s.PercentageUsed = spent.Mul(hundred).Div(b.Amount)
	s.IsOverBudget = s.PercentageUsed.GreaterThanOrEqual(OverBudgetPercent)
	s.IsNearLimit = !s.IsOverBudget && s.PercentageUsed.GreaterThanOrEqual(NearLimitPercent)
	return s
}

// BudgetReport is a compact summary over a user's budgets.
type BudgetReport struct {
	TotalBudgeted decimal.Decimal  `json:"totalBudgeted"`
	TotalSpent    decimal.Decimal  `json:"totalSpent"`
	OverBudget    int              `json:"overBudget"`
	NearLimit     int              `json:"nearLimit"`
	Entries       []BudgetSpending `json:"entries"`
}

func NewBudgetReport(entries []BudgetSpending) BudgetReport {
	r := BudgetReport{TotalBudgeted: decimal.Zero, TotalSpent: decimal.Zero, Entries: entries}
	for _, e := range entries {
		r.TotalBudgeted = r.TotalBudgeted.Add(e.Amount)
		r.TotalSpent = r.TotalSpent.Add(e.SpentAmount)
		if e.IsOverBudget {
			r.OverBudget++
		}
		if e.IsNearLimit {
			r.NearLimit++
		}
	}
	return r
}
