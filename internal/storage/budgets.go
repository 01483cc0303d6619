package storage

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// spendingPredicate selects the participant rows that count against a budget:
// same owner, live parent transaction dated inside the window (inclusive),
// same category, expense type.
const spendingPredicate = `t.user_id = b.user_id
	AND t.is_deleted = 0
	AND t.date >= b.start_date AND t.date <= b.end_date
	AND p.category_id = b.category_id
	AND p.type = 'EXPENSE'`

// AllBudgets returns every budget of userID ordered by id.
func AllBudgets(ctx context.Context, db DBTX, userID int64) ([]core.Budget, error) {
	rows, err := db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM budgets t WHERE t.user_id = ? ORDER BY t.id", Budgets.selectList()), userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		b, err := Budgets.Scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate budgets: %w", err)
	}
	return out, nil
}

// SpentForBudget sums the qualifying participant amounts of one budget.
func SpentForBudget(ctx context.Context, db DBTX, userID, budgetID int64) (decimal.Decimal, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT p.amount
		FROM budgets b
		JOIN transaction_participants p ON p.category_id = b.category_id
		JOIN transactions t ON t.id = p.transaction_id
		WHERE `+spendingPredicate+` AND b.id = ? AND b.user_id = ?`, budgetID, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("query budget spending: %w", err)
	}
	defer rows.Close()

	var amounts []decimal.Decimal
	for rows.Next() {
		var a decimal.Decimal
		if err := rows.Scan(&a); err != nil {
			return decimal.Zero, fmt.Errorf("scan spending row: %w", err)
		}
		amounts = append(amounts, a)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("iterate spending rows: %w", err)
	}
	return core.SumAmounts(amounts...), nil
}

// SpentByBudget sums qualifying participant amounts for all budgets of userID
// in one query. Budgets with no spending are absent from the map.
func SpentByBudget(ctx context.Context, db DBTX, userID int64) (map[int64]decimal.Decimal, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT b.id, p.amount
		FROM budgets b
		JOIN transaction_participants p ON p.category_id = b.category_id
		JOIN transactions t ON t.id = p.transaction_id
		WHERE `+spendingPredicate+` AND b.user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query budget spending: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]decimal.Decimal)
	for rows.Next() {
		var budgetID int64
		var a decimal.Decimal
		if err := rows.Scan(&budgetID, &a); err != nil {
			return nil, fmt.Errorf("scan spending row: %w", err)
		}
		out[budgetID] = out[budgetID].Add(a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spending rows: %w", err)
	}
	return out, nil
}
