package storage

import (
	"context"
	"fmt"

	"fintrack/internal/core"
)

// ActiveRecurringExpenses returns every active template across users whose
// start date is on or before day.
func ActiveRecurringExpenses(ctx context.Context, db DBTX, day core.Date) ([]core.RecurringExpense, error) {
	rows, err := db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM recurring_expenses t WHERE t.is_active = 1 AND t.start_date <= ? ORDER BY t.id",
			RecurringExpenses.selectList()), day.String())
	if err != nil {
		return nil, fmt.Errorf("list active recurring expenses: %w", err)
	}
	defer rows.Close()

	var out []core.RecurringExpense
	for rows.Next() {
		re, err := scanRecurring(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring expense: %w", err)
		}
		out = append(out, re)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recurring expenses: %w", err)
	}
	return out, nil
}

// MarkRecurringRun records the last occurrence materialized for a template.
func MarkRecurringRun(ctx context.Context, db DBTX, id int64, day core.Date, nowNanos int64) error {
	res, err := db.ExecContext(ctx,
		"UPDATE recurring_expenses SET last_run_date = ?, updated_at = ? WHERE id = ?",
		day.String(), nowNanos, id)
	if err != nil {
		return fmt.Errorf("mark recurring run: %w", err)
	}
	return requireAffected(res, "recurring expense")
}

// DeactivateRecurring turns off a template that has passed its end date.
func DeactivateRecurring(ctx context.Context, db DBTX, id int64, nowNanos int64) error {
	res, err := db.ExecContext(ctx,
		"UPDATE recurring_expenses SET is_active = 0, updated_at = ? WHERE id = ?", nowNanos, id)
	if err != nil {
		return fmt.Errorf("deactivate recurring expense: %w", err)
	}
	return requireAffected(res, "recurring expense")
}
