package services

import (
	"context"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// SpendingService computes how much of each budget has been spent.
//
// Spending runs one aggregate query for all budgets; SpendingLazy runs one
// query per budget. Both return the same entries in budget id order.
type SpendingService struct {
	repo *storage.SQLiteRepository
}

func NewSpendingService(repo *storage.SQLiteRepository) *SpendingService {
	return &SpendingService{repo: repo}
}

func (s *SpendingService) Spending(ctx context.Context) ([]core.BudgetSpending, error) {
	userID, err := core.UserIDFrom(ctx)
	if err != nil {
		return nil, err
	}
	budgets, err := storage.AllBudgets(ctx, s.repo.DB(), userID)
	if err != nil {
		return nil, err
	}
	spent, err := storage.SpentByBudget(ctx, s.repo.DB(), userID)
	if err != nil {
		return nil, err
	}

	out := make([]core.BudgetSpending, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, core.NewBudgetSpending(b, spent[b.ID]))
	}
	return out, nil
}

func (s *SpendingService) SpendingLazy(ctx context.Context) ([]core.BudgetSpending, error) {
	userID, err := core.UserIDFrom(ctx)
	if err != nil {
		return nil, err
	}
	budgets, err := storage.AllBudgets(ctx, s.repo.DB(), userID)
	if err != nil {
		return nil, err
	}

	out := make([]core.BudgetSpending, 0, len(budgets))
	for _, b := range budgets {
		spent, err := storage.SpentForBudget(ctx, s.repo.DB(), userID, b.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, core.NewBudgetSpending(b, spent))
	}
	return out, nil
}

// Report summarises Spending for the caller.
func (s *SpendingService) Report(ctx context.Context) (core.BudgetReport, error) {
	entries, err := s.Spending(ctx)
	if err != nil {
		return core.BudgetReport{}, err
	}
	return core.NewBudgetReport(entries), nil
}
