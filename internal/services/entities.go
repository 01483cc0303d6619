package services

import (
	"fmt"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

func NewCategoryService(repo *storage.SQLiteRepository, events EventPublisher) *Entity[core.Category] {
	return NewEntity(repo, events, Policy[core.Category]{
		Kind:     core.CategoryEntity,
		Table:    storage.Categories,
		Prepare:  (*core.Category).Normalize,
		Validate: core.Category.Validate,
		Unique: func(c core.Category) *UniqueKey {
			return &UniqueKey{
				Columns: map[string]any{"name": c.Name, "type": string(c.Type)},
				Message: fmt.Sprintf("a %s category named %q already exists", c.Type, c.Name),
			}
		},
	})
}

func NewTagService(repo *storage.SQLiteRepository, events EventPublisher) *Entity[core.Tag] {
	return NewEntity(repo, events, Policy[core.Tag]{
		Kind:     core.TagEntity,
		Table:    storage.Tags,
		Prepare:  (*core.Tag).Normalize,
		Validate: core.Tag.Validate,
		Unique: func(t core.Tag) *UniqueKey {
			return &UniqueKey{
				Columns: map[string]any{"name": t.Name},
				Message: fmt.Sprintf("a tag named %q already exists", t.Name),
			}
		},
	})
}

func NewPaymentMethodService(repo *storage.SQLiteRepository, events EventPublisher) *Entity[core.PaymentMethod] {
	return NewEntity(repo, events, Policy[core.PaymentMethod]{
		Kind:     core.PaymentMethodEntity,
		Table:    storage.PaymentMethods,
		Prepare:  (*core.PaymentMethod).Normalize,
		Validate: core.PaymentMethod.Validate,
		Unique: func(p core.PaymentMethod) *UniqueKey {
			return &UniqueKey{
				Columns: map[string]any{"name": p.Name},
				Message: fmt.Sprintf("a payment method named %q already exists", p.Name),
			}
		},
	})
}

func NewFriendService(repo *storage.SQLiteRepository, events EventPublisher) *Entity[core.Friend] {
	return NewEntity(repo, events, Policy[core.Friend]{
		Kind:     core.FriendEntity,
		Table:    storage.Friends,
		Prepare:  (*core.Friend).Normalize,
		Validate: core.Friend.Validate,
		Unique: func(f core.Friend) *UniqueKey {
			return &UniqueKey{
				Columns: map[string]any{"name": f.Name},
				Message: fmt.Sprintf("a friend named %q already exists", f.Name),
			}
		},
	})
}

// NewBudgetService guards budgets; overlapping budgets on one category are allowed.
func NewBudgetService(repo *storage.SQLiteRepository, events EventPublisher) *Entity[core.Budget] {
	return NewEntity(repo, events, Policy[core.Budget]{
		Kind:     core.BudgetEntity,
		Table:    storage.Budgets,
		Prepare:  prepareBudget,
		Validate: core.Budget.Validate,
		Refs: func(b core.Budget) []OwnedRef {
			return []OwnedRef{{Field: "categoryId", Table: storage.Categories, IDs: []int64{b.CategoryID}}}
		},
	})
}

func prepareBudget(b *core.Budget) {
	b.Normalize()
	b.Amount = core.RoundAmount(b.Amount)
}

func NewRecurringExpenseService(repo *storage.SQLiteRepository, events EventPublisher) *Entity[core.RecurringExpense] {
	return NewEntity(repo, events, Policy[core.RecurringExpense]{
		Kind:  core.RecurringExpenseEntity,
		Table: storage.RecurringExpenses,
		Prepare: func(re *core.RecurringExpense) {
			re.Normalize()
			re.Amount = core.RoundAmount(re.Amount)
		},
		Validate: core.RecurringExpense.Validate,
		Refs: func(re core.RecurringExpense) []OwnedRef {
			return []OwnedRef{
				{Field: "categoryId", Table: storage.Categories, IDs: []int64{re.CategoryID}},
				{Field: "paymentMethodId", Table: storage.PaymentMethods, IDs: []int64{re.PaymentMethodID}},
			}
		},
		// last run is owned by the processor
		Merge: func(stored core.RecurringExpense, incoming *core.RecurringExpense) {
			incoming.LastRunDate = stored.LastRunDate
		},
	})
}
