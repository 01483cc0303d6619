package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

func TestRecurringProcessor_ProcessDue(t *testing.T) {
	env := newTestEnv(t)
	rent := env.category(t, "Rent", core.Expense)
	bank := env.paymentMethod(t, "Bank")
	recurring := NewRecurringExpenseService(env.repo, nil)
	txs := NewTransactionService(env.repo, env.events)
	processor := NewRecurringProcessor(env.repo, txs)

	monthly, err := recurring.Create(env.ctx, core.RecurringExpense{
		Name: "Rent", Amount: decimal.NewFromInt(900), Frequency: core.Monthly,
		CategoryID: rent.ID, PaymentMethodID: bank.ID, StartDate: core.NewDate(2024, 1, 31), IsActive: true,
	})
	if err != nil {
		t.Fatalf("create recurring: %v", err)
	}
	ending, err := recurring.Create(env.ctx, core.RecurringExpense{
		Name: "Gym", Amount: decimal.NewFromInt(10), Frequency: core.Weekly,
		CategoryID: rent.ID, PaymentMethodID: bank.ID,
		StartDate: core.NewDate(2024, 3, 1), EndDate: core.NewDate(2024, 3, 10), IsActive: true,
	})
	if err != nil {
		t.Fatalf("create recurring: %v", err)
	}
	if _, err := recurring.Create(env.ctx, core.RecurringExpense{
		Name: "Paused", Amount: decimal.NewFromInt(5), Frequency: core.Daily,
		CategoryID: rent.ID, PaymentMethodID: bank.ID, StartDate: core.NewDate(2024, 1, 1), IsActive: false,
	}); err != nil {
		t.Fatalf("create recurring: %v", err)
	}

	now := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	created, err := processor.ProcessDue(env.ctx, now)
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	// Rent: Jan 31, Feb 29, Mar 31. Gym: Mar 1, Mar 8.
	if created != 5 {
		t.Errorf("created = %d, want 5", created)
	}

	page, err := txs.List(env.ctx, core.PageRequest{PageSize: 50, Filters: map[string]string{"from": "2024-01-01"}})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	dates := map[string]bool{}
	for _, tx := range page.Items {
		dates[tx.Date.String()+" "+tx.Description] = true
		if tx.RecurringExpenseID == nil {
			t.Errorf("transaction %d has no template link", tx.ID)
		}
	}
	for _, want := range []string{"2024-01-31 Rent", "2024-02-29 Rent", "2024-03-31 Rent", "2024-03-01 Gym", "2024-03-08 Gym"} {
		if !dates[want] {
			t.Errorf("missing occurrence %s; got %v", want, dates)
		}
	}

	gotMonthly, err := recurring.Get(env.ctx, monthly.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if gotMonthly.LastRunDate.String() != "2024-03-31" || !gotMonthly.IsActive {
		t.Errorf("monthly after run = %+v", gotMonthly)
	}
	gotEnding, err := recurring.Get(env.ctx, ending.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if gotEnding.IsActive {
		t.Error("template past its end date should be deactivated")
	}

	// A second run on the same day is a no-op
	again, err := processor.ProcessDue(env.ctx, now)
	if err != nil {
		t.Fatalf("second ProcessDue() error = %v", err)
	}
	if again != 0 {
		t.Errorf("second run created %d, want 0", again)
	}
}

func TestRecurringProcessor_NotInitialized(t *testing.T) {
	p := NewRecurringProcessor(nil, nil)
	if _, err := p.ProcessDue(context.Background(), time.Now()); err == nil {
		t.Error("ProcessDue() should fail without storage")
	}
}

func TestRecurringProcessor_FailedMarkStoresNothing(t *testing.T) {
	env := newTestEnv(t)
	rent := env.category(t, "Rent", core.Expense)
	bank := env.paymentMethod(t, "Bank")
	recurring := NewRecurringExpenseService(env.repo, nil)
	txs := NewTransactionService(env.repo, env.events)
	processor := NewRecurringProcessor(env.repo, txs)

	template, err := recurring.Create(env.ctx, core.RecurringExpense{
		Name: "Rent", Amount: decimal.NewFromInt(900), Frequency: core.Monthly,
		CategoryID: rent.ID, PaymentMethodID: bank.ID, StartDate: core.NewDate(2024, 1, 31), IsActive: true,
	})
	if err != nil {
		t.Fatalf("create recurring: %v", err)
	}

	processor.markRun = func(context.Context, storage.DBTX, int64, core.Date, int64) error {
		return errors.New("database is locked")
	}
	now := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	created, err := processor.ProcessDue(env.ctx, now)
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if created != 0 {
		t.Errorf("created = %d, want 0 when the run cannot be recorded", created)
	}
	page, err := txs.List(env.ctx, core.PageRequest{PageSize: 50})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.TotalCount != 0 {
		t.Errorf("stored %d transactions, want none", page.TotalCount)
	}
	if ops := env.events.ops(); len(ops) != 0 {
		t.Errorf("published %v, want nothing", ops)
	}

	processor.markRun = storage.MarkRecurringRun
	created, err = processor.ProcessDue(env.ctx, now)
	if err != nil {
		t.Fatalf("retry ProcessDue() error = %v", err)
	}
	page, err = txs.List(env.ctx, core.PageRequest{PageSize: 50})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if created != 3 || page.TotalCount != 3 {
		t.Errorf("retry created %d, stored %d; want 3 each", created, page.TotalCount)
	}
	got, err := recurring.Get(env.ctx, template.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.LastRunDate.String() != "2024-03-31" {
		t.Errorf("LastRunDate = %q, want 2024-03-31", got.LastRunDate.String())
	}
}
