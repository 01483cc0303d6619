package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/storage"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.EntityEvent
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, ev *amqp.EntityEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) ops() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = string(ev.Kind) + ":" + string(ev.Op)
	}
	return out
}

type testEnv struct {
	repo   *storage.SQLiteRepository
	events *recordingPublisher
	ctx    context.Context
	userID int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "services.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	repo.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})

	user, err := repo.CreateUser(context.Background(), "owner@example.com", "Owner", "owner-token")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return &testEnv{
		repo:   repo,
		events: &recordingPublisher{},
		ctx:    core.WithUserID(context.Background(), user.ID),
		userID: user.ID,
	}
}

// otherUser returns a context for a second, unrelated user.
func (e *testEnv) otherUser(t *testing.T) context.Context {
	t.Helper()
	user, err := e.repo.CreateUser(context.Background(), "other@example.com", "Other", "other-token")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return core.WithUserID(context.Background(), user.ID)
}

func (e *testEnv) category(t *testing.T, name string, typ core.TransactionType) core.Category {
	t.Helper()
	c, err := NewCategoryService(e.repo, nil).Create(e.ctx, core.Category{Name: name, Type: typ})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	return c
}

func (e *testEnv) paymentMethod(t *testing.T, name string) core.PaymentMethod {
	t.Helper()
	p, err := NewPaymentMethodService(e.repo, nil).Create(e.ctx, core.PaymentMethod{Name: name})
	if err != nil {
		t.Fatalf("create payment method: %v", err)
	}
	return p
}

func TestEntity_RequiresIdentity(t *testing.T) {
	env := newTestEnv(t)
	svc := NewCategoryService(env.repo, env.events)
	anon := context.Background()

	if _, err := svc.List(anon, core.PageRequest{PageSize: 10}); !errors.Is(err, core.ErrUnauthenticated) {
		t.Errorf("List() error = %v, want unauthenticated", err)
	}
	if _, err := svc.Create(anon, core.Category{Name: "x", Type: core.Expense}); !errors.Is(err, core.ErrUnauthenticated) {
		t.Errorf("Create() error = %v, want unauthenticated", err)
	}
	if err := svc.Delete(anon, 1); !errors.Is(err, core.ErrUnauthenticated) {
		t.Errorf("Delete() error = %v, want unauthenticated", err)
	}
	if len(env.events.ops()) != 0 {
		t.Errorf("no events expected, got %v", env.events.ops())
	}
}

func TestEntity_CreateNormalizesAndPublishes(t *testing.T) {
	env := newTestEnv(t)
	svc := NewCategoryService(env.repo, env.events)

	c, err := svc.Create(env.ctx, core.Category{Name: "  Groceries ", Type: "expense"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if c.ID == 0 || c.Name != "Groceries" || c.Type != core.Expense {
		t.Errorf("Create() = %+v", c)
	}
	if c.CreatedAt.IsZero() || !c.CreatedAt.Equal(c.UpdatedAt) {
		t.Errorf("timestamps = %v / %v", c.CreatedAt, c.UpdatedAt)
	}
	if got := env.events.ops(); len(got) != 1 || got[0] != "categories:create" {
		t.Errorf("events = %v", got)
	}
}

func TestEntity_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)
	categories := NewCategoryService(env.repo, env.events)
	budgets := NewBudgetService(env.repo, env.events)
	food := env.category(t, "Food", core.Expense)

	tests := []struct {
		name    string
		create  func() error
		message string
	}{
		{
			name:    "blank name",
			create:  func() error { _, err := categories.Create(env.ctx, core.Category{Name: "   ", Type: core.Expense}); return err },
			message: "name is required",
		},
		{
			name:    "bad type",
			create:  func() error { _, err := categories.Create(env.ctx, core.Category{Name: "x", Type: "TRANSFER"}); return err },
			message: "type must be INCOME or EXPENSE",
		},
		{
			name: "zero budget amount",
			create: func() error {
				_, err := budgets.Create(env.ctx, core.Budget{CategoryID: food.ID, Amount: decimal.Zero,
					StartDate: core.NewDate(2024, 5, 1), EndDate: core.NewDate(2024, 5, 31)})
				return err
			},
			message: "amount must be greater than zero",
		},
		{
			name: "budget end before start",
			create: func() error {
				_, err := budgets.Create(env.ctx, core.Budget{CategoryID: food.ID, Amount: decimal.NewFromInt(10),
					StartDate: core.NewDate(2024, 5, 31), EndDate: core.NewDate(2024, 5, 1)})
				return err
			},
			message: "end date must be after start date",
		},
		{
			name: "budget on unknown category",
			create: func() error {
				_, err := budgets.Create(env.ctx, core.Budget{CategoryID: food.ID + 100, Amount: decimal.NewFromInt(10),
					StartDate: core.NewDate(2024, 5, 1), EndDate: core.NewDate(2024, 5, 31)})
				return err
			},
			message: "categoryId",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.create()
			if !errors.Is(err, core.ErrInvalidArgument) {
				t.Fatalf("error = %v, want invalid argument", err)
			}
			if !strings.Contains(core.MessageOf(err), tt.message) {
				t.Errorf("message = %q, want it to contain %q", core.MessageOf(err), tt.message)
			}
		})
	}
}

func TestEntity_UniquenessIsPerUser(t *testing.T) {
	env := newTestEnv(t)
	svc := NewCategoryService(env.repo, env.events)
	other := env.otherUser(t)

	if _, err := svc.Create(env.ctx, core.Category{Name: "Food", Type: core.Expense}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.Create(env.ctx, core.Category{Name: "Food", Type: core.Expense}); !errors.Is(err, core.ErrConflict) {
		t.Errorf("duplicate Create() error = %v, want conflict", err)
	}
	// Same name with the other type is a different category
	if _, err := svc.Create(env.ctx, core.Category{Name: "Food", Type: core.Income}); err != nil {
		t.Errorf("Create() with other type error = %v", err)
	}
	if _, err := svc.Create(other, core.Category{Name: "Food", Type: core.Expense}); err != nil {
		t.Errorf("Create() for other user error = %v", err)
	}
}

func TestEntity_UpdateOwnershipAndConflicts(t *testing.T) {
	env := newTestEnv(t)
	svc := NewTagService(env.repo, env.events)
	other := env.otherUser(t)

	trip, err := svc.Create(env.ctx, core.Tag{Name: "trip"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	work, err := svc.Create(env.ctx, core.Tag{Name: "work"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := svc.Update(other, trip.ID, core.Tag{Name: "stolen"}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Update() by other user error = %v, want not found", err)
	}
	if _, err := svc.Update(env.ctx, trip.ID, core.Tag{Name: "work"}); !errors.Is(err, core.ErrConflict) {
		t.Errorf("Update() to taken name error = %v, want conflict", err)
	}
	// Renaming to its own name is not a conflict
	updated, err := svc.Update(env.ctx, work.ID, core.Tag{Name: " work ", Color: "#fff"})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Color != "#fff" || !updated.UpdatedAt.After(updated.CreatedAt) {
		t.Errorf("Update() = %+v", updated)
	}
}

func TestEntity_DeleteBlockedByReferences(t *testing.T) {
	env := newTestEnv(t)
	categories := NewCategoryService(env.repo, env.events)
	budgets := NewBudgetService(env.repo, env.events)
	food := env.category(t, "Food", core.Expense)
	spare := env.category(t, "Spare", core.Expense)

	if _, err := budgets.Create(env.ctx, core.Budget{CategoryID: food.ID, Amount: decimal.NewFromInt(100),
		StartDate: core.NewDate(2024, 5, 1), EndDate: core.NewDate(2024, 5, 31)}); err != nil {
		t.Fatalf("create budget: %v", err)
	}

	err := categories.Delete(env.ctx, food.ID)
	if !errors.Is(err, core.ErrConflict) {
		t.Fatalf("Delete() error = %v, want conflict", err)
	}
	if !strings.Contains(core.MessageOf(err), "used by 1 budgets") {
		t.Errorf("message = %q", core.MessageOf(err))
	}
	if _, err := categories.Get(env.ctx, food.ID); err != nil {
		t.Errorf("referenced category should survive: %v", err)
	}

	if err := categories.Delete(env.ctx, spare.ID); err != nil {
		t.Fatalf("Delete() unreferenced error = %v", err)
	}
	if err := categories.Delete(env.ctx, spare.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want not found", err)
	}
}

func TestEntity_PublishFailureDoesNotFailWrite(t *testing.T) {
	env := newTestEnv(t)
	env.events.err = errors.New("broker down")
	svc := NewFriendService(env.repo, env.events)

	f, err := svc.Create(env.ctx, core.Friend{Name: "Sam", Email: "sam@example.com"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.Get(env.ctx, f.ID); err != nil {
		t.Errorf("Get() error = %v", err)
	}
}

func TestRecurringExpense_UpdateKeepsLastRun(t *testing.T) {
	env := newTestEnv(t)
	svc := NewRecurringExpenseService(env.repo, env.events)
	cat := env.category(t, "Rent", core.Expense)
	pm := env.paymentMethod(t, "Bank")

	re, err := svc.Create(env.ctx, core.RecurringExpense{
		Name: "Rent", Amount: decimal.RequireFromString("900.004"), Frequency: "Monthly",
		CategoryID: cat.ID, PaymentMethodID: pm.ID, StartDate: core.NewDate(2024, 1, 1), IsActive: true,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if re.Frequency != core.Monthly || !re.Amount.Equal(decimal.NewFromInt(900)) {
		t.Errorf("Create() = %+v", re)
	}
	if err := storage.MarkRecurringRun(env.ctx, env.repo.DB(), re.ID, core.NewDate(2024, 2, 1), env.repo.Now().UnixNano()); err != nil {
		t.Fatalf("MarkRecurringRun() error = %v", err)
	}

	re.Name = "Rent (new flat)"
	re.LastRunDate = core.Date{}
	updated, err := svc.Update(env.ctx, re.ID, re)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.LastRunDate.String() != "2024-02-01" {
		t.Errorf("LastRunDate = %q, want 2024-02-01", updated.LastRunDate.String())
	}
}
