package http

import (
	"context"
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

// crud is what the generic entity services and TransactionService share.
type crud[T any] interface {
	Kind() core.EntityKind
	List(ctx context.Context, req core.PageRequest) (core.Page[T], error)
	Get(ctx context.Context, id int64) (T, error)
	Create(ctx context.Context, item T) (T, error)
	Update(ctx context.Context, id int64, item T) (T, error)
	Delete(ctx context.Context, id int64) error
}

// resource erases T so the routes can be registered once for every kind.
type resource interface {
	list(ctx context.Context, req core.PageRequest) (listResult, error)
	get(ctx context.Context, id int64) (any, error)
	create(w http.ResponseWriter, r *http.Request) (any, error)
	update(w http.ResponseWriter, r *http.Request, id int64) (any, error)
	delete(ctx context.Context, id int64) error
}

type entityResource[T any] struct {
	svc crud[T]
	// blank returns the value request bodies are decoded into.
	blank func() T
}

func newResource[T any](svc crud[T]) *entityResource[T] {
	return &entityResource[T]{svc: svc, blank: func() T { return *new(T) }}
}

func (e *entityResource[T]) list(ctx context.Context, req core.PageRequest) (listResult, error) {
	page, err := e.svc.List(ctx, req)
	if err != nil {
		return listResult{}, err
	}
	return listResult{Success: true, Message: "ok", Items: page.Items, NextCursor: page.NextCursor, TotalCount: page.TotalCount}, nil
}

func (e *entityResource[T]) get(ctx context.Context, id int64) (any, error) {
	return e.svc.Get(ctx, id)
}

func (e *entityResource[T]) create(w http.ResponseWriter, r *http.Request) (any, error) {
	item := e.blank()
	if err := decodeJSON(w, r, &item); err != nil {
		return nil, err
	}
	return e.svc.Create(r.Context(), item)
}

func (e *entityResource[T]) update(w http.ResponseWriter, r *http.Request, id int64) (any, error) {
	item := e.blank()
	if err := decodeJSON(w, r, &item); err != nil {
		return nil, err
	}
	return e.svc.Update(r.Context(), id, item)
}

func (e *entityResource[T]) delete(ctx context.Context, id int64) error {
	return e.svc.Delete(ctx, id)
}

// newResources builds one resource per entity kind over the same store.
func newResources(repo *storage.SQLiteRepository, events services.EventPublisher) map[core.EntityKind]resource {
	recurring := newResource[core.RecurringExpense](services.NewRecurringExpenseService(repo, events))
	// templates are active unless the payload says otherwise
	recurring.blank = func() core.RecurringExpense { return core.RecurringExpense{IsActive: true} }

	return map[core.EntityKind]resource{
		core.CategoryEntity:         newResource[core.Category](services.NewCategoryService(repo, events)),
		core.TagEntity:              newResource[core.Tag](services.NewTagService(repo, events)),
		core.PaymentMethodEntity:    newResource[core.PaymentMethod](services.NewPaymentMethodService(repo, events)),
		core.FriendEntity:           newResource[core.Friend](services.NewFriendService(repo, events)),
		core.BudgetEntity:           newResource[core.Budget](services.NewBudgetService(repo, events)),
		core.RecurringExpenseEntity: recurring,
		core.TransactionEntity:      newResource[core.Transaction](services.NewTransactionService(repo, events)),
	}
}
