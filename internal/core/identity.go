package core

import "context"

// EntityKind names an owned collection. The values double as URL segments
// and event kinds.
type EntityKind string

const (
	CategoryEntity         EntityKind = "categories"
	TagEntity              EntityKind = "tags"
	PaymentMethodEntity    EntityKind = "payment-methods"
	FriendEntity           EntityKind = "friends"
	BudgetEntity           EntityKind = "budgets"
	RecurringExpenseEntity EntityKind = "recurring-expenses"
	TransactionEntity      EntityKind = "transactions"
)

// EntityKinds lists every kind in a stable order.
var EntityKinds = []EntityKind{
	CategoryEntity, TagEntity, PaymentMethodEntity, FriendEntity,
	BudgetEntity, RecurringExpenseEntity, TransactionEntity,
}

func ParseEntityKind(s string) (EntityKind, bool) {
	for _, k := range EntityKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

type userIDKey struct{}

// WithUserID returns a context carrying the authenticated user id.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFrom returns the authenticated user id, or Unauthenticated when the
// context carries none.
func UserIDFrom(ctx context.Context) (int64, error) {
	id, ok := ctx.Value(userIDKey{}).(int64)
	if !ok || id <= 0 {
		return 0, Unauthenticated()
	}
	return id, nil
}
