package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"fintrack/internal/core"
)

// Categories lists by id and is unique per (user, name, type).
var Categories = &Table[core.Category]{
	Name:         "categories",
	Entity:       "category",
	Columns:      []string{"id", "user_id", "name", "type", "icon", "color", "created_at", "updated_at"},
	Writable:     []string{"name", "type", "icon", "color"},
	SearchColumn: "name",
	Filters: map[string]Filter{
		"type": {Clause: "t.type = ?", Parse: parseType},
	},
	References: []Reference{
		{Name: "transactions", Query: "SELECT COUNT(*) FROM transaction_participants p JOIN transactions x ON x.id = p.transaction_id WHERE p.category_id = ? AND x.is_deleted = 0"},
		{Name: "budgets", Query: "SELECT COUNT(*) FROM budgets WHERE category_id = ?"},
		{Name: "recurring expenses", Query: "SELECT COUNT(*) FROM recurring_expenses WHERE category_id = ?"},
	},
	Scan: func(s rowScanner) (core.Category, error) {
		var c core.Category
		var typ string
		var created, updated int64
		err := s.Scan(&c.ID, &c.UserID, &c.Name, &typ, &c.Icon, &c.Color, &created, &updated)
		c.Type = core.TransactionType(typ)
		c.CreatedAt, c.UpdatedAt = fromNanos(created), fromNanos(updated)
		return c, err
	},
	Values: func(c core.Category) []any { return []any{c.Name, string(c.Type), c.Icon, c.Color} },
	ID:     func(c core.Category) int64 { return c.ID },
}

var Tags = &Table[core.Tag]{
	Name:         "tags",
	Entity:       "tag",
	Columns:      []string{"id", "user_id", "name", "color", "created_at", "updated_at"},
	Writable:     []string{"name", "color"},
	SearchColumn: "name",
	References: []Reference{
		{Name: "transactions", Query: "SELECT COUNT(*) FROM participant_tags pt JOIN transaction_participants p ON p.id = pt.participant_id JOIN transactions x ON x.id = p.transaction_id WHERE pt.tag_id = ? AND x.is_deleted = 0"},
	},
	Scan: func(s rowScanner) (core.Tag, error) {
		var t core.Tag
		var created, updated int64
		err := s.Scan(&t.ID, &t.UserID, &t.Name, &t.Color, &created, &updated)
		t.CreatedAt, t.UpdatedAt = fromNanos(created), fromNanos(updated)
		return t, err
	},
	Values: func(t core.Tag) []any { return []any{t.Name, t.Color} },
	ID:     func(t core.Tag) int64 { return t.ID },
}

var PaymentMethods = &Table[core.PaymentMethod]{
	Name:         "payment_methods",
	Entity:       "payment method",
	Columns:      []string{"id", "user_id", "name", "icon", "created_at", "updated_at"},
	Writable:     []string{"name", "icon"},
	SearchColumn: "name",
	References: []Reference{
		{Name: "transactions", Query: "SELECT COUNT(*) FROM transaction_participants p JOIN transactions x ON x.id = p.transaction_id WHERE p.payment_method_id = ? AND x.is_deleted = 0"},
		{Name: "recurring expenses", Query: "SELECT COUNT(*) FROM recurring_expenses WHERE payment_method_id = ?"},
	},
	Scan: func(s rowScanner) (core.PaymentMethod, error) {
		var p core.PaymentMethod
		var created, updated int64
		err := s.Scan(&p.ID, &p.UserID, &p.Name, &p.Icon, &created, &updated)
		p.CreatedAt, p.UpdatedAt = fromNanos(created), fromNanos(updated)
		return p, err
	},
	Values: func(p core.PaymentMethod) []any { return []any{p.Name, p.Icon} },
	ID:     func(p core.PaymentMethod) int64 { return p.ID },
}

var Friends = &Table[core.Friend]{
	Name:         "friends",
	Entity:       "friend",
	Columns:      []string{"id", "user_id", "name", "email", "created_at", "updated_at"},
	Writable:     []string{"name", "email"},
	SearchColumn: "name",
	References: []Reference{
		{Name: "transactions", Query: "SELECT COUNT(*) FROM transaction_participants p JOIN transactions x ON x.id = p.transaction_id WHERE p.friend_id = ? AND x.is_deleted = 0"},
	},
	Scan: func(s rowScanner) (core.Friend, error) {
		var f core.Friend
		var created, updated int64
		err := s.Scan(&f.ID, &f.UserID, &f.Name, &f.Email, &created, &updated)
		f.CreatedAt, f.UpdatedAt = fromNanos(created), fromNanos(updated)
		return f, err
	},
	Values: func(f core.Friend) []any { return []any{f.Name, f.Email} },
	ID:     func(f core.Friend) int64 { return f.ID },
}

var Budgets = &Table[core.Budget]{
	Name:     "budgets",
	Entity:   "budget",
	Columns:  []string{"id", "user_id", "category_id", "amount", "start_date", "end_date", "icon", "created_at", "updated_at"},
	Writable: []string{"category_id", "amount", "start_date", "end_date", "icon"},
	Filters: map[string]Filter{
		"categoryId": {Clause: "t.category_id = ?", Parse: parseID},
	},
	Scan: func(s rowScanner) (core.Budget, error) {
		var b core.Budget
		var start, end string
		var created, updated int64
		if err := s.Scan(&b.ID, &b.UserID, &b.CategoryID, &b.Amount, &start, &end, &b.Icon, &created, &updated); err != nil {
			return b, err
		}
		var err error
		if b.StartDate, err = core.ParseDate(start); err != nil {
			return b, fmt.Errorf("start_date %q: %w", start, err)
		}
		if b.EndDate, err = core.ParseDate(end); err != nil {
			return b, fmt.Errorf("end_date %q: %w", end, err)
		}
		b.CreatedAt, b.UpdatedAt = fromNanos(created), fromNanos(updated)
		return b, nil
	},
	Values: func(b core.Budget) []any {
		return []any{b.CategoryID, core.FormatAmount(b.Amount), b.StartDate.String(), b.EndDate.String(), b.Icon}
	},
	ID: func(b core.Budget) int64 { return b.ID },
}

var RecurringExpenses = &Table[core.RecurringExpense]{
	Name:   "recurring_expenses",
	Entity: "recurring expense",
	Columns: []string{"id", "user_id", "name", "amount", "frequency", "category_id", "payment_method_id",
		"start_date", "end_date", "is_active", "last_run_date", "created_at", "updated_at"},
	Writable: []string{"name", "amount", "frequency", "category_id", "payment_method_id",
		"start_date", "end_date", "is_active", "last_run_date"},
	SearchColumn: "name",
	Order:        OrderByNewest,
	Filters: map[string]Filter{
		"frequency":  {Clause: "t.frequency = ?", Parse: parseFrequency},
		"isActive":   {Clause: "t.is_active = ?", Parse: parseBool},
		"categoryId": {Clause: "t.category_id = ?", Parse: parseID},
	},
	Scan:   scanRecurring,
	Values: recurringValues,
	ID:     func(re core.RecurringExpense) int64 { return re.ID },
}

func scanRecurring(s rowScanner) (core.RecurringExpense, error) {
	var re core.RecurringExpense
	var freq, start string
	var end, lastRun sql.NullString
	var created, updated int64
	if err := s.Scan(&re.ID, &re.UserID, &re.Name, &re.Amount, &freq, &re.CategoryID, &re.PaymentMethodID,
		&start, &end, &re.IsActive, &lastRun, &created, &updated); err != nil {
		return re, err
	}
	re.Frequency = core.Frequency(freq)
	var err error
	if re.StartDate, err = core.ParseDate(start); err != nil {
		return re, fmt.Errorf("start_date %q: %w", start, err)
	}
	if re.EndDate, err = core.ParseDate(end.String); err != nil {
		return re, fmt.Errorf("end_date %q: %w", end.String, err)
	}
	if re.LastRunDate, err = core.ParseDate(lastRun.String); err != nil {
		return re, fmt.Errorf("last_run_date %q: %w", lastRun.String, err)
	}
	re.CreatedAt, re.UpdatedAt = fromNanos(created), fromNanos(updated)
	return re, nil
}

func recurringValues(re core.RecurringExpense) []any {
	return []any{re.Name, core.FormatAmount(re.Amount), string(re.Frequency), re.CategoryID, re.PaymentMethodID,
		re.StartDate.String(), nullDate(re.EndDate), re.IsActive, nullDate(re.LastRunDate)}
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullDate(d core.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

func parseID(s string) (any, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("expected a positive id")
	}
	return id, nil
}

func parseType(s string) (any, error) {
	t, err := core.ParseTransactionType(s)
	if err != nil {
		return nil, err
	}
	return string(t), nil
}

func parseFrequency(s string) (any, error) {
	f, err := core.ParseFrequency(s)
	if err != nil {
		return nil, err
	}
	return string(f), nil
}

func parseBool(s string) (any, error) {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, fmt.Errorf("expected true or false")
	}
	return b, nil
}

func parseDate(s string) (any, error) {
	d, err := core.ParseDate(s)
	if err != nil || d.IsZero() {
		return nil, core.ErrInvalidDate
	}
	return d.String(), nil
}
