package core

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestDateValidate(t *testing.T) {
	yearZero, err := ParseDate("0000-03-01")
	if err != nil {
		t.Fatalf("ParseDate() error = %v", err)
	}
	cases := []struct {
		name string
		d    Date
		want error
	}{
		{"first day", NewDate(2025, 1, 1), nil},
		{"last day", NewDate(2025, 12, 31), nil},
		{"zero", Date{}, ErrMissingDate},
		{"year zero", yearZero, ErrDateOutOfRange},
		{"five digit year", NewDate(10000, 1, 1), ErrDateOutOfRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.d.Validate(); !errors.Is(err, tc.want) {
				t.Errorf("Validate() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-05-31")
	if err != nil {
		t.Fatalf("ParseDate() error = %v", err)
	}
	if d.String() != "2024-05-31" {
		t.Errorf("String() = %q", d.String())
	}

	if d, err := ParseDate(""); err != nil || !d.IsZero() {
		t.Errorf("empty string should give zero date, got %v, %v", d, err)
	}
	if _, err := ParseDate("31/05/2024"); !errors.Is(err, ErrInvalidDate) {
		t.Errorf("expected ErrInvalidDate, got %v", err)
	}
}

func TestDateJSON(t *testing.T) {
	var v struct {
		D Date `json:"d"`
	}
	if err := json.Unmarshal([]byte(`{"d":"2024-06-01"}`), &v); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !v.D.Equal(NewDate(2024, 6, 1).Time) {
		t.Errorf("got %v", v.D)
	}
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(b) != `{"d":"2024-06-01"}` {
		t.Errorf("Marshal() = %s", b)
	}
}

func TestParseTransactionType(t *testing.T) {
	for _, in := range []string{"expense", " EXPENSE ", "Income"} {
		if _, err := ParseTransactionType(in); err != nil {
			t.Errorf("ParseTransactionType(%q) error = %v", in, err)
		}
	}
	if _, err := ParseTransactionType("transfer"); !errors.Is(err, ErrInvalidType) {
		t.Errorf("expected ErrInvalidType, got %v", err)
	}
}

func TestCategoryValidate(t *testing.T) {
	c := Category{Name: "  Food ", Type: "expense"}
	c.Normalize()
	if c.Name != "Food" || c.Type != Expense {
		t.Fatalf("Normalize() = %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Category{
		{Name: "", Type: Expense},
		{Name: "Food", Type: "OTHER"},
	}
	for i, b := range bads {
		if err := b.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestBudgetValidate(t *testing.T) {
	good := Budget{
		CategoryID: 1,
		Amount:     decimal.NewFromInt(500),
		StartDate:  NewDate(2024, 5, 1),
		EndDate:    NewDate(2024, 5, 31),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Budget)
		want   error
	}{
		{"missing category", func(b *Budget) { b.CategoryID = 0 }, ErrMissingCategory},
		{"zero amount", func(b *Budget) { b.Amount = decimal.Zero }, ErrInvalidAmount},
		{"negative amount", func(b *Budget) { b.Amount = decimal.NewFromInt(-1) }, ErrInvalidAmount},
		{"end equals start", func(b *Budget) { b.EndDate = b.StartDate }, ErrInvalidDateRange},
		{"end before start", func(b *Budget) { b.EndDate = NewDate(2024, 4, 1) }, ErrInvalidDateRange},
		{"missing end", func(b *Budget) { b.EndDate = Date{} }, ErrMissingStartEndDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := good
			tt.mutate(&b)
			if err := b.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRecurringExpenseValidate(t *testing.T) {
	good := RecurringExpense{
		Name:            "Rent",
		Amount:          decimal.NewFromInt(900),
		Frequency:       Monthly,
		CategoryID:      1,
		PaymentMethodID: 2,
		StartDate:       NewDate(2024, 1, 31),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	sameDay := good
	sameDay.EndDate = good.StartDate
	if err := sameDay.Validate(); err != nil {
		t.Errorf("end date equal to start should be allowed, got %v", err)
	}

	bad := good
	bad.EndDate = NewDate(2023, 12, 1)
	if err := bad.Validate(); !errors.Is(err, ErrInvalidDateRange) {
		t.Errorf("expected ErrInvalidDateRange, got %v", err)
	}

	bad = good
	bad.Frequency = "hourly"
	if err := bad.Validate(); !errors.Is(err, ErrInvalidFrequency) {
		t.Errorf("expected ErrInvalidFrequency, got %v", err)
	}

	if good.Ended(NewDate(2100, 1, 1)) {
		t.Error("template without end date should never end")
	}
	ended := good
	ended.EndDate = NewDate(2024, 6, 30)
	if !ended.Ended(NewDate(2024, 7, 1)) {
		t.Error("template should be ended the day after its end date")
	}
	if ended.Ended(NewDate(2024, 6, 30)) {
		t.Error("template should still run on its end date")
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		Description: "Dinner",
		Date:        NewDate(2024, 5, 10),
		Participants: []Participant{
			{Amount: decimal.NewFromInt(30), Type: Expense, CategoryID: 1, PaymentMethodID: 1},
		},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	noParts := good
	noParts.Participants = nil
	if err := noParts.Validate(); !errors.Is(err, ErrNoParticipants) {
		t.Errorf("expected ErrNoParticipants, got %v", err)
	}

	badPart := good
	badPart.Participants = []Participant{{Amount: decimal.Zero, Type: Expense, CategoryID: 1, PaymentMethodID: 1}}
	if err := badPart.Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}
