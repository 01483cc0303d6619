package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  TransactionType = "INCOME"
	Expense TransactionType = "EXPENSE"
)

const (
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
	Weekly  Frequency = "weekly"
	Daily   Frequency = "daily"
)

const (
	maxNameLength        = 100
	maxDescriptionLength = 200
	dateLayout           = "2006-01-02"
)

type (
	TransactionType string

	Frequency string

	// Date is a calendar day without time of day, stored as YYYY-MM-DD.
	Date struct {
		time.Time
	}

	User struct {
		ID        int64     `json:"id"`
		Email     string    `json:"email"`
		Name      string    `json:"name"`
		CreatedAt time.Time `json:"createdAt"`
	}

	Category struct {
		ID        int64           `json:"id"`
		UserID    int64           `json:"-"`
		Name      string          `json:"name"`
		Type      TransactionType `json:"type"`
		Icon      string          `json:"icon,omitempty"`
		Color     string          `json:"color,omitempty"`
		CreatedAt time.Time       `json:"createdAt"`
		UpdatedAt time.Time       `json:"updatedAt"`
	}

	Tag struct {
		ID        int64     `json:"id"`
		UserID    int64     `json:"-"`
		Name      string    `json:"name"`
		Color     string    `json:"color,omitempty"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	PaymentMethod struct {
		ID        int64     `json:"id"`
		UserID    int64     `json:"-"`
		Name      string    `json:"name"`
		Icon      string    `json:"icon,omitempty"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	// Friend is someone the owner splits transactions with.
	Friend struct {
		ID        int64     `json:"id"`
		UserID    int64     `json:"-"`
		Name      string    `json:"name"`
		Email     string    `json:"email,omitempty"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	Budget struct {
		ID         int64           `json:"id"`
		UserID     int64           `json:"-"`
		CategoryID int64           `json:"categoryId"`
		Amount     decimal.Decimal `json:"amount"`
		StartDate  Date            `json:"startDate"`
		EndDate    Date            `json:"endDate"`
		Icon       string          `json:"icon,omitempty"`
		CreatedAt  time.Time       `json:"createdAt"`
		UpdatedAt  time.Time       `json:"updatedAt"`
	}

	// RecurringExpense is a template materialized into a transaction on every due date.
	// A zero EndDate means the template never ends; a zero LastRunDate means it never ran.
	RecurringExpense struct {
		ID              int64           `json:"id"`
		UserID          int64           `json:"-"`
		Name            string          `json:"name"`
		Amount          decimal.Decimal `json:"amount"`
		Frequency       Frequency       `json:"frequency"`
		CategoryID      int64           `json:"categoryId"`
		PaymentMethodID int64           `json:"paymentMethodId"`
		StartDate       Date            `json:"startDate"`
		EndDate         Date            `json:"endDate,omitempty"`
		IsActive        bool            `json:"isActive"`
		LastRunDate     Date            `json:"lastRunDate,omitempty"`
		CreatedAt       time.Time       `json:"createdAt"`
		UpdatedAt       time.Time       `json:"updatedAt"`
	}

	Transaction struct {
		ID                 int64         `json:"id"`
		UserID             int64         `json:"-"`
		Description        string        `json:"description"`
		Date               Date          `json:"date"`
		IsDeleted          bool          `json:"-"`
		RecurringExpenseID *int64        `json:"recurringExpenseId,omitempty"`
		Participants       []Participant `json:"participants"`
		CreatedAt          time.Time     `json:"createdAt"`
		UpdatedAt          time.Time     `json:"updatedAt"`
	}

	// Participant is one share of a transaction. A nil FriendID is the owner's own share.
	Participant struct {
		ID              int64           `json:"id"`
		TransactionID   int64           `json:"-"`
		FriendID        *int64          `json:"friendId,omitempty"`
		Amount          decimal.Decimal `json:"amount"`
		Type            TransactionType `json:"type"`
		CategoryID      int64           `json:"categoryId"`
		PaymentMethodID int64           `json:"paymentMethodId"`
		TagIDs          []int64         `json:"tagIds"`
	}
)

var (
	ErrMissingDate         = errors.New("date is required")
	ErrDateOutOfRange      = errors.New("date year must be between 0001 and 9999")
	ErrInvalidDate         = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrEmptyName           = errors.New("name is required")
	ErrEmptyDescription    = errors.New("description is required")
	ErrInvalidType         = errors.New("type must be INCOME or EXPENSE")
	ErrInvalidFrequency    = errors.New("frequency must be daily, weekly, monthly or yearly")
	ErrInvalidDateRange    = errors.New("end date must be after start date")
	ErrMissingCategory     = errors.New("category is required")
	ErrMissingPayment      = errors.New("payment method is required")
	ErrNoParticipants      = errors.New("at least one participant is required")
	ErrNameTooLong         = fmt.Errorf("name too long (max %d characters)", maxNameLength)
	ErrDescriptionTooLong  = fmt.Errorf("description too long (max %d characters)", maxDescriptionLength)
	ErrMissingStartEndDate = errors.New("start and end dates are required")
)

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

// ParseTransactionType accepts the type in any letter case.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", ErrInvalidType
	}
	return t, nil
}

func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", ErrInvalidFrequency
	}
	return f, nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string. The empty string yields the zero Date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// DateOf truncates t to its calendar day in t's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// Validate rejects the zero Date and years that do not fit the four-digit
// YYYY-MM-DD form dates are stored and compared in.
func (d Date) Validate() error {
	if d.IsZero() {
		return ErrMissingDate
	}
	if y := d.Year(); y < 1 || y > 9999 {
		return ErrDateOutOfRange
	}
	return nil
}

// String returns YYYY-MM-DD, or "" for the zero Date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool  { return d.Time.After(o.Time) }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func validateName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > maxNameLength {
		return ErrNameTooLong
	}
	return nil
}

func (c *Category) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.Icon = strings.TrimSpace(c.Icon)
	c.Color = strings.TrimSpace(c.Color)
	c.Type = TransactionType(strings.ToUpper(strings.TrimSpace(string(c.Type))))
}

func (c Category) Validate() error {
	if err := validateName(c.Name); err != nil {
		return err
	}
	if !c.Type.Valid() {
		return ErrInvalidType
	}
	return nil
}

func (t *Tag) Normalize() {
	t.Name = strings.TrimSpace(t.Name)
	t.Color = strings.TrimSpace(t.Color)
}

func (t Tag) Validate() error {
	return validateName(t.Name)
}

func (p *PaymentMethod) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Icon = strings.TrimSpace(p.Icon)
}

func (p PaymentMethod) Validate() error {
	return validateName(p.Name)
}

func (f *Friend) Normalize() {
	f.Name = strings.TrimSpace(f.Name)
	f.Email = strings.TrimSpace(f.Email)
}

func (f Friend) Validate() error {
	if err := validateName(f.Name); err != nil {
		return err
	}
	if f.Email != "" && !strings.Contains(f.Email, "@") {
		return errors.New("invalid email")
	}
	return nil
}

func (b *Budget) Normalize() {
	b.Icon = strings.TrimSpace(b.Icon)
}

func (b Budget) Validate() error {
	if b.CategoryID <= 0 {
		return ErrMissingCategory
	}
	if !b.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if b.StartDate.IsZero() || b.EndDate.IsZero() {
		return ErrMissingStartEndDate
	}
	if !b.EndDate.After(b.StartDate) {
		return ErrInvalidDateRange
	}
	return nil
}

func (re *RecurringExpense) Normalize() {
	re.Name = strings.TrimSpace(re.Name)
	re.Frequency = Frequency(strings.ToLower(strings.TrimSpace(string(re.Frequency))))
}

func (re RecurringExpense) Validate() error {
	if err := validateName(re.Name); err != nil {
		return err
	}
	if !re.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !re.Frequency.Valid() {
		return ErrInvalidFrequency
	}
	if re.CategoryID <= 0 {
		return ErrMissingCategory
	}
	if re.PaymentMethodID <= 0 {
		return ErrMissingPayment
	}
	if err := re.StartDate.Validate(); err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}
	if !re.EndDate.IsZero() && re.EndDate.Before(re.StartDate) {
		return ErrInvalidDateRange
	}
	return nil
}

// Ended reports whether the template has an end date before day.
func (re RecurringExpense) Ended(day Date) bool {
	return !re.EndDate.IsZero() && re.EndDate.Before(day)
}

func (tx *Transaction) Normalize() {
	tx.Description = strings.TrimSpace(tx.Description)
	for i := range tx.Participants {
		tx.Participants[i].Type = TransactionType(strings.ToUpper(strings.TrimSpace(string(tx.Participants[i].Type))))
	}
}

func (tx Transaction) Validate() error {
	if tx.Description == "" {
		return ErrEmptyDescription
	}
	if len(tx.Description) > maxDescriptionLength {
		return ErrDescriptionTooLong
	}
	if err := tx.Date.Validate(); err != nil {
		return ErrInvalidDate
	}
	if len(tx.Participants) == 0 {
		return ErrNoParticipants
	}
	for i, p := range tx.Participants {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("participant %d: %w", i+1, err)
		}
	}
	return nil
}

func (p Participant) Validate() error {
	if !p.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !p.Type.Valid() {
		return ErrInvalidType
	}
	if p.CategoryID <= 0 {
		return ErrMissingCategory
	}
	if p.PaymentMethodID <= 0 {
		return ErrMissingPayment
	}
	return nil
}
