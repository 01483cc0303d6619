// Package sheets defines the spreadsheet export ports used by the export worker.
package sheets

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// TransactionRow is one participant share of a transaction, flattened with
// display names resolved.
type TransactionRow struct {
	TransactionID int64
	Date          core.Date
	Description   string
	Type          core.TransactionType
	Amount        decimal.Decimal
	Category      string
	PaymentMethod string
	// Friend is empty for the owner's own share.
	Friend string
	Tags   []string
}

// Ports for outbound adapters.
type (
	TransactionWriter interface {
		// AppendTransaction appends rows and returns the written range.
		AppendTransaction(ctx context.Context, rows []TransactionRow) (rowRef string, err error)
	}

	BudgetReportWriter interface {
		// WriteBudgetReport replaces the user's report sheet with report.
		WriteBudgetReport(ctx context.Context, userID int64, sheet BudgetReportSheet) error
	}
)

// BudgetReportSheet is the content of one user's budget report sheet.
type BudgetReportSheet struct {
	Report core.BudgetReport
	// Categories maps category ids to display names.
	Categories  map[int64]string
	GeneratedAt time.Time
}
