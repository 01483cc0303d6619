package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// maxCatchUp bounds the occurrences materialized for one template per run.
// A daily template that was paused for years catches up over several runs.
const maxCatchUp = 366

// RecurringProcessor materializes due recurring expenses into transactions.
type RecurringProcessor struct {
	repo         *storage.SQLiteRepository
	transactions *TransactionService
	markRun      func(ctx context.Context, db storage.DBTX, id int64, date core.Date, nowNanos int64) error
}

func NewRecurringProcessor(repo *storage.SQLiteRepository, transactions *TransactionService) *RecurringProcessor {
	return &RecurringProcessor{repo: repo, transactions: transactions, markRun: storage.MarkRecurringRun}
}

// ProcessDue creates one expense transaction for every occurrence due on or
// before now, across all users, and returns how many were created. A failing
// template is logged and skipped; the others still run.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	if p.repo == nil || p.transactions == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}
	today := core.DateOf(now)

	templates, err := storage.ActiveRecurringExpenses(ctx, p.repo.DB(), today)
	if err != nil {
		return 0, fmt.Errorf("failed to get active recurring expenses: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring expenses",
		"total_active", len(templates),
		"processing_date", today.String())

	created := 0
	for _, re := range templates {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		n, err := p.processTemplate(ctx, re, today)
		created += n
		if err != nil {
			slog.ErrorContext(ctx, "Failed to process recurring expense",
				log.FieldEntityID, re.ID,
				log.FieldUserID, re.UserID,
				log.FieldError, err)
		}
	}

	slog.InfoContext(ctx, "Recurring expense processing complete",
		"created", created,
		"total_checked", len(templates))
	return created, nil
}

func (p *RecurringProcessor) processTemplate(ctx context.Context, re core.RecurringExpense, today core.Date) (int, error) {
	userCtx := core.WithUserID(ctx, re.UserID)
	created := 0

	for created < maxCatchUp {
		due, err := IsDue(re, today)
		if err != nil {
			return created, err
		}
		if !due {
			break
		}
		next, err := NextDueDate(re)
		if err != nil {
			return created, err
		}

		templateID := re.ID
		tx := core.Transaction{
			Description:        re.Name,
			Date:               next,
			RecurringExpenseID: &templateID,
			Participants: []core.Participant{{
				Amount:          re.Amount,
				Type:            core.Expense,
				CategoryID:      re.CategoryID,
				PaymentMethodID: re.PaymentMethodID,
			}},
		}
		// The occurrence and the run mark commit together, so a failed mark
		// cannot leave an occurrence that the next run creates again.
		_, err = p.transactions.CreateWithin(userCtx, tx, func(db storage.DBTX, _ int64) error {
			if err := p.markRun(ctx, db, re.ID, next, p.repo.Now().UnixNano()); err != nil {
				return fmt.Errorf("mark run: %w", err)
			}
			return nil
		})
		if err != nil {
			return created, fmt.Errorf("create transaction for %s: %w", next, err)
		}
		re.LastRunDate = next
		created++

		slog.InfoContext(ctx, "Created transaction from recurring expense",
			log.FieldEntityID, re.ID,
			"occurrence", next.String(),
			"amount", core.FormatAmount(re.Amount),
			"frequency", re.Frequency)
	}

	if next, err := NextDueDate(re); err == nil && next.IsZero() && re.Ended(today) {
		if err := storage.DeactivateRecurring(ctx, p.repo.DB(), re.ID, p.repo.Now().UnixNano()); err != nil {
			return created, fmt.Errorf("deactivate: %w", err)
		}
		slog.InfoContext(ctx, "Deactivated ended recurring expense", log.FieldEntityID, re.ID)
	}
	return created, nil
}
