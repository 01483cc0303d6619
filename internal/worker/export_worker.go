// Package worker mirrors committed writes into the spreadsheet export.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/sheets"
	"fintrack/internal/storage"
)

// Getter reads one owned row; the owner comes from the context.
type Getter[T any] interface {
	Get(ctx context.Context, id int64) (T, error)
}

// ReportSource builds the caller's budget report.
type ReportSource interface {
	Report(ctx context.Context) (core.BudgetReport, error)
}

// Sources is where the worker reads current state from. Events carry ids only.
type Sources struct {
	Transactions   Getter[core.Transaction]
	Categories     Getter[core.Category]
	PaymentMethods Getter[core.PaymentMethod]
	Friends        Getter[core.Friend]
	Tags           Getter[core.Tag]
	Reports        ReportSource
}

// SourcesFromRepository reads through the services. They get no publisher:
// the worker never writes.
func SourcesFromRepository(repo *storage.SQLiteRepository) Sources {
	return Sources{
		Transactions:   services.NewTransactionService(repo, nil),
		Categories:     services.NewCategoryService(repo, nil),
		PaymentMethods: services.NewPaymentMethodService(repo, nil),
		Friends:        services.NewFriendService(repo, nil),
		Tags:           services.NewTagService(repo, nil),
		Reports:        services.NewSpendingService(repo),
	}
}

// ExportWorker handles entity events from AMQP. Transaction writes are
// appended to the transactions sheet and every event that can move a budget
// rewrites the owner's report.
type ExportWorker struct {
	src     Sources
	rows    sheets.TransactionWriter
	reports sheets.BudgetReportWriter
	// names holds display names keyed by kind, owner and id.
	names *cache.LRUCache[string]
	// appended remembers events whose rows are already in the sheet, so a
	// redelivery after a failed report write does not append them twice.
	appended *cache.LRUCache[struct{}]
	now      func() time.Time
}

const (
	appendedCacheSize = 4096
	appendedCacheTTL  = 24 * time.Hour
)

func NewExportWorker(src Sources, rows sheets.TransactionWriter, reports sheets.BudgetReportWriter, names *cache.LRUCache[string]) *ExportWorker {
	return &ExportWorker{
		src:      src,
		rows:     rows,
		reports:  reports,
		names:    names,
		appended: cache.NewLRUCache[struct{}](appendedCacheSize, appendedCacheTTL),
		now:      time.Now,
	}
}

// HandleEvent processes a single event. A returned error requeues the
// message; rows deleted since the event was published are skipped.
func (w *ExportWorker) HandleEvent(ctx context.Context, ev *amqp.EntityEvent) error {
	ctx = core.WithUserID(ctx, ev.UserID)
	logger := log.FromContext(ctx).WithComponent(log.ComponentExport).With(
		log.FieldEventID, ev.ID,
		log.FieldEntityKind, ev.Kind,
		log.FieldEntityID, ev.EntityID,
		log.FieldUserID, ev.UserID,
		log.FieldOperation, ev.Op)
	ctx = log.NewContext(ctx, logger)

	logger.InfoContext(ctx, "Processing entity event")

	var err error
	switch ev.Kind {
	case core.TransactionEntity:
		err = w.handleTransaction(ctx, ev)
	case core.BudgetEntity:
		err = w.refreshReport(ctx, ev.UserID)
	case core.CategoryEntity:
		w.forget(core.CategoryEntity, ev.UserID, ev.EntityID)
		if ev.Op == amqp.OpUpdate {
			// the report shows category names
			err = w.refreshReport(ctx, ev.UserID)
		}
	case core.PaymentMethodEntity, core.FriendEntity, core.TagEntity:
		w.forget(ev.Kind, ev.UserID, ev.EntityID)
	default:
		logger.DebugContext(ctx, "Event not exported")
		return nil
	}

	if core.KindOf(err) == core.KindNotFound {
		logger.WarnContext(ctx, "Entity no longer exists, skipping", log.FieldError, err)
		return nil
	}
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "Entity event exported")
	return nil
}

func (w *ExportWorker) handleTransaction(ctx context.Context, ev *amqp.EntityEvent) error {
	g, gctx := errgroup.WithContext(ctx)
	if ev.Op != amqp.OpDelete {
		if _, done := w.appended.Get(ev.ID); done {
			log.FromContext(ctx).InfoContext(ctx, "Rows already appended for event, refreshing report only")
		} else {
			g.Go(func() error {
				if err := w.appendTransaction(gctx, ev.UserID, ev.EntityID); err != nil {
					return err
				}
				w.appended.Set(ev.ID, struct{}{})
				return nil
			})
		}
	}
	g.Go(func() error { return w.refreshReport(gctx, ev.UserID) })
	return g.Wait()
}

func (w *ExportWorker) appendTransaction(ctx context.Context, userID, id int64) error {
	tx, err := w.src.Transactions.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get transaction %d: %w", id, err)
	}
	rows, err := w.transactionRows(ctx, userID, tx)
	if err != nil {
		return err
	}
	ref, err := w.rows.AppendTransaction(ctx, rows)
	if err != nil {
		return fmt.Errorf("append transaction %d: %w", id, err)
	}
	log.FromContext(ctx).InfoContext(ctx, "Transaction appended", log.FieldSheet, ref, log.FieldRows, len(rows))
	return nil
}

func (w *ExportWorker) transactionRows(ctx context.Context, userID int64, tx core.Transaction) ([]sheets.TransactionRow, error) {
	rows := make([]sheets.TransactionRow, 0, len(tx.Participants))
	for _, p := range tx.Participants {
		row := sheets.TransactionRow{
			TransactionID: tx.ID,
			Date:          tx.Date,
			Description:   tx.Description,
			Type:          p.Type,
			Amount:        p.Amount,
		}

		var err error
		if row.Category, err = w.categoryName(ctx, userID, p.CategoryID); err != nil {
			return nil, err
		}
		if row.PaymentMethod, err = lookupName(ctx, w, core.PaymentMethodEntity, userID, p.PaymentMethodID, w.src.PaymentMethods,
			func(pm core.PaymentMethod) string { return pm.Name }); err != nil {
			return nil, err
		}
		if p.FriendID != nil {
			if row.Friend, err = lookupName(ctx, w, core.FriendEntity, userID, *p.FriendID, w.src.Friends,
				func(f core.Friend) string { return f.Name }); err != nil {
				return nil, err
			}
		}
		for _, tagID := range p.TagIDs {
			name, err := lookupName(ctx, w, core.TagEntity, userID, tagID, w.src.Tags,
				func(t core.Tag) string { return t.Name })
			if err != nil {
				return nil, err
			}
			row.Tags = append(row.Tags, name)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (w *ExportWorker) refreshReport(ctx context.Context, userID int64) error {
	report, err := w.src.Reports.Report(ctx)
	if err != nil {
		return fmt.Errorf("build budget report: %w", err)
	}

	names := make(map[int64]string, len(report.Entries))
	for _, e := range report.Entries {
		if _, ok := names[e.CategoryID]; ok {
			continue
		}
		name, err := w.categoryName(ctx, userID, e.CategoryID)
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			return err
		}
		names[e.CategoryID] = name
	}

	err = w.reports.WriteBudgetReport(ctx, userID, sheets.BudgetReportSheet{
		Report:      report,
		Categories:  names,
		GeneratedAt: w.now(),
	})
	if err != nil {
		return fmt.Errorf("write budget report: %w", err)
	}
	log.FromContext(ctx).InfoContext(ctx, "Budget report written", log.FieldRows, len(report.Entries))
	return nil
}

func (w *ExportWorker) categoryName(ctx context.Context, userID, id int64) (string, error) {
	return lookupName(ctx, w, core.CategoryEntity, userID, id, w.src.Categories,
		func(c core.Category) string { return c.Name })
}

// lookupName resolves a display name through the name cache.
func lookupName[T any](ctx context.Context, w *ExportWorker, kind core.EntityKind, userID, id int64, src Getter[T], name func(T) string) (string, error) {
	return w.names.GetOrLoad(nameKey(kind, userID, id), func() (string, error) {
		v, err := src.Get(ctx, id)
		if err != nil {
			return "", fmt.Errorf("get %s %d: %w", kind, id, err)
		}
		return name(v), nil
	})
}

func (w *ExportWorker) forget(kind core.EntityKind, userID, id int64) {
	w.names.Delete(nameKey(kind, userID, id))
}

func nameKey(kind core.EntityKind, userID, id int64) string {
	return fmt.Sprintf("%s:%d:%d", kind, userID, id)
}
