package services

import (
	"context"
	"log/slog"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// TransactionService orchestrates transactions and their participants. Writes
// touch several tables and always run inside one SQL transaction.
type TransactionService struct {
	repo   *storage.SQLiteRepository
	events EventPublisher
}

func NewTransactionService(repo *storage.SQLiteRepository, events EventPublisher) *TransactionService {
	return &TransactionService{repo: repo, events: events}
}

func (s *TransactionService) Kind() core.EntityKind {
	return core.TransactionEntity
}

func (s *TransactionService) List(ctx context.Context, req core.PageRequest) (core.Page[core.Transaction], error) {
	userID, err := core.UserIDFrom(ctx)
	if err != nil {
		return core.Page[core.Transaction]{}, err
	}
	page, err := storage.Transactions.List(ctx, s.repo.DB(), userID, req)
	if err != nil {
		return core.Page[core.Transaction]{}, err
	}
	if err := s.hydrate(ctx, page.Items); err != nil {
		return core.Page[core.Transaction]{}, err
	}
	return page, nil
}

func (s *TransactionService) Get(ctx context.Context, id int64) (core.Transaction, error) {
	userID, err := core.UserIDFrom(ctx)
	if err != nil {
		return core.Transaction{}, err
	}
	return s.get(ctx, userID, id)
}

func (s *TransactionService) get(ctx context.Context, userID, id int64) (core.Transaction, error) {
	tx, err := storage.Transactions.Get(ctx, s.repo.DB(), userID, id)
	if err != nil {
		return core.Transaction{}, err
	}
	items := []core.Transaction{tx}
	if err := s.hydrate(ctx, items); err != nil {
		return core.Transaction{}, err
	}
	return items[0], nil
}

func (s *TransactionService) hydrate(ctx context.Context, items []core.Transaction) error {
	ids := make([]int64, len(items))
	for i, tx := range items {
		ids[i] = tx.ID
	}
	parts, err := storage.LoadParticipants(ctx, s.repo.DB(), ids)
	if err != nil {
		return err
	}
	for i := range items {
		items[i].Participants = parts[items[i].ID]
		if items[i].Participants == nil {
			items[i].Participants = []core.Participant{}
		}
	}
	return nil
}

// Create stores a transaction with all of its participants, or nothing.
func (s *TransactionService) Create(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	return s.CreateWithin(ctx, tx, nil)
}

// CreateWithin is Create with extra statements run in the same SQL
// transaction after the insert. If within fails nothing is stored.
func (s *TransactionService) CreateWithin(ctx context.Context, tx core.Transaction, within func(db storage.DBTX, id int64) error) (core.Transaction, error) {
	userID, err := core.UserIDFrom(ctx)
	if err != nil {
		return core.Transaction{}, err
	}
	if err := s.check(ctx, userID, &tx); err != nil {
		return core.Transaction{}, err
	}
	if tx.RecurringExpenseID != nil {
		if err := checkOwned(ctx, s.repo.DB(), userID, []OwnedRef{
			{Field: "recurringExpenseId", Table: storage.RecurringExpenses, IDs: []int64{*tx.RecurringExpenseID}},
		}); err != nil {
			return core.Transaction{}, err
		}
	}

	var id int64
	err = s.repo.WithTx(ctx, func(db storage.DBTX) error {
		var err error
		id, err = storage.Transactions.Insert(ctx, db, userID, tx, s.repo.Now().UnixNano())
		if err != nil {
			return err
		}
		if err := storage.InsertParticipants(ctx, db, id, tx.Participants); err != nil {
			return err
		}
		if within != nil {
			return within(db, id)
		}
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}

	created, err := s.get(ctx, userID, id)
	if err != nil {
		return core.Transaction{}, err
	}
	slog.InfoContext(ctx, "Transaction created",
		log.FieldEntityID, id,
		log.FieldUserID, userID,
		log.FieldParticipants, len(created.Participants))
	publish(ctx, s.events, core.TransactionEntity, id, userID, amqp.OpCreate)
	return created, nil
}

// Update replaces description, date and participants of a live transaction.
func (s *TransactionService) Update(ctx context.Context, id int64, tx core.Transaction) (core.Transaction, error) {
	userID, err := core.UserIDFrom(ctx)
	if err != nil {
		return core.Transaction{}, err
	}
	stored, err := storage.Transactions.Get(ctx, s.repo.DB(), userID, id)
	if err != nil {
		return core.Transaction{}, err
	}
	tx.RecurringExpenseID = stored.RecurringExpenseID
	if err := s.check(ctx, userID, &tx); err != nil {
		return core.Transaction{}, err
	}

	err = s.repo.WithTx(ctx, func(db storage.DBTX) error {
		if err := storage.Transactions.Update(ctx, db, userID, id, tx, s.repo.Now().UnixNano()); err != nil {
			return err
		}
		if err := storage.DeleteParticipants(ctx, db, id); err != nil {
			return err
		}
		return storage.InsertParticipants(ctx, db, id, tx.Participants)
	})
	if err != nil {
		return core.Transaction{}, err
	}

	updated, err := s.get(ctx, userID, id)
	if err != nil {
		return core.Transaction{}, err
	}
	slog.InfoContext(ctx, "Transaction updated", log.FieldEntityID, id, log.FieldUserID, userID)
	publish(ctx, s.events, core.TransactionEntity, id, userID, amqp.OpUpdate)
	return updated, nil
}

// Delete soft-deletes a transaction; it disappears from listings and budgets.
func (s *TransactionService) Delete(ctx context.Context, id int64) error {
	userID, err := core.UserIDFrom(ctx)
	if err != nil {
		return err
	}
	if err := storage.SoftDeleteTransaction(ctx, s.repo.DB(), userID, id, s.repo.Now().UnixNano()); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Transaction deleted", log.FieldEntityID, id, log.FieldUserID, userID)
	publish(ctx, s.events, core.TransactionEntity, id, userID, amqp.OpDelete)
	return nil
}

func (s *TransactionService) check(ctx context.Context, userID int64, tx *core.Transaction) error {
	tx.Normalize()
	for i := range tx.Participants {
		tx.Participants[i].Amount = core.RoundAmount(tx.Participants[i].Amount)
	}
	if err := tx.Validate(); err != nil {
		return core.Invalid(err)
	}
	return checkOwned(ctx, s.repo.DB(), userID, participantRefs(tx.Participants))
}

func participantRefs(parts []core.Participant) []OwnedRef {
	var categories, methods, friends, tags []int64
	for _, p := range parts {
		categories = append(categories, p.CategoryID)
		methods = append(methods, p.PaymentMethodID)
		if p.FriendID != nil {
			friends = append(friends, *p.FriendID)
		}
		tags = append(tags, p.TagIDs...)
	}
	return []OwnedRef{
		{Field: "categoryId", Table: storage.Categories, IDs: categories},
		{Field: "paymentMethodId", Table: storage.PaymentMethods, IDs: methods},
		{Field: "friendId", Table: storage.Friends, IDs: friends},
		{Field: "tagIds", Table: storage.Tags, IDs: tags},
	}
}
