package storage

import (
	"context"
	"database/sql"
	"fmt"

	"fintrack/internal/core"
)

// Transactions lists live (not soft-deleted) transactions, newest first.
// Participants are not part of the row; see LoadParticipants.
var Transactions = &Table[core.Transaction]{
	Name:         "transactions",
	Entity:       "transaction",
	Columns:      []string{"id", "user_id", "description", "date", "is_deleted", "recurring_expense_id", "created_at", "updated_at"},
	Writable:     []string{"description", "date", "recurring_expense_id"},
	SearchColumn: "description",
	Order:        OrderByNewest,
	Scope:        "t.is_deleted = 0",
	Filters: map[string]Filter{
		"type":            {Clause: participantExists("p.type = ?"), Parse: parseType},
		"categoryId":      {Clause: participantExists("p.category_id = ?"), Parse: parseID},
		"paymentMethodId": {Clause: participantExists("p.payment_method_id = ?"), Parse: parseID},
		"friendId":        {Clause: participantExists("p.friend_id = ?"), Parse: parseID},
		"tagId": {
			Clause: "EXISTS (SELECT 1 FROM transaction_participants p JOIN participant_tags pt ON pt.participant_id = p.id WHERE p.transaction_id = t.id AND pt.tag_id = ?)",
			Parse:  parseID,
		},
		"from": {Clause: "t.date >= ?", Parse: parseDate},
		"to":   {Clause: "t.date <= ?", Parse: parseDate},
	},
	Scan: func(s rowScanner) (core.Transaction, error) {
		var tx core.Transaction
		var date string
		var recurringID sql.NullInt64
		var created, updated int64
		if err := s.Scan(&tx.ID, &tx.UserID, &tx.Description, &date, &tx.IsDeleted, &recurringID, &created, &updated); err != nil {
			return tx, err
		}
		var err error
		if tx.Date, err = core.ParseDate(date); err != nil {
			return tx, fmt.Errorf("date %q: %w", date, err)
		}
		if recurringID.Valid {
			id := recurringID.Int64
			tx.RecurringExpenseID = &id
		}
		tx.CreatedAt, tx.UpdatedAt = fromNanos(created), fromNanos(updated)
		return tx, nil
	},
	Values: func(tx core.Transaction) []any {
		var recurringID any
		if tx.RecurringExpenseID != nil {
			recurringID = *tx.RecurringExpenseID
		}
		return []any{tx.Description, tx.Date.String(), recurringID}
	},
	ID: func(tx core.Transaction) int64 { return tx.ID },
}

func participantExists(cond string) string {
	return "EXISTS (SELECT 1 FROM transaction_participants p WHERE p.transaction_id = t.id AND " + cond + ")"
}

// InsertParticipants writes participants and their tags for transactionID.
func InsertParticipants(ctx context.Context, db DBTX, transactionID int64, parts []core.Participant) error {
	for _, p := range parts {
		var friendID any
		if p.FriendID != nil {
			friendID = *p.FriendID
		}
		res, err := db.ExecContext(ctx,
			`INSERT INTO transaction_participants (transaction_id, friend_id, amount, type, category_id, payment_method_id)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			transactionID, friendID, core.FormatAmount(p.Amount), string(p.Type), p.CategoryID, p.PaymentMethodID)
		if err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
		participantID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
		seen := make(map[int64]struct{}, len(p.TagIDs))
		for _, tagID := range p.TagIDs {
			if _, ok := seen[tagID]; ok {
				continue
			}
			seen[tagID] = struct{}{}
			if _, err := db.ExecContext(ctx,
				"INSERT INTO participant_tags (participant_id, tag_id) VALUES (?, ?)", participantID, tagID); err != nil {
				return fmt.Errorf("insert participant tag: %w", err)
			}
		}
	}
	return nil
}

// DeleteParticipants removes every participant of transactionID; tags cascade.
func DeleteParticipants(ctx context.Context, db DBTX, transactionID int64) error {
	if _, err := db.ExecContext(ctx,
		"DELETE FROM participant_tags WHERE participant_id IN (SELECT id FROM transaction_participants WHERE transaction_id = ?)",
		transactionID); err != nil {
		return fmt.Errorf("delete participant tags: %w", err)
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM transaction_participants WHERE transaction_id = ?", transactionID); err != nil {
		return fmt.Errorf("delete participants: %w", err)
	}
	return nil
}

// LoadParticipants returns the participants of each transaction id, in insertion order.
func LoadParticipants(ctx context.Context, db DBTX, transactionIDs []int64) (map[int64][]core.Participant, error) {
	out := make(map[int64][]core.Participant, len(transactionIDs))
	if len(transactionIDs) == 0 {
		return out, nil
	}
	args := make([]any, len(transactionIDs))
	for i, id := range transactionIDs {
		args[i] = id
	}
	in := placeholders(len(args))

	rows, err := db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, transaction_id, friend_id, amount, type, category_id, payment_method_id
		 FROM transaction_participants WHERE transaction_id IN (%s) ORDER BY id`, in), args...)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]*core.Participant)
	var order []core.Participant
	for rows.Next() {
		var p core.Participant
		var friendID sql.NullInt64
		var typ string
		if err := rows.Scan(&p.ID, &p.TransactionID, &friendID, &p.Amount, &typ, &p.CategoryID, &p.PaymentMethodID); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		p.Type = core.TransactionType(typ)
		if friendID.Valid {
			id := friendID.Int64
			p.FriendID = &id
		}
		p.TagIDs = []int64{}
		order = append(order, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	for i := range order {
		byID[order[i].ID] = &order[i]
	}

	tagRows, err := db.QueryContext(ctx, fmt.Sprintf(
		`SELECT pt.participant_id, pt.tag_id FROM participant_tags pt
		 JOIN transaction_participants p ON p.id = pt.participant_id
		 WHERE p.transaction_id IN (%s) ORDER BY pt.participant_id, pt.tag_id`, in), args...)
	if err != nil {
		return nil, fmt.Errorf("load participant tags: %w", err)
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var participantID, tagID int64
		if err := tagRows.Scan(&participantID, &tagID); err != nil {
			return nil, fmt.Errorf("scan participant tag: %w", err)
		}
		if p, ok := byID[participantID]; ok {
			p.TagIDs = append(p.TagIDs, tagID)
		}
	}
	if err := tagRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participant tags: %w", err)
	}

	for _, p := range order {
		out[p.TransactionID] = append(out[p.TransactionID], p)
	}
	return out, nil
}

// SoftDeleteTransaction flags a live transaction owned by userID as deleted.
func SoftDeleteTransaction(ctx context.Context, db DBTX, userID, id, nowNanos int64) error {
	res, err := db.ExecContext(ctx,
		"UPDATE transactions SET is_deleted = 1, updated_at = ? WHERE id = ? AND user_id = ? AND is_deleted = 0",
		nowNanos, id, userID)
	if err != nil {
		return fmt.Errorf("soft delete transaction: %w", err)
	}
	return requireAffected(res, "transaction")
}
