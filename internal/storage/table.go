package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"fintrack/internal/core"
)

// Order is the fixed sort key of a listing.
type Order int

const (
	// OrderByID sorts by id ascending; the cursor is the last id seen.
	OrderByID Order = iota
	// OrderByNewest sorts by id descending, newest row first. Ids are never
	// reused, so the cursor stays valid when the row it names is edited or deleted.
	OrderByNewest
)

// Filter is an exact-match predicate on table alias t. Clause holds exactly one
// placeholder; Parse converts and validates the raw query value.
type Filter struct {
	Clause string
	Parse  func(string) (any, error)
}

// Reference counts rows in another table that point at an entity.
type Reference struct {
	Name  string
	Query string
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Table describes an owned entity table. Every statement it builds is scoped
// to user_id; callers cannot lift that predicate.
type Table[T any] struct {
	Name         string
	Entity       string
	Columns      []string
	Writable     []string
	SearchColumn string
	Filters      map[string]Filter
	Order        Order
	// Scope is an always-on predicate, e.g. excluding soft-deleted rows.
	Scope      string
	References []Reference
	Scan       func(rowScanner) (T, error)
	Values     func(T) []any
	ID         func(T) int64
}

func (t *Table[T]) selectList() string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = "t." + c
	}
	return strings.Join(cols, ", ")
}

// where builds the owner-scoped predicate for req without the cursor.
func (t *Table[T]) where(userID int64, req core.PageRequest) (string, []any, error) {
	clauses := []string{"t.user_id = ?"}
	args := []any{userID}
	if t.Scope != "" {
		clauses = append(clauses, t.Scope)
	}

	if search := strings.TrimSpace(req.Search); search != "" {
		if t.SearchColumn == "" {
			return "", nil, core.InvalidArgument("search is not supported for %s", t.Name)
		}
		clauses = append(clauses, fmt.Sprintf("instr(%s(t.%s), ?) > 0", foldFunc, t.SearchColumn))
		args = append(args, fold(search))
	}

	keys := make([]string, 0, len(req.Filters))
	for k := range req.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		f, ok := t.Filters[k]
		if !ok {
			return "", nil, core.InvalidArgument("unknown filter %q", k)
		}
		v, err := f.Parse(req.Filters[k])
		if err != nil {
			return "", nil, core.InvalidArgument("invalid value for filter %q: %v", k, err)
		}
		clauses = append(clauses, f.Clause)
		args = append(args, v)
	}

	return strings.Join(clauses, " AND "), args, nil
}

// List returns one page of the caller's rows. It reads pageSize+1 rows to
// detect the following page, and counts the full filtered set ignoring the cursor.
func (t *Table[T]) List(ctx context.Context, db DBTX, userID int64, req core.PageRequest) (core.Page[T], error) {
	if err := req.Validate(); err != nil {
		return core.Page[T]{}, err
	}
	where, args, err := t.where(userID, req)
	if err != nil {
		return core.Page[T]{}, err
	}

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s t WHERE %s", t.Name, where)
	if err := db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return core.Page[T]{}, fmt.Errorf("count %s: %w", t.Name, err)
	}

	pageWhere := where
	pageArgs := append([]any{}, args...)
	var orderBy string
	switch t.Order {
	case OrderByNewest:
		if req.Cursor != nil {
			pageWhere += " AND t.id < ?"
			pageArgs = append(pageArgs, *req.Cursor)
		}
		orderBy = "t.id DESC"
	default:
		if req.Cursor != nil {
			pageWhere += " AND t.id > ?"
			pageArgs = append(pageArgs, *req.Cursor)
		}
		orderBy = "t.id ASC"
	}
	pageArgs = append(pageArgs, req.Limit())

	query := fmt.Sprintf("SELECT %s FROM %s t WHERE %s ORDER BY %s LIMIT ?", t.selectList(), t.Name, pageWhere, orderBy)
	rows, err := db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return core.Page[T]{}, fmt.Errorf("list %s: %w", t.Name, err)
	}
	defer rows.Close()

	items := make([]T, 0, req.Limit())
	for rows.Next() {
		item, err := t.Scan(rows)
		if err != nil {
			return core.Page[T]{}, fmt.Errorf("scan %s: %w", t.Name, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return core.Page[T]{}, fmt.Errorf("iterate %s: %w", t.Name, err)
	}

	return core.NewPage(items, req.PageSize, total, t.ID), nil
}

// Get fetches one row owned by userID.
func (t *Table[T]) Get(ctx context.Context, db DBTX, userID, id int64) (T, error) {
	where := "t.id = ? AND t.user_id = ?"
	if t.Scope != "" {
		where += " AND " + t.Scope
	}
	query := fmt.Sprintf("SELECT %s FROM %s t WHERE %s", t.selectList(), t.Name, where)
	item, err := t.Scan(db.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		var zero T
		return zero, core.NotFound(t.Entity)
	}
	if err != nil {
		var zero T
		return zero, fmt.Errorf("get %s: %w", t.Entity, err)
	}
	return item, nil
}

// Insert writes the Writable columns of item for userID and returns the new id.
func (t *Table[T]) Insert(ctx context.Context, db DBTX, userID int64, item T, nowNanos int64) (int64, error) {
	cols := append([]string{"user_id"}, t.Writable...)
	cols = append(cols, "created_at", "updated_at")
	args := append([]any{userID}, t.Values(item)...)
	args = append(args, nowNanos, nowNanos)

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.Name, strings.Join(cols, ", "), placeholders(len(cols)))
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", t.Entity, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", t.Entity, err)
	}
	return id, nil
}

// Update replaces the Writable columns of the row id owned by userID.
func (t *Table[T]) Update(ctx context.Context, db DBTX, userID, id int64, item T, nowNanos int64) error {
	sets := make([]string, 0, len(t.Writable)+1)
	for _, c := range t.Writable {
		sets = append(sets, c+" = ?")
	}
	sets = append(sets, "updated_at = ?")
	args := append(t.Values(item), nowNanos, id, userID)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ? AND user_id = ?", t.Name, strings.Join(sets, ", "))
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", t.Entity, err)
	}
	return requireAffected(res, t.Entity)
}

// Delete removes the row id owned by userID.
func (t *Table[T]) Delete(ctx context.Context, db DBTX, userID, id int64) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ? AND user_id = ?", t.Name)
	res, err := db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("delete %s: %w", t.Entity, err)
	}
	return requireAffected(res, t.Entity)
}

// Exists reports whether another row of userID matches every column in key.
// excludeID skips the row being updated; pass 0 on create.
func (t *Table[T]) Exists(ctx context.Context, db DBTX, userID int64, key map[string]any, excludeID int64) (bool, error) {
	clauses := []string{"user_id = ?", "id != ?"}
	args := []any{userID, excludeID}

	cols := make([]string, 0, len(key))
	for c := range key {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	for _, c := range cols {
		clauses = append(clauses, c+" = ?")
		args = append(args, key[c])
	}
	if t.Scope != "" {
		clauses = append(clauses, strings.ReplaceAll(t.Scope, "t.", ""))
	}

	var exists bool
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s)", t.Name, strings.Join(clauses, " AND "))
	if err := db.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check %s uniqueness: %w", t.Entity, err)
	}
	return exists, nil
}

// CountReferences returns, per reference name, how many rows point at id.
// Only references with a non-zero count are included.
func (t *Table[T]) CountReferences(ctx context.Context, db DBTX, id int64) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, ref := range t.References {
		var n int64
		if err := db.QueryRowContext(ctx, ref.Query, id).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s references to %s: %w", ref.Name, t.Entity, err)
		}
		if n > 0 {
			counts[ref.Name] = n
		}
	}
	return counts, nil
}

// OwnsAll reports whether every id in ids is a row owned by userID.
func (t *Table[T]) OwnsAll(ctx context.Context, db DBTX, userID int64, ids []int64) (bool, error) {
	unique := make(map[int64]struct{}, len(ids))
	args := []any{userID}
	for _, id := range ids {
		if _, ok := unique[id]; ok {
			continue
		}
		unique[id] = struct{}{}
		args = append(args, id)
	}
	if len(unique) == 0 {
		return true, nil
	}

	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE user_id = ? AND id IN (%s)", t.Name, placeholders(len(unique)))
	if err := db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("check %s ownership: %w", t.Entity, err)
	}
	return n == len(unique), nil
}

func requireAffected(res sql.Result, entity string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.NotFound(entity)
	}
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
