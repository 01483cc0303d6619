package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// Owner checks that ids belong to a user. Every *storage.Table satisfies it.
type Owner interface {
	OwnsAll(ctx context.Context, db storage.DBTX, userID int64, ids []int64) (bool, error)
}

// OwnedRef is a set of ids in a payload that must point at the caller's rows.
type OwnedRef struct {
	Field string
	Table Owner
	IDs   []int64
}

// UniqueKey is the per-owner uniqueness constraint of an entity.
type UniqueKey struct {
	Columns map[string]any
	Message string
}

// Policy describes how Entity guards one owned collection.
type Policy[T any] struct {
	Kind  core.EntityKind
	Table *storage.Table[T]
	// Prepare trims and canonicalises a payload before validation.
	Prepare  func(*T)
	Validate func(T) error
	// Unique returns nil when the entity has no uniqueness constraint.
	Unique func(T) *UniqueKey
	Refs   func(T) []OwnedRef
	// Merge copies server-owned fields from the stored row into an update payload.
	Merge func(stored T, incoming *T)
}

// Entity implements list/get/create/update/delete for an owned collection.
// Every operation resolves the caller from the context first.
type Entity[T any] struct {
	repo   *storage.SQLiteRepository
	events EventPublisher
	policy Policy[T]
}

func NewEntity[T any](repo *storage.SQLiteRepository, events EventPublisher, policy Policy[T]) *Entity[T] {
	return &Entity[T]{repo: repo, events: events, policy: policy}
}

func (s *Entity[T]) Kind() core.EntityKind {
	return s.policy.Kind
}

func (s *Entity[T]) List(ctx context.Context, req core.PageRequest) (core.Page[T], error) {
	userID, err := core.UserIDFrom(ctx)
	if err != nil {
		return core.Page[T]{}, err
	}
	return s.policy.Table.List(ctx, s.repo.DB(), userID, req)
}

func (s *Entity[T]) Get(ctx context.Context, id int64) (T, error) {
	userID, err := core.UserIDFrom(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.policy.Table.Get(ctx, s.repo.DB(), userID, id)
}

func (s *Entity[T]) Create(ctx context.Context, item T) (T, error) {
	var zero T
	userID, err := core.UserIDFrom(ctx)
	if err != nil {
		return zero, err
	}
	if err := s.check(ctx, userID, &item, 0); err != nil {
		return zero, err
	}

	id, err := s.policy.Table.Insert(ctx, s.repo.DB(), userID, item, s.repo.Now().UnixNano())
	if err != nil {
		return zero, s.writeError(item, err)
	}
	created, err := s.policy.Table.Get(ctx, s.repo.DB(), userID, id)
	if err != nil {
		return zero, err
	}

	slog.InfoContext(ctx, "Entity created",
		log.FieldEntityKind, s.policy.Kind, log.FieldEntityID, id, log.FieldUserID, userID)
	publish(ctx, s.events, s.policy.Kind, id, userID, amqp.OpCreate)
	return created, nil
}

func (s *Entity[T]) Update(ctx context.Context, id int64, item T) (T, error) {
	var zero T
	userID, err := core.UserIDFrom(ctx)
	if err != nil {
		return zero, err
	}
	stored, err := s.policy.Table.Get(ctx, s.repo.DB(), userID, id)
	if err != nil {
		return zero, err
	}
	if s.policy.Merge != nil {
		s.policy.Merge(stored, &item)
	}
	if err := s.check(ctx, userID, &item, id); err != nil {
		return zero, err
	}

	if err := s.policy.Table.Update(ctx, s.repo.DB(), userID, id, item, s.repo.Now().UnixNano()); err != nil {
		return zero, s.writeError(item, err)
	}
	updated, err := s.policy.Table.Get(ctx, s.repo.DB(), userID, id)
	if err != nil {
		return zero, err
	}

	slog.InfoContext(ctx, "Entity updated",
		log.FieldEntityKind, s.policy.Kind, log.FieldEntityID, id, log.FieldUserID, userID)
	publish(ctx, s.events, s.policy.Kind, id, userID, amqp.OpUpdate)
	return updated, nil
}

// Delete removes an entity unless other rows still reference it.
func (s *Entity[T]) Delete(ctx context.Context, id int64) error {
	userID, err := core.UserIDFrom(ctx)
	if err != nil {
		return err
	}
	if _, err := s.policy.Table.Get(ctx, s.repo.DB(), userID, id); err != nil {
		return err
	}

	refs, err := s.policy.Table.CountReferences(ctx, s.repo.DB(), id)
	if err != nil {
		return err
	}
	if len(refs) > 0 {
		return core.Conflict("cannot delete %s: %s", s.policy.Table.Entity, describeReferences(refs))
	}

	if err := s.policy.Table.Delete(ctx, s.repo.DB(), userID, id); err != nil {
		if storage.IsForeignKeyViolation(err) {
			return core.Conflict("cannot delete %s: it is still in use", s.policy.Table.Entity)
		}
		return err
	}

	slog.InfoContext(ctx, "Entity deleted",
		log.FieldEntityKind, s.policy.Kind, log.FieldEntityID, id, log.FieldUserID, userID)
	publish(ctx, s.events, s.policy.Kind, id, userID, amqp.OpDelete)
	return nil
}

// check normalises and validates item, then verifies references and uniqueness.
// excludeID is the row being updated, 0 on create.
func (s *Entity[T]) check(ctx context.Context, userID int64, item *T, excludeID int64) error {
	if s.policy.Prepare != nil {
		s.policy.Prepare(item)
	}
	if s.policy.Validate != nil {
		if err := s.policy.Validate(*item); err != nil {
			return core.Invalid(err)
		}
	}
	if s.policy.Refs != nil {
		if err := checkOwned(ctx, s.repo.DB(), userID, s.policy.Refs(*item)); err != nil {
			return err
		}
	}
	if s.policy.Unique != nil {
		if key := s.policy.Unique(*item); key != nil {
			exists, err := s.policy.Table.Exists(ctx, s.repo.DB(), userID, key.Columns, excludeID)
			if err != nil {
				return err
			}
			if exists {
				return core.Conflict("%s", key.Message)
			}
		}
	}
	return nil
}

// writeError maps a constraint failure that raced past check to Conflict.
func (s *Entity[T]) writeError(item T, err error) error {
	if storage.IsUniqueViolation(err) && s.policy.Unique != nil {
		if key := s.policy.Unique(item); key != nil {
			return core.Conflict("%s", key.Message)
		}
	}
	return err
}

func checkOwned(ctx context.Context, db storage.DBTX, userID int64, refs []OwnedRef) error {
	for _, ref := range refs {
		if len(ref.IDs) == 0 {
			continue
		}
		ok, err := ref.Table.OwnsAll(ctx, db, userID, ref.IDs)
		if err != nil {
			return err
		}
		if !ok {
			return core.InvalidArgument("%s does not reference one of your records", ref.Field)
		}
	}
	return nil
}

func describeReferences(refs map[string]int64) string {
	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("used by %d %s", refs[name], name)
	}
	return strings.Join(parts, ", ")
}
