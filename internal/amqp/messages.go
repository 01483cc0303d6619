package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
)

// Op is the write that produced an event.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// EntityEvent announces a committed write. It carries ids only; consumers
// read the current state from the database.
type EntityEvent struct {
	ID        string          `json:"id"`
	Kind      core.EntityKind `json:"kind"`
	EntityID  int64           `json:"entityId"`
	UserID    int64           `json:"userId"`
	Op        Op              `json:"op"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEntityEvent creates an event with a fresh id.
func NewEntityEvent(kind core.EntityKind, entityID, userID int64, op Op) *EntityEvent {
	return &EntityEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		EntityID:  entityID,
		UserID:    userID,
		Op:        op,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *EntityEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EntityEventFromJSON decodes and sanity-checks an event body.
func EntityEventFromJSON(data []byte) (*EntityEvent, error) {
	var ev EntityEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if _, ok := core.ParseEntityKind(string(ev.Kind)); !ok {
		return nil, fmt.Errorf("unknown entity kind %q", ev.Kind)
	}
	if _, err := uuid.Parse(ev.ID); err != nil {
		return nil, fmt.Errorf("invalid event id: %w", err)
	}
	return &ev, nil
}
