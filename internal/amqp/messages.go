package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind names what changed in the ledger.
type EventKind string

const (
	EventImportCompleted EventKind = "import.completed"
	EventLedgerUpdated   EventKind = "ledger.updated"
	EventGoalChanged     EventKind = "goal.changed"
)

// LedgerEvent is a small notification that the ledger or budget goals changed.
// Consumers read current state from the database; the event only says what to refresh.
type LedgerEvent struct {
	Kind      EventKind `json:"kind"`
	BatchID   string    `json:"batch_id,omitempty"`
	Month     string    `json:"month,omitempty"` // YYYY-MM affected, empty for "all months"
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerEvent stamps an event with the current time.
func NewLedgerEvent(kind EventKind, batchID, month string, count int) *LedgerEvent {
	return &LedgerEvent{
		Kind:      kind,
		BatchID:   batchID,
		Month:     month,
		Count:     count,
		Timestamp: time.Now(),
	}
}

func (e *LedgerEvent) Validate() error {
	switch e.Kind {
	case EventImportCompleted, EventLedgerUpdated, EventGoalChanged:
		return nil
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
}

// ToJSON converts the event to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes and validates an event.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
