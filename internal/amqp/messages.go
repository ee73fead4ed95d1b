package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cassa/internal/core"
)

// Event types carried on the ledger exchange.
const (
	EventTransactionSettled = "transaction.settled"
	EventExpenseRecorded    = "expense.recorded"
	EventIncomeRecorded     = "income.recorded"
)

// LedgerEventMessage announces a recorded change. EventID is stable across
// redeliveries so consumers can drop duplicates.
type LedgerEventMessage struct {
	EventID    string           `json:"event_id"`
	EventType  string           `json:"event_type"`
	OccurredAt time.Time        `json:"occurred_at"`
	Entry      core.LedgerEntry `json:"entry"`
}

// NewLedgerEventMessage creates a message with a fresh event id
func NewLedgerEventMessage(eventType string, entry core.LedgerEntry) *LedgerEventMessage {
	return &LedgerEventMessage{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Entry:      entry,
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventMessageFromJSON decodes and validates a message
func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.EventID == "" {
		return nil, fmt.Errorf("missing event id")
	}
	if err := msg.Entry.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
