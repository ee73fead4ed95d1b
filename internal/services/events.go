package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cassa/internal/core"
	"cassa/internal/storage"
)

// enqueueEntry writes a ledger entry to the outbox inside tx.
func enqueueEntry(ctx context.Context, tx *storage.Tx, eventType string, entry core.LedgerEntry, now time.Time) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	_, err = tx.EnqueueEvent(ctx, storage.OutboxEvent{
		EventID:     uuid.NewString(),
		EventType:   eventType,
		AggregateID: entry.RefID,
		Payload:     payload,
	}, now)
	return err
}
