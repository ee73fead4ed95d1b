package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"cassa/internal/amqp"
	"cassa/internal/cache"
	"cassa/internal/core"
	"cassa/internal/log"
	"cassa/internal/sheets"
)

const (
	dedupeSize = 10000
	dedupeTTL  = 24 * time.Hour

	minRetryDelay = 1 * time.Second
	maxRetryDelay = 30 * time.Second
)

// EventConsumer delivers ledger events to a handler until the context ends
// or the connection drops.
type EventConsumer interface {
	Consume(ctx context.Context, handler func(context.Context, *amqp.LedgerEventMessage) error) error
}

// ExportWorker appends ledger events received from the broker to a sheet.
// Redelivered events are skipped by event id.
type ExportWorker struct {
	sink     sheets.LedgerWriter
	seen     *cache.LRUCache[string]
	appended atomic.Int64
	skipped  atomic.Int64

	retryDelay func(attempt int) time.Duration
}

func NewExportWorker(sink sheets.LedgerWriter) *ExportWorker {
	return &ExportWorker{
		sink:       sink,
		seen:       cache.NewLRUCache[string](dedupeSize, dedupeTTL),
		retryDelay: retryDelay,
	}
}

// HandleEvent appends one event. Invalid entries are dropped with a warning
// so they are acked instead of requeued forever.
func (w *ExportWorker) HandleEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	if ref, dup := w.seen.Get(msg.EventID); dup {
		w.skipped.Add(1)
		slog.DebugContext(ctx, "Skipping duplicate ledger event",
			log.FieldEventID, msg.EventID,
			log.FieldSinkRef, ref)
		return nil
	}

	ref, err := w.sink.Append(ctx, msg.Entry)
	if err != nil {
		if core.IsValidation(err) {
			slog.WarnContext(ctx, "Dropping invalid ledger event",
				log.FieldEventID, msg.EventID,
				log.FieldErrorType, log.ErrorTypeValidation,
				"event_type", msg.EventType,
				"error", err)
			return nil
		}
		return fmt.Errorf("append %s to sheet: %w", msg.EventID, err)
	}

	w.seen.Set(msg.EventID, ref)
	w.appended.Add(1)

	slog.InfoContext(ctx, "Exported ledger event",
		log.FieldOperation, log.OpAppend,
		log.FieldEventID, msg.EventID,
		"event_type", msg.EventType,
		log.FieldEntryKind, msg.Entry.Kind,
		log.FieldEntryRef, msg.Entry.RefID,
		log.FieldAmountCents, msg.Entry.Amount.Cents,
		log.FieldSinkRef, ref)
	return nil
}

// Run consumes events until ctx is cancelled, resubscribing with backoff
// whenever the consumer returns.
func (w *ExportWorker) Run(ctx context.Context, consumer EventConsumer) error {
	for attempt := 0; ; attempt++ {
		err := consumer.Consume(ctx, w.HandleEvent)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil || errors.Is(err, context.Canceled) {
			attempt = -1
		}

		delay := w.retryDelay(attempt)
		slog.WarnContext(ctx, "Ledger event consumer stopped, resubscribing",
			"error", err,
			"attempt", attempt+1,
			"delay", delay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// Stats reports how many events were appended and skipped as duplicates.
func (w *ExportWorker) Stats() (appended, skipped int64) {
	return w.appended.Load(), w.skipped.Load()
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		return minRetryDelay
	}
	d := minRetryDelay << uint(min(attempt, 5))
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}
