package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cassa/internal/amqp"
	"cassa/internal/core"
	"cassa/internal/storage"
)

// EventPublisher delivers ledger events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, msg *amqp.LedgerEventMessage) error
}

// OutboxProcessorConfig holds configuration for the outbox processor
type OutboxProcessorConfig struct {
	// PollInterval is how often to check for pending events (default: 10s)
	PollInterval time.Duration

	// BatchSize is the max number of events to publish per poll cycle (default: 10)
	BatchSize int

	// MaxRetries is the maximum publish attempts before marking as failed (default: 3)
	MaxRetries int

	// CleanupInterval is how often to delete completed events (default: 1h)
	CleanupInterval time.Duration

	// CleanupAge is how old completed events must be before cleanup (default: 24h)
	CleanupAge time.Duration
}

// DefaultOutboxProcessorConfig returns sensible defaults
func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		PollInterval:    10 * time.Second,
		BatchSize:       10,
		MaxRetries:      3,
		CleanupInterval: 1 * time.Hour,
		CleanupAge:      24 * time.Hour,
	}
}

// OutboxProcessor publishes events written to the outbox table by the
// ledger services.
type OutboxProcessor struct {
	storage   *storage.SQLiteRepository
	publisher EventPublisher
	clock     core.Clock
	config    OutboxProcessorConfig

	// Lifecycle management
	mu       sync.Mutex
	running  bool
	stopping bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewOutboxProcessor(
	storage *storage.SQLiteRepository,
	publisher EventPublisher,
	clock core.Clock,
	config OutboxProcessorConfig,
) *OutboxProcessor {
	return &OutboxProcessor{
		storage:   storage,
		publisher: publisher,
		clock:     clock,
		config:    config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *OutboxProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("outbox processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	// Events claimed by a crashed run go back to pending
	if err := p.storage.ResetStaleProcessing(ctx); err != nil {
		slog.WarnContext(ctx, "Failed to reset stale outbox events", "error", err)
	}

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Outbox processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	// A Stop that timed out may be retried; the loop is signalled once.
	if !p.stopping {
		p.stopping = true
		close(p.stopCh)
	}
	done := p.doneCh
	p.mu.Unlock()

	select {
	case <-done:
		slog.InfoContext(ctx, "Outbox processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Outbox processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.stopping = false
	p.mu.Unlock()

	return nil
}

func (p *OutboxProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *OutboxProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(p.config.CleanupInterval)
	defer cleanupTicker.Stop()

	// Process immediately on startup
	p.ProcessBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.ProcessBatch(ctx)
		case <-cleanupTicker.C:
			p.cleanupCompleted(ctx)
		}
	}
}

// ProcessBatch publishes one batch of pending events and returns how many
// were published.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) int {
	events, err := p.storage.DequeueOutboxBatch(ctx, p.config.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to dequeue outbox batch", "error", err)
		return 0
	}
	if len(events) == 0 {
		return 0
	}

	slog.DebugContext(ctx, "Processing outbox batch", "count", len(events))

	published := 0
	for i, ev := range events {
		select {
		case <-p.stopCh:
			p.release(ctx, events[i:])
			return published
		case <-ctx.Done():
			p.release(context.WithoutCancel(ctx), events[i:])
			return published
		default:
		}

		if err := p.publish(ctx, ev); err != nil {
			p.handleFailure(ctx, ev, err)
			continue
		}
		if err := p.storage.MarkOutboxCompleted(ctx, ev.ID, p.clock.Now()); err != nil {
			slog.ErrorContext(ctx, "Failed to mark outbox event completed",
				"id", ev.ID, "error", err)
			continue
		}
		published++
	}
	return published
}

func (p *OutboxProcessor) publish(ctx context.Context, ev storage.OutboxEvent) error {
	if p.publisher == nil {
		return fmt.Errorf("no publisher configured")
	}

	var entry core.LedgerEntry
	if err := json.Unmarshal(ev.Payload, &entry); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	return p.publisher.Publish(ctx, &amqp.LedgerEventMessage{
		EventID:    ev.EventID,
		EventType:  ev.EventType,
		OccurredAt: ev.CreatedAt,
		Entry:      entry,
	})
}

// handleFailure retries an event until MaxRetries attempts, then gives up.
func (p *OutboxProcessor) handleFailure(ctx context.Context, ev storage.OutboxEvent, publishErr error) {
	slog.WarnContext(ctx, "Outbox publish failed",
		"id", ev.ID,
		"event_type", ev.EventType,
		"attempt", ev.Attempts+1,
		"error", publishErr)

	if ev.Attempts+1 >= p.config.MaxRetries {
		if err := p.storage.MarkOutboxFailed(ctx, ev.ID, publishErr.Error(), p.clock.Now()); err != nil {
			slog.ErrorContext(ctx, "Failed to mark outbox event failed", "id", ev.ID, "error", err)
		}
		return
	}

	if err := p.storage.IncrementOutboxAttempt(ctx, ev.ID, publishErr.Error()); err != nil {
		slog.ErrorContext(ctx, "Failed to increment outbox attempt", "id", ev.ID, "error", err)
	}
}

// release returns claimed but unpublished events to pending without
// counting an attempt.
func (p *OutboxProcessor) release(ctx context.Context, events []storage.OutboxEvent) {
	if len(events) == 0 {
		return
	}
	if err := p.storage.ResetStaleProcessing(ctx); err != nil {
		slog.WarnContext(ctx, "Failed to release outbox events", "count", len(events), "error", err)
	}
}

func (p *OutboxProcessor) cleanupCompleted(ctx context.Context) {
	cutoff := p.clock.Now().Add(-p.config.CleanupAge)
	if _, err := p.storage.CleanupCompletedOutbox(ctx, cutoff); err != nil {
		slog.ErrorContext(ctx, "Failed to cleanup completed outbox events", "error", err)
	}
}

// Stats returns current outbox statistics
func (p *OutboxProcessor) Stats(ctx context.Context) (storage.OutboxStats, error) {
	return p.storage.OutboxStats(ctx)
}

// RetryFailed resets all failed events for another round of attempts
func (p *OutboxProcessor) RetryFailed(ctx context.Context) (int64, error) {
	return p.storage.RetryFailedOutbox(ctx)
}
