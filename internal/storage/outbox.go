package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

const (
	OutboxPending    = "pending"
	OutboxProcessing = "processing"
	OutboxCompleted  = "completed"
	OutboxFailed     = "failed"
)

// OutboxEvent is a ledger event waiting to be published.
type OutboxEvent struct {
	ID          int64
	EventID     string
	EventType   string
	AggregateID int64
	Payload     []byte
	Status      string
	Attempts    int
	LastError   string
	CreatedAt   time.Time
}

// OutboxStats counts events per status.
type OutboxStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// EnqueueEvent stores an event in the same transaction as the change it
// describes.
func (t *Tx) EnqueueEvent(ctx context.Context, ev OutboxEvent, now time.Time) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO outbox_events (event_id, event_type, aggregate_id, payload, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.EventID, ev.EventType, ev.AggregateID, string(ev.Payload), OutboxPending, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("enqueue %s event: %w", ev.EventType, err)
	}
	return res.LastInsertId()
}

// DequeueOutboxBatch claims up to limit pending events, oldest first, and
// marks them as processing.
func (r *SQLiteRepository) DequeueOutboxBatch(ctx context.Context, limit int) ([]OutboxEvent, error) {
	var events []OutboxEvent
	err := r.WithTx(ctx, func(t *Tx) error {
		rows, err := t.tx.QueryContext(ctx, `
			SELECT id, event_id, event_type, aggregate_id, payload, status, attempts, last_error, created_at
			FROM outbox_events
			WHERE status = ?
			ORDER BY id
			LIMIT ?`, OutboxPending, limit)
		if err != nil {
			return fmt.Errorf("query pending events: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				ev      OutboxEvent
				payload string
				created string
			)
			if err := rows.Scan(&ev.ID, &ev.EventID, &ev.EventType, &ev.AggregateID, &payload,
				&ev.Status, &ev.Attempts, &ev.LastError, &created); err != nil {
				return fmt.Errorf("scan outbox event: %w", err)
			}
			ev.Payload = []byte(payload)
			if ev.CreatedAt, err = parseTime(created); err != nil {
				return err
			}
			events = append(events, ev)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate outbox events: %w", err)
		}
		rows.Close()

		for i := range events {
			if _, err := t.tx.ExecContext(ctx,
				"UPDATE outbox_events SET status = ? WHERE id = ?", OutboxProcessing, events[i].ID); err != nil {
				return fmt.Errorf("mark event %d processing: %w", events[i].ID, err)
			}
			events[i].Status = OutboxProcessing
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *SQLiteRepository) MarkOutboxCompleted(ctx context.Context, id int64, now time.Time) error {
	return r.setOutboxStatus(ctx, id, OutboxCompleted, "", now)
}

// MarkOutboxFailed gives up on an event.
func (r *SQLiteRepository) MarkOutboxFailed(ctx context.Context, id int64, reason string, now time.Time) error {
	if err := r.setOutboxStatus(ctx, id, OutboxFailed, reason, now); err != nil {
		return err
	}
	slog.WarnContext(ctx, "Outbox event marked as failed", "id", id, "error", reason)
	return nil
}

// IncrementOutboxAttempt records a failed attempt and returns the event to
// the pending state.
func (r *SQLiteRepository) IncrementOutboxAttempt(ctx context.Context, id int64, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx,
		"UPDATE outbox_events SET status = ?, attempts = attempts + 1, last_error = ? WHERE id = ?",
		OutboxPending, reason, id)
	if err != nil {
		return fmt.Errorf("increment attempts of event %d: %w", id, err)
	}
	return nil
}

// ResetStaleProcessing returns events left in processing by a previous run
// to the pending state.
func (r *SQLiteRepository) ResetStaleProcessing(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx,
		"UPDATE outbox_events SET status = ? WHERE status = ?", OutboxPending, OutboxProcessing)
	if err != nil {
		return fmt.Errorf("reset stale events: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.InfoContext(ctx, "Reset stale outbox events", "count", n)
	}
	return nil
}

// RetryFailedOutbox moves every failed event back to pending.
func (r *SQLiteRepository) RetryFailedOutbox(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx,
		"UPDATE outbox_events SET status = ?, attempts = 0 WHERE status = ?", OutboxPending, OutboxFailed)
	if err != nil {
		return 0, fmt.Errorf("retry failed events: %w", err)
	}
	return res.RowsAffected()
}

// CleanupCompletedOutbox deletes completed events processed before cutoff.
func (r *SQLiteRepository) CleanupCompletedOutbox(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx,
		"DELETE FROM outbox_events WHERE status = ? AND processed_at < ?", OutboxCompleted, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("cleanup completed events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Cleaned up completed outbox events", "count", n)
	}
	return n, nil
}

func (r *SQLiteRepository) OutboxStats(ctx context.Context) (OutboxStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM outbox_events GROUP BY status")
	if err != nil {
		return OutboxStats{}, fmt.Errorf("outbox stats: %w", err)
	}
	defer rows.Close()

	var stats OutboxStats
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return OutboxStats{}, fmt.Errorf("scan outbox stats: %w", err)
		}
		switch status {
		case OutboxPending:
			stats.Pending = count
		case OutboxProcessing:
			stats.Processing = count
		case OutboxCompleted:
			stats.Completed = count
		case OutboxFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

func (r *SQLiteRepository) setOutboxStatus(ctx context.Context, id int64, status, reason string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx,
		"UPDATE outbox_events SET status = ?, last_error = ?, processed_at = ? WHERE id = ?",
		status, reason, formatTime(now), id)
	if err != nil {
		return fmt.Errorf("mark event %d %s: %w", id, status, err)
	}
	return rowsAffected(res, fmt.Errorf("outbox event %d: %w", id, sql.ErrNoRows))
}
