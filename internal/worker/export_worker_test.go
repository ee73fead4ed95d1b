package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cassa/internal/amqp"
	"cassa/internal/core"
	"cassa/internal/log"
	"cassa/internal/sheets/memory"
)

func ledgerMessage(t *testing.T, kind string) *amqp.LedgerEventMessage {
	t.Helper()
	return amqp.NewLedgerEventMessage(amqp.EventExpenseRecorded, core.LedgerEntry{
		Kind:   kind,
		RefID:  1,
		Date:   time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		Label:  "Food",
		Amount: core.Money{Cents: 500},
	})
}

func TestHandleEvent_AppendsOnce(t *testing.T) {
	sink := memory.New()
	w := NewExportWorker(sink)
	ctx := context.Background()
	msg := ledgerMessage(t, core.EntryExpense)

	require.NoError(t, w.HandleEvent(ctx, msg))
	require.NoError(t, w.HandleEvent(ctx, msg))

	assert.Equal(t, 1, sink.Len())
	appended, skipped := w.Stats()
	assert.Equal(t, int64(1), appended)
	assert.Equal(t, int64(1), skipped)
}

func TestHandleEvent_DropsInvalidEntries(t *testing.T) {
	sink := memory.New()
	w := NewExportWorker(sink)

	msg := ledgerMessage(t, core.EntryExpense)
	msg.Entry.Label = ""

	require.NoError(t, w.HandleEvent(context.Background(), msg))
	assert.Equal(t, 0, sink.Len())
}

func TestHandleEvent_LogsSharedFields(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	w := NewExportWorker(memory.New())
	msg := ledgerMessage(t, core.EntryExpense)
	require.NoError(t, w.HandleEvent(context.Background(), msg))
	require.NoError(t, w.HandleEvent(context.Background(), msg))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		assert.Equal(t, msg.EventID, rec[log.FieldEventID])
		assert.NotEmpty(t, rec[log.FieldSinkRef])
	}

	var exported map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &exported))
	assert.Equal(t, log.OpAppend, exported[log.FieldOperation])
	assert.Equal(t, core.EntryExpense, exported[log.FieldEntryKind])
	assert.Equal(t, float64(500), exported[log.FieldAmountCents])
}

type failingSink struct{ err error }

func (f failingSink) Append(context.Context, core.LedgerEntry) (string, error) {
	return "", f.err
}

func TestHandleEvent_SinkErrorRequeues(t *testing.T) {
	w := NewExportWorker(failingSink{err: errors.New("quota exceeded")})
	msg := ledgerMessage(t, core.EntryIncome)

	err := w.HandleEvent(context.Background(), msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	_, dup := w.seen.Get(msg.EventID)
	assert.False(t, dup, "failed events must be retried on redelivery")
}

// scriptedConsumer delivers its messages on the first call and fails the
// following calls until the context ends.
type scriptedConsumer struct {
	mu    sync.Mutex
	calls int
	msgs  []*amqp.LedgerEventMessage
}

func (c *scriptedConsumer) Consume(ctx context.Context, handler func(context.Context, *amqp.LedgerEventMessage) error) error {
	c.mu.Lock()
	c.calls++
	first := c.calls == 1
	c.mu.Unlock()

	if first {
		for _, m := range c.msgs {
			if err := handler(ctx, m); err != nil {
				return err
			}
		}
	}
	return errors.New("channel closed")
}

func (c *scriptedConsumer) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestRun_ResubscribesUntilCancelled(t *testing.T) {
	sink := memory.New()
	w := NewExportWorker(sink)
	w.retryDelay = func(int) time.Duration { return time.Millisecond }

	consumer := &scriptedConsumer{msgs: []*amqp.LedgerEventMessage{
		ledgerMessage(t, core.EntryExpense),
		ledgerMessage(t, core.EntryPurchase),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, consumer) }()

	require.Eventually(t, func() bool { return consumer.callCount() >= 3 }, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 2, sink.Len())
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{-1, time.Second},
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{5, 30 * time.Second},
		{50, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := retryDelay(tt.attempt); got != tt.want {
			t.Errorf("retryDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
