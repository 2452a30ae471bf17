package reversal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mgthompo1/tapkernel/config"
	"github.com/mgthompo1/tapkernel/internal/adapters/persistence/memory"
)

func testConfig() config.ReversalConfig {
	return config.ReversalConfig{
		RetryInterval:       30 * time.Second,
		BackoffBase:         5 * time.Second,
		MaxBackoff:          5 * time.Minute,
		MaxAttempts:         100,
		EscalationThreshold: time.Hour,
		CompletedRetention:  24 * time.Hour,
	}
}

func newQueue(t *testing.T) (*Queue, *memory.Store) {
	t.Helper()
	store := memory.New()
	q, err := NewQueue(context.Background(), store, testConfig(), zap.NewNop())
	require.NoError(t, err)
	return q, store
}

func pendingRecord(id string) Record {
	return Record{
		ReversalID:            id,
		OriginalTransactionID: "txn-1",
		Amount:                2500,
		Currency:              "0840",
		MaskedPAN:             "476174******0012",
		Cryptogram:            "1122334455667788",
		CryptogramType:        "ARQC",
		Reason:                ReasonCommunicationError,
	}
}

func TestBackoffSequence(t *testing.T) {
	base := 5 * time.Second
	cap := 5 * time.Minute

	// min(base * 2^i, cap) for each attempt count
	expected := []time.Duration{
		5 * time.Second,
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		80 * time.Second,
		160 * time.Second,
		5 * time.Minute,
		5 * time.Minute,
	}
	for i, want := range expected {
		assert.Equal(t, want, Backoff(i, base, cap), "attempt %d", i)
	}

	assert.Equal(t, base, Backoff(-1, base, cap))
	// large attempt counts must not overflow past the cap
	assert.Equal(t, cap, Backoff(500, base, cap))
}

func TestEnqueueIdempotent(t *testing.T) {
	q, _ := newQueue(t)

	first, err := q.Enqueue(context.Background(), pendingRecord("rev-1"))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, first.Status)
	assert.Equal(t, 0, first.Attempts)

	// same reversal_id is a no-op
	again, err := q.Enqueue(context.Background(), pendingRecord("rev-1"))
	require.NoError(t, err)
	assert.Equal(t, first.ReversalID, again.ReversalID)
	assert.Len(t, q.Snapshot(), 1)
}

func TestEnqueueAssignsID(t *testing.T) {
	q, _ := newQueue(t)

	rec := pendingRecord("")
	stored, err := q.Enqueue(context.Background(), rec)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ReversalID)
}

func TestPersistenceRoundTrip(t *testing.T) {
	q, store := newQueue(t)

	_, err := q.Enqueue(context.Background(), pendingRecord("rev-1"))
	require.NoError(t, err)
	_, err = q.MarkInProgress(context.Background(), "rev-1")
	require.NoError(t, err)

	// a reloaded queue resumes claimed records as pending
	reloaded, err := NewQueue(context.Background(), store, testConfig(), zap.NewNop())
	require.NoError(t, err)
	rec, ok := reloaded.Get("rev-1")
	require.True(t, ok)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, 1, rec.Attempts)
}

func TestDueHonoursBackoff(t *testing.T) {
	q, _ := newQueue(t)

	_, err := q.Enqueue(context.Background(), pendingRecord("rev-1"))
	require.NoError(t, err)

	now := time.Now().UTC()
	assert.Len(t, q.Due(now), 1, "fresh record is due immediately")

	_, err = q.MarkInProgress(context.Background(), "rev-1")
	require.NoError(t, err)
	_, err = q.MarkPendingAgain(context.Background(), "rev-1", "acquirer timeout")
	require.NoError(t, err)

	// first attempt happened just now: due again only after base * 2
	assert.Empty(t, q.Due(now))
	assert.Len(t, q.Due(now.Add(11*time.Second)), 1)
}

func TestStatusTransitions(t *testing.T) {
	q, _ := newQueue(t)

	_, err := q.Enqueue(context.Background(), pendingRecord("rev-1"))
	require.NoError(t, err)

	claimed, err := q.MarkInProgress(context.Background(), "rev-1")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, claimed.Status)
	assert.Equal(t, 1, claimed.Attempts)

	done, err := q.MarkCompleted(context.Background(), "rev-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.False(t, done.CompletedAt.IsZero())
	assert.True(t, done.Status.Terminal())

	_, err = q.MarkInProgress(context.Background(), "missing")
	assert.Error(t, err)
}

func TestManualClear(t *testing.T) {
	q, _ := newQueue(t)

	_, err := q.Enqueue(context.Background(), pendingRecord("rev-1"))
	require.NoError(t, err)

	cleared, err := q.ManuallyClear(context.Background(), "rev-1")
	require.NoError(t, err)
	assert.Equal(t, StatusManuallyCleared, cleared.Status)
}

func TestAgedRecordsEscalateOnce(t *testing.T) {
	q, _ := newQueue(t)

	rec := pendingRecord("rev-1")
	rec.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	_, err := q.Enqueue(context.Background(), rec)
	require.NoError(t, err)

	aged := q.Aged(time.Now().UTC())
	require.Len(t, aged, 1)

	_, err = q.MarkEscalated(context.Background(), "rev-1")
	require.NoError(t, err)
	assert.Empty(t, q.Aged(time.Now().UTC()))
}

func TestSweepCompletedRespectsRetention(t *testing.T) {
	store := memory.New()
	cfg := testConfig()
	cfg.CompletedRetention = time.Millisecond
	q, err := NewQueue(context.Background(), store, cfg, zap.NewNop())
	require.NoError(t, err)

	_, err = q.Enqueue(context.Background(), pendingRecord("rev-1"))
	require.NoError(t, err)
	_, err = q.MarkCompleted(context.Background(), "rev-1")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, q.SweepCompleted(context.Background()))

	// removed from the durable store but still pending in no list
	assert.Empty(t, q.Snapshot())
	keys, err := store.List(context.Background(), "reversal")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
