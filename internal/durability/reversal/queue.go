// Package reversal implements the durable reversal queue: at-least-once
// delivery to the acquirer with exponential backoff, attempt caps,
// escalation of aged records and a 24 h audit window for completed ones.
package reversal

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/mgthompo1/tapkernel/config"
	"github.com/mgthompo1/tapkernel/internal/capability"
	"github.com/mgthompo1/tapkernel/internal/metrics"
	"github.com/mgthompo1/tapkernel/pkg/errors"
)

const namespace = "reversal"

// Reason is why the reversal was queued.
type Reason string

const (
	ReasonTimeout              Reason = "timeout"
	ReasonCardRemoved          Reason = "card_removed"
	ReasonCommunicationError   Reason = "communication_error"
	ReasonUserCancelled        Reason = "user_cancelled"
	ReasonPartialCompletion    Reason = "partial_completion"
	ReasonDuplicateTransaction Reason = "duplicate_transaction"
	ReasonSystemError          Reason = "system_error"
)

// Status is the delivery state. It moves forward only, except for the
// Pending and InProgress oscillation while the dispatcher works.
type Status string

const (
	StatusPending         Status = "pending"
	StatusInProgress      Status = "in_progress"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
	StatusManuallyCleared Status = "manually_cleared"
)

// Terminal reports whether no further delivery is attempted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusManuallyCleared
}

// Record is one queued reversal. The PAN is stored masked; the
// cryptogram is what the acquirer needs to void the authorization.
type Record struct {
	ReversalID            string    `json:"reversal_id"`
	OriginalTransactionID string    `json:"original_transaction_id"`
	Amount                int64     `json:"amount"`
	Currency              string    `json:"currency"`
	MaskedPAN             string    `json:"masked_pan"`
	PSN                   string    `json:"psn"`
	Cryptogram            string    `json:"cryptogram"`
	CryptogramType        string    `json:"cryptogram_type"`
	Reason                Reason    `json:"reason"`
	CreatedAt             time.Time `json:"created_at"`
	Attempts              int       `json:"attempts"`
	LastAttemptAt         time.Time `json:"last_attempt_at"`
	LastError             string    `json:"last_error,omitempty"`
	Status                Status    `json:"status"`
	CompletedAt           time.Time `json:"completed_at,omitempty"`
	Escalated             bool      `json:"escalated"`
}

// Backoff is the delay before attempt n+1: min(base·2^attempts, cap).
func Backoff(attempts int, base, cap time.Duration) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	backoff := base
	for i := 0; i < attempts; i++ {
		backoff *= 2
		if backoff >= cap {
			return cap
		}
	}
	if backoff > cap {
		return cap
	}
	return backoff
}

// Queue is the durable reversal store. Every mutation persists the
// record before returning; delivery itself lives in the Dispatcher.
type Queue struct {
	mu      sync.Mutex
	records map[string]Record

	store  capability.Persistence
	cfg    config.ReversalConfig
	logger *zap.Logger

	// completed records stay observable for the audit window after
	// their durable copy is removed
	audit *gocache.Cache
}

// NewQueue loads the persisted records.
func NewQueue(ctx context.Context, store capability.Persistence, cfg config.ReversalConfig, logger *zap.Logger) (*Queue, error) {
	q := &Queue{
		records: make(map[string]Record),
		store:   store,
		cfg:     cfg,
		logger:  logger,
		audit:   gocache.New(cfg.CompletedRetention, cfg.CompletedRetention),
	}

	keys, err := store.List(ctx, namespace)
	if err != nil && !errors.Is(err, capability.ErrNotFound) {
		return nil, errors.Capability("persistence", err)
	}
	for _, key := range keys {
		data, err := store.Read(ctx, namespace, key)
		if err != nil {
			return nil, errors.Capability("persistence", err)
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, errors.Capability("persistence", err)
		}
		// in-progress records from a crashed process resume as pending
		if rec.Status == StatusInProgress {
			rec.Status = StatusPending
		}
		q.records[rec.ReversalID] = rec
	}
	q.updateDepth()
	return q, nil
}

func (q *Queue) persist(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Capability("persistence", err)
	}
	if err := q.store.Write(ctx, namespace, rec.ReversalID, data); err != nil {
		return errors.Capability("persistence", err)
	}
	return nil
}

func (q *Queue) updateDepth() {
	pending := 0
	for _, rec := range q.records {
		if rec.Status == StatusPending || rec.Status == StatusInProgress {
			pending++
		}
	}
	metrics.ReversalQueueDepth.Set(float64(pending))
}

// Enqueue persists a new reversal. Re-enqueueing an existing reversal_id
// is a no-op so callers can safely retry.
func (q *Queue) Enqueue(ctx context.Context, rec Record) (Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if rec.ReversalID == "" {
		rec.ReversalID = uuid.New().String()
	}
	if existing, ok := q.records[rec.ReversalID]; ok {
		return existing, nil
	}

	rec.Status = StatusPending
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	if err := q.persist(ctx, rec); err != nil {
		return Record{}, err
	}
	q.records[rec.ReversalID] = rec
	q.updateDepth()

	q.logger.Info("reversal queued",
		zap.String("reversal_id", rec.ReversalID),
		zap.String("reason", string(rec.Reason)),
		zap.String("masked_pan", rec.MaskedPAN),
		zap.Int64("amount", rec.Amount),
	)
	return rec, nil
}

// Due returns the pending records whose backoff has elapsed.
func (q *Queue) Due(now time.Time) []Record {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Record
	for _, rec := range q.records {
		if rec.Status != StatusPending {
			continue
		}
		wait := Backoff(rec.Attempts, q.cfg.BackoffBase, q.cfg.MaxBackoff)
		if rec.LastAttemptAt.IsZero() || !now.Before(rec.LastAttemptAt.Add(wait)) {
			out = append(out, rec)
		}
	}
	return out
}

// Aged returns pending records older than the escalation threshold that
// have not been escalated yet.
func (q *Queue) Aged(now time.Time) []Record {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Record
	for _, rec := range q.records {
		if rec.Status == StatusPending && !rec.Escalated && now.Sub(rec.CreatedAt) > q.cfg.EscalationThreshold {
			out = append(out, rec)
		}
	}
	return out
}

// Get returns a record by id, consulting the audit cache for records
// already removed from the durable store.
func (q *Queue) Get(reversalID string) (Record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if rec, ok := q.records[reversalID]; ok {
		return rec, true
	}
	if cached, ok := q.audit.Get(reversalID); ok {
		return cached.(Record), true
	}
	return Record{}, false
}

// Snapshot copies every live record.
func (q *Queue) Snapshot() []Record {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Record, 0, len(q.records))
	for _, rec := range q.records {
		out = append(out, rec)
	}
	return out
}

// update applies fn to a record under the lock and persists the result.
func (q *Queue) update(ctx context.Context, reversalID string, fn func(*Record)) (Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec, ok := q.records[reversalID]
	if !ok {
		return Record{}, errors.ErrMissingMandatoryData.WithMessage("reversal %s not found", reversalID)
	}
	fn(&rec)
	if err := q.persist(ctx, rec); err != nil {
		return Record{}, err
	}
	q.records[reversalID] = rec
	q.updateDepth()
	return rec, nil
}

// MarkInProgress claims a record for delivery.
func (q *Queue) MarkInProgress(ctx context.Context, reversalID string) (Record, error) {
	return q.update(ctx, reversalID, func(rec *Record) {
		rec.Status = StatusInProgress
		rec.Attempts++
		rec.LastAttemptAt = time.Now().UTC()
	})
}

// MarkCompleted finalizes a delivered record.
func (q *Queue) MarkCompleted(ctx context.Context, reversalID string) (Record, error) {
	rec, err := q.update(ctx, reversalID, func(rec *Record) {
		rec.Status = StatusCompleted
		rec.CompletedAt = time.Now().UTC()
	})
	if err != nil {
		return Record{}, err
	}
	q.audit.Set(rec.ReversalID, rec, q.cfg.CompletedRetention)
	return rec, nil
}

// MarkFailed parks a record permanently.
func (q *Queue) MarkFailed(ctx context.Context, reversalID, reason string) (Record, error) {
	return q.update(ctx, reversalID, func(rec *Record) {
		rec.Status = StatusFailed
		rec.LastError = reason
	})
}

// MarkPendingAgain releases a claimed record back for retry.
func (q *Queue) MarkPendingAgain(ctx context.Context, reversalID, lastError string) (Record, error) {
	return q.update(ctx, reversalID, func(rec *Record) {
		rec.Status = StatusPending
		rec.LastError = lastError
	})
}

// MarkEscalated flags a record so the escalation signal fires once.
func (q *Queue) MarkEscalated(ctx context.Context, reversalID string) (Record, error) {
	return q.update(ctx, reversalID, func(rec *Record) {
		rec.Escalated = true
	})
}

// ManuallyClear resolves a record by operator action.
func (q *Queue) ManuallyClear(ctx context.Context, reversalID string) (Record, error) {
	return q.update(ctx, reversalID, func(rec *Record) {
		rec.Status = StatusManuallyCleared
		rec.CompletedAt = time.Now().UTC()
	})
}

// MaxAttempts exposes the configured delivery cap.
func (q *Queue) MaxAttempts() int { return q.cfg.MaxAttempts }

// SweepCompleted removes terminal records older than the audit window
// from the durable store; they remain readable via the audit cache until
// the cache entry expires.
func (q *Queue) SweepCompleted(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := time.Now().UTC().Add(-q.cfg.CompletedRetention)
	for id, rec := range q.records {
		if !rec.Status.Terminal() {
			continue
		}
		reference := rec.CompletedAt
		if reference.IsZero() {
			reference = rec.LastAttemptAt
		}
		if reference.IsZero() || reference.After(cutoff) {
			continue
		}
		if err := q.store.Delete(ctx, namespace, id); err != nil && !errors.Is(err, capability.ErrNotFound) {
			return errors.Capability("persistence", err)
		}
		delete(q.records, id)
	}
	q.updateDepth()
	return nil
}
