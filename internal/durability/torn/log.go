// Package torn keeps the durable log of interrupted transactions: a
// capped ring of records written between GPO acknowledgement and the
// second AC response, with card-side recovery probes on the next
// presentation of the same card.
package torn

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mgthompo1/tapkernel/config"
	"github.com/mgthompo1/tapkernel/internal/capability"
	"github.com/mgthompo1/tapkernel/internal/metrics"
	"github.com/mgthompo1/tapkernel/pkg/errors"
)

const (
	namespace = "torn"
	logKey    = "log"
)

// Phase marks how far the interrupted transaction had progressed.
type Phase string

const (
	PhaseBeforeGenerateAC    Phase = "before_generate_ac"
	PhaseAfterGenerateACSent Phase = "after_generate_ac_sent"
	PhaseDuringResponse      Phase = "during_response"
)

// rank orders phases so "at or past AfterGenerateACSent" is expressible.
func (p Phase) rank() int {
	switch p {
	case PhaseAfterGenerateACSent:
		return 1
	case PhaseDuringResponse:
		return 2
	default:
		return 0
	}
}

// RequiresReversal reports whether a record abandoned at this phase left
// a cryptogram the acquirer may have seen.
func (p Phase) RequiresReversal() bool {
	return p.rank() >= PhaseAfterGenerateACSent.rank()
}

// Status is the recovery state of a torn record.
type Status string

const (
	StatusPendingRecovery Status = "pending_recovery"
	StatusRecovered       Status = "recovered"
	StatusFailed          Status = "failed"
)

// Record is one torn transaction. Only the PAN hash and last four
// digits are retained; the clear PAN never reaches the log.
type Record struct {
	RecordID      string    `json:"record_id"`
	TransactionID string    `json:"transaction_id"`
	PANHash       string    `json:"pan_hash"`
	PANLast4      string    `json:"pan_last4"`
	PSN           string    `json:"psn"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	ATC           string    `json:"atc"`
	AID           string    `json:"aid"`
	Scheme        string    `json:"scheme"`
	CreatedAt     time.Time `json:"created_at"`
	Phase         Phase     `json:"phase"`
	Attempts      int       `json:"attempts"`
	LastAttemptAt time.Time `json:"last_attempt_at"`
	Status        Status    `json:"status"`

	RecoveredCryptogram string `json:"recovered_cryptogram,omitempty"`
}

// EvictFunc receives records pushed out of the ring or exhausted by
// recovery so the caller can queue a reversal.
type EvictFunc func(ctx context.Context, rec Record)

// Log is the capped torn-transaction ring. Every mutation persists the
// whole list before returning.
type Log struct {
	mu      sync.Mutex
	records []Record // oldest first

	store   capability.Persistence
	cfg     config.TornConfig
	logger  *zap.Logger
	onEvict EvictFunc
}

// NewLog loads the persisted ring.
func NewLog(ctx context.Context, store capability.Persistence, cfg config.TornConfig, logger *zap.Logger) (*Log, error) {
	l := &Log{store: store, cfg: cfg, logger: logger}

	data, err := store.Read(ctx, namespace, logKey)
	if err != nil && !errors.Is(err, capability.ErrNotFound) {
		return nil, errors.Capability("persistence", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &l.records); err != nil {
			return nil, errors.Capability("persistence", err)
		}
	}
	metrics.TornRecords.Set(float64(len(l.records)))
	return l, nil
}

// OnEvict installs the reversal hook invoked for evicted or exhausted
// records whose phase requires one.
func (l *Log) OnEvict(fn EvictFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onEvict = fn
}

func (l *Log) persist(ctx context.Context) error {
	data, err := json.Marshal(l.records)
	if err != nil {
		return errors.Capability("persistence", err)
	}
	if err := l.store.Write(ctx, namespace, logKey, data); err != nil {
		return errors.Capability("persistence", err)
	}
	metrics.TornRecords.Set(float64(len(l.records)))
	return nil
}

// Append records a torn transaction. When the ring is full the oldest
// record is evicted; an evicted record at or past AfterGenerateACSent is
// handed to the reversal hook.
func (l *Log) Append(ctx context.Context, rec Record) (Record, error) {
	l.mu.Lock()

	if rec.RecordID == "" {
		rec.RecordID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.Status = StatusPendingRecovery

	var evicted *Record
	if len(l.records) >= l.cfg.Capacity {
		oldest := l.records[0]
		l.records = append(l.records[:0], l.records[1:]...)
		evicted = &oldest
	}
	l.records = append(l.records, rec)

	err := l.persist(ctx)
	onEvict := l.onEvict
	l.mu.Unlock()

	if err != nil {
		return Record{}, err
	}

	l.logger.Info("torn transaction recorded",
		zap.String("record_id", rec.RecordID),
		zap.String("phase", string(rec.Phase)),
		zap.String("pan_last4", rec.PANLast4),
	)

	if evicted != nil {
		l.logger.Warn("torn log full, oldest record evicted",
			zap.String("evicted_record_id", evicted.RecordID),
		)
		if evicted.Phase.RequiresReversal() && onEvict != nil {
			onEvict(ctx, *evicted)
		}
	}
	return rec, nil
}

// PendingFor returns the pending records matching a PAN hash.
func (l *Log) PendingFor(panHash string) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Record
	for _, rec := range l.records {
		if rec.Status == StatusPendingRecovery && rec.PANHash == panHash {
			out = append(out, rec)
		}
	}
	return out
}

// Pending returns every record still awaiting recovery.
func (l *Log) Pending() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Record
	for _, rec := range l.records {
		if rec.Status == StatusPendingRecovery {
			out = append(out, rec)
		}
	}
	return out
}

// Snapshot copies the full ring, oldest first.
func (l *Log) Snapshot() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// MarkRecovered finalizes a record, optionally attaching the cryptogram
// the card reported.
func (l *Log) MarkRecovered(ctx context.Context, recordID, cryptogram string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.records {
		if l.records[i].RecordID == recordID {
			l.records[i].Status = StatusRecovered
			l.records[i].RecoveredCryptogram = cryptogram
			return l.persist(ctx)
		}
	}
	return errors.ErrMissingMandatoryData.WithMessage("torn record %s not found", recordID)
}

// RecordAttempt counts a failed recovery probe. Exceeding the attempt
// budget fails the record and hands it to the reversal hook.
func (l *Log) RecordAttempt(ctx context.Context, recordID string) (exhausted bool, err error) {
	l.mu.Lock()

	var failed *Record
	for i := range l.records {
		if l.records[i].RecordID != recordID {
			continue
		}
		l.records[i].Attempts++
		l.records[i].LastAttemptAt = time.Now().UTC()
		if l.records[i].Attempts > l.cfg.MaxRecoveryAttempts {
			l.records[i].Status = StatusFailed
			failed = &l.records[i]
		}
		err = l.persist(ctx)
		break
	}
	onEvict := l.onEvict
	l.mu.Unlock()

	if err != nil {
		return false, err
	}
	if failed != nil {
		l.logger.Warn("torn recovery exhausted",
			zap.String("record_id", failed.RecordID),
			zap.Int("attempts", failed.Attempts),
		)
		if failed.Phase.RequiresReversal() && onEvict != nil {
			onEvict(ctx, *failed)
		}
		return true, nil
	}
	return false, nil
}

// Sweep drops resolved records older than the retention window so the
// ring does not fill with history. Runs from the background sweeper.
func (l *Log) Sweep(ctx context.Context, retention time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().UTC().Add(-retention)
	kept := l.records[:0]
	for _, rec := range l.records {
		if rec.Status != StatusPendingRecovery && rec.CreatedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, rec)
	}
	if len(kept) == len(l.records) {
		return nil
	}
	l.records = kept
	return l.persist(ctx)
}
