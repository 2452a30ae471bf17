package reversal

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mgthompo1/tapkernel/internal/metrics"
)

// SendStatus classifies one delivery attempt.
type SendStatus int

const (
	SendSuccess SendStatus = iota
	SendDuplicate
	SendFailed
	SendPermanentFailure
)

// SendResult is the sender's verdict on one attempt.
type SendResult struct {
	Status SendStatus
	Reason string
}

// Sender delivers a reversal to the acquirer. Implementations must be
// idempotent on the reversal id.
type Sender interface {
	Send(ctx context.Context, rec Record) SendResult
}

// EscalationNotifier receives records that aged past the escalation
// threshold, for an external monitor to act on.
type EscalationNotifier interface {
	Escalate(ctx context.Context, rec Record) error
}

// Dispatcher is the single background loop draining the queue.
type Dispatcher struct {
	queue      *Queue
	sender     Sender
	escalation EscalationNotifier
	interval   time.Duration
	logger     *zap.Logger
}

// NewDispatcher wires the delivery loop. escalation may be nil.
func NewDispatcher(queue *Queue, sender Sender, escalation EscalationNotifier, interval time.Duration, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		queue:      queue,
		sender:     sender,
		escalation: escalation,
		interval:   interval,
		logger:     logger,
	}
}

// Run polls until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("reversal dispatcher started", zap.Duration("interval", d.interval))

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("reversal dispatcher stopping")
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick performs one dispatch round: deliver due records, escalate aged
// ones, sweep expired completed records. Run calls it on every tick;
// it is exported so tests can drive single rounds.
func (d *Dispatcher) Tick(ctx context.Context) {
	now := time.Now().UTC()

	for _, rec := range d.queue.Due(now) {
		d.deliver(ctx, rec)
	}

	for _, rec := range d.queue.Aged(now) {
		d.escalate(ctx, rec)
	}

	if err := d.queue.SweepCompleted(ctx); err != nil {
		d.logger.Error("completed reversal sweep failed", zap.Error(err))
	}
}

func (d *Dispatcher) deliver(ctx context.Context, rec Record) {
	claimed, err := d.queue.MarkInProgress(ctx, rec.ReversalID)
	if err != nil {
		d.logger.Error("failed to claim reversal", zap.String("reversal_id", rec.ReversalID), zap.Error(err))
		return
	}

	result := d.sender.Send(ctx, claimed)
	switch result.Status {
	case SendSuccess, SendDuplicate:
		metrics.ReversalAttempts.WithLabelValues("success").Inc()
		if _, err := d.queue.MarkCompleted(ctx, claimed.ReversalID); err != nil {
			d.logger.Error("failed to complete reversal", zap.String("reversal_id", claimed.ReversalID), zap.Error(err))
		}
		d.logger.Info("reversal delivered",
			zap.String("reversal_id", claimed.ReversalID),
			zap.Int("attempts", claimed.Attempts),
			zap.Bool("duplicate", result.Status == SendDuplicate),
		)

	case SendPermanentFailure:
		metrics.ReversalAttempts.WithLabelValues("permanent_failure").Inc()
		if _, err := d.queue.MarkFailed(ctx, claimed.ReversalID, result.Reason); err != nil {
			d.logger.Error("failed to park reversal", zap.String("reversal_id", claimed.ReversalID), zap.Error(err))
		}
		d.logger.Error("reversal permanently failed",
			zap.String("reversal_id", claimed.ReversalID),
			zap.String("reason", result.Reason),
		)

	default:
		metrics.ReversalAttempts.WithLabelValues("failed").Inc()
		if claimed.Attempts >= d.queue.MaxAttempts() {
			if _, err := d.queue.MarkFailed(ctx, claimed.ReversalID, "MaxAttemptsExceeded"); err != nil {
				d.logger.Error("failed to park reversal", zap.String("reversal_id", claimed.ReversalID), zap.Error(err))
			}
			d.logger.Error("reversal exceeded attempt budget",
				zap.String("reversal_id", claimed.ReversalID),
				zap.Int("attempts", claimed.Attempts),
			)
			return
		}
		if _, err := d.queue.MarkPendingAgain(ctx, claimed.ReversalID, result.Reason); err != nil {
			d.logger.Error("failed to release reversal", zap.String("reversal_id", claimed.ReversalID), zap.Error(err))
		}
	}
}

func (d *Dispatcher) escalate(ctx context.Context, rec Record) {
	metrics.ReversalEscalations.Inc()
	d.logger.Warn("reversal aged past escalation threshold",
		zap.String("reversal_id", rec.ReversalID),
		zap.Time("created_at", rec.CreatedAt),
		zap.Int("attempts", rec.Attempts),
	)

	if d.escalation != nil {
		if err := d.escalation.Escalate(ctx, rec); err != nil {
			// escalation is advisory: retry on the next tick
			d.logger.Error("escalation signal failed", zap.String("reversal_id", rec.ReversalID), zap.Error(err))
			return
		}
	}
	if _, err := d.queue.MarkEscalated(ctx, rec.ReversalID); err != nil {
		d.logger.Error("failed to flag escalation", zap.String("reversal_id", rec.ReversalID), zap.Error(err))
	}
}
