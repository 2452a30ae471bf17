// Package escalation publishes aged-reversal signals to NATS so an
// external monitor can page an operator.
package escalation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/mgthompo1/tapkernel/internal/durability/reversal"
)

// Event is the escalation payload.
type Event struct {
	ReversalID            string    `json:"reversal_id"`
	OriginalTransactionID string    `json:"original_transaction_id"`
	Amount                int64     `json:"amount"`
	Currency              string    `json:"currency"`
	MaskedPAN             string    `json:"masked_pan"`
	Reason                string    `json:"reason"`
	Attempts              int       `json:"attempts"`
	CreatedAt             time.Time `json:"created_at"`
	EscalatedAt           time.Time `json:"escalated_at"`
}

// Publisher sends escalation events on a NATS subject.
type Publisher struct {
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
}

// Compile-time check that Publisher implements the notifier contract
var _ reversal.EscalationNotifier = (*Publisher)(nil)

// New connects to NATS.
func New(url, subject string, logger *zap.Logger) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("escalation - New - nats.Connect: %w", err)
	}
	return &Publisher{conn: conn, subject: subject, logger: logger}, nil
}

// Escalate implements reversal.EscalationNotifier.
func (p *Publisher) Escalate(ctx context.Context, rec reversal.Record) error {
	event := Event{
		ReversalID:            rec.ReversalID,
		OriginalTransactionID: rec.OriginalTransactionID,
		Amount:                rec.Amount,
		Currency:              rec.Currency,
		MaskedPAN:             rec.MaskedPAN,
		Reason:                string(rec.Reason),
		Attempts:              rec.Attempts,
		CreatedAt:             rec.CreatedAt,
		EscalatedAt:           time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("escalation - Escalate - json.Marshal: %w", err)
	}

	if err := p.conn.Publish(p.subject, data); err != nil {
		p.logger.Error("failed to publish escalation",
			zap.String("reversal_id", rec.ReversalID),
			zap.Error(err),
		)
		return err
	}

	p.logger.Info("escalation published",
		zap.String("subject", p.subject),
		zap.String("reversal_id", rec.ReversalID),
	)
	return nil
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
