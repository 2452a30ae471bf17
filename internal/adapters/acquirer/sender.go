// Package acquirer implements the reversal sender capability over the
// acquirer's HTTP reversal endpoint. Idempotency is carried in the
// request key; transient transport errors retry in-call with jittered
// exponential backoff before the queue-level schedule takes over.
package acquirer

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/mgthompo1/tapkernel/config"
	"github.com/mgthompo1/tapkernel/internal/durability/reversal"
)

const defaultTimeout = 30 * time.Second

// reversalRequest is the wire payload of one reversal.
type reversalRequest struct {
	ReversalID            string `json:"reversal_id"`
	OriginalTransactionID string `json:"original_transaction_id"`
	Amount                int64  `json:"amount"`
	Currency              string `json:"currency"`
	MaskedPAN             string `json:"masked_pan"`
	PSN                   string `json:"psn,omitempty"`
	Cryptogram            string `json:"cryptogram,omitempty"`
	CryptogramType        string `json:"cryptogram_type,omitempty"`
	Reason                string `json:"reason"`
}

type reversalResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Sender delivers reversals over HTTP.
type Sender struct {
	client *resty.Client
	logger *zap.Logger
}

// Compile-time check that Sender implements the queue's sender contract
var _ reversal.Sender = (*Sender)(nil)

// New builds a sender from the acquirer client configuration.
func New(cfg config.ClientConfig, logger *zap.Logger) *Sender {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	client := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(timeout).
		SetHeader("Authorization", "Bearer "+cfg.APIKey)

	return &Sender{client: client, logger: logger}
}

// Send implements reversal.Sender. 409 from the acquirer means the
// reversal was already processed; 4xx other than 409/429 is permanent.
func (s *Sender) Send(ctx context.Context, rec reversal.Record) reversal.SendResult {
	req := reversalRequest{
		ReversalID:            rec.ReversalID,
		OriginalTransactionID: rec.OriginalTransactionID,
		Amount:                rec.Amount,
		Currency:              rec.Currency,
		MaskedPAN:             rec.MaskedPAN,
		PSN:                   rec.PSN,
		Cryptogram:            rec.Cryptogram,
		CryptogramType:        rec.CryptogramType,
		Reason:                string(rec.Reason),
	}

	var resp *resty.Response
	operation := func() error {
		var err error
		resp, err = s.client.R().
			SetContext(ctx).
			SetHeader("Idempotency-Key", rec.ReversalID).
			SetBody(req).
			SetResult(&reversalResponse{}).
			Post("/reversals")
		if err != nil {
			return err
		}
		// retry server-side hiccups in-call; every other status is
		// classified below
		if resp.StatusCode() >= 500 || resp.StatusCode() == http.StatusTooManyRequests {
			return fmt.Errorf("acquirer returned %s", resp.Status())
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	// a transport error leaves no HTTP status to classify
	if err := backoff.Retry(operation, policy); err != nil && (resp == nil || resp.RawResponse == nil) {
		s.logger.Warn("reversal delivery failed",
			zap.String("reversal_id", rec.ReversalID),
			zap.Error(err),
		)
		return reversal.SendResult{Status: reversal.SendFailed, Reason: err.Error()}
	}

	switch {
	case resp.StatusCode() == http.StatusOK || resp.StatusCode() == http.StatusCreated:
		return reversal.SendResult{Status: reversal.SendSuccess}
	case resp.StatusCode() == http.StatusConflict:
		return reversal.SendResult{Status: reversal.SendDuplicate}
	case resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500:
		return reversal.SendResult{Status: reversal.SendFailed, Reason: resp.Status()}
	default:
		return reversal.SendResult{Status: reversal.SendPermanentFailure, Reason: resp.Status()}
	}
}
