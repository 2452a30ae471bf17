package apdu

import (
	"context"
	"time"

	"github.com/mgthompo1/tapkernel/internal/capability"
	"github.com/mgthompo1/tapkernel/pkg/errors"
)

// ExtendedLengthTransceiver is implemented by transceivers that accept
// extended Lc/Le encoding.
type ExtendedLengthTransceiver interface {
	SupportsExtendedLength() bool
}

// Exchanger sends command APDUs over a transceiver and handles GET
// RESPONSE chaining so callers always see the full response.
type Exchanger struct {
	transceiver capability.Transceiver
	extended    bool
	timeout     time.Duration
}

// NewExchanger wraps a transceiver, probing it for extended length support.
func NewExchanger(t capability.Transceiver) *Exchanger {
	extended := false
	if elt, ok := t.(ExtendedLengthTransceiver); ok {
		extended = elt.SupportsExtendedLength()
	}
	return &Exchanger{transceiver: t, extended: extended}
}

// WithTimeout bounds each card exchange. Zero means no per-exchange
// deadline beyond the caller's context.
func (e *Exchanger) WithTimeout(d time.Duration) *Exchanger {
	e.timeout = d
	return e
}

// Exchange sends cmd and returns the complete response. SW 61xx rounds are
// chained transparently; every other status word is returned for the
// caller to classify.
func (e *Exchanger) Exchange(ctx context.Context, cmd Command) (Response, error) {
	encoded, err := cmd.Encode(e.extended)
	if err != nil {
		return Response{}, errors.Capability("transceiver", err)
	}

	resp, err := e.transceiveOnce(ctx, encoded)
	if err != nil {
		return Response{}, err
	}

	// conditions-not-satisfied gets a single retransmission
	if Classify(resp.SW()) == RetryOnce {
		resp, err = e.transceiveOnce(ctx, encoded)
		if err != nil {
			return Response{}, err
		}
	}

	data := resp.Data
	for Classify(resp.SW()) == MoreData {
		getResponse := Case2(ClaInterindustry, InsGetResponse, 0x00, 0x00, resp.SW2)
		encoded, err := getResponse.Encode(false)
		if err != nil {
			return Response{}, errors.Capability("transceiver", err)
		}
		resp, err = e.transceiveOnce(ctx, encoded)
		if err != nil {
			return Response{}, err
		}
		data = append(data, resp.Data...)
	}

	resp.Data = data
	return resp, nil
}

func (e *Exchanger) transceiveOnce(ctx context.Context, encoded []byte) (Response, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	raw, err := e.transceiver.Transceive(ctx, encoded)
	if err != nil {
		return Response{}, errors.ErrCardCommunication.Wrap(err)
	}
	return ParseResponse(raw)
}
