package mastercard

import (
	"context"

	"go.uber.org/zap"

	"github.com/mgthompo1/tapkernel/internal/emv/apdu"
	"github.com/mgthompo1/tapkernel/pkg/bytesutil"
)

// Relay resistance timing parameters, in the protocol's native units:
// grace periods in milliseconds, expected transmission time in 100 µs.
const (
	rrpMinGrace             = 20
	rrpMaxGrace             = 50
	rrpExpectedTransmission = 180
)

// timing flag: the card reports its own time limit was exceeded
const rrpFlagLimitExceeded = 0x01

// performRelayResistance measures the card round trip against the
// card-declared thresholds. A card answering 6A81/6D00 simply lacks the
// protocol; a threshold breach flags the TVR and processing continues.
func (k *Kernel) performRelayResistance(ctx context.Context) {
	entropy := make([]byte, 4)
	if err := k.env.RNG.FillRandom(entropy); err != nil {
		k.env.Logger.Warn("relay resistance skipped, rng failed", zap.Error(err))
		return
	}

	data := make([]byte, 0, 10)
	data = append(data, entropy...)
	data = append(data, bytesutil.PutUintBE(rrpMinGrace, 2)...)
	data = append(data, bytesutil.PutUintBE(rrpMaxGrace, 2)...)
	data = append(data, bytesutil.PutUintBE(rrpExpectedTransmission, 2)...)

	started := k.env.Clock.NowMillis()
	resp, err := k.env.Exchanger.Exchange(ctx, apdu.Case4(apdu.ClaProprietary, apdu.InsExchangeRelayData, 0x00, 0x00, data, 0x00))
	if err != nil {
		k.env.Logger.Warn("relay resistance exchange failed", zap.Error(err))
		return
	}
	elapsed := k.env.Clock.NowMillis() - started

	switch resp.SW() {
	case 0x9000:
	case 0x6A81, 0x6D00:
		// card does not implement the protocol
		return
	default:
		k.env.TVR.SetRelayResistanceTimeLimitExceeded()
		return
	}

	// device_entropy(4) measured_transmission_time(2) accuracy_threshold(1) timing_flags(1)
	if len(resp.Data) < 8 {
		k.env.TVR.SetRelayResistanceTimeLimitExceeded()
		return
	}
	measured, _ := bytesutil.UintBE(resp.Data[4:6])
	accuracy := int64(resp.Data[6])
	flags := resp.Data[7]

	limit := int64(rrpExpectedTransmission)/10 + int64(rrpMaxGrace) + accuracy
	exceeded := elapsed > limit || int64(measured) > limit || flags&rrpFlagLimitExceeded != 0
	if exceeded {
		k.env.TVR.SetRelayResistanceThresholdExceeded()
		k.env.Logger.Warn("relay resistance threshold exceeded",
			zap.Int64("elapsed_ms", elapsed),
			zap.Int64("limit_ms", limit),
		)
	}
}
