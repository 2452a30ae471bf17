package torn

import (
	"context"

	"go.uber.org/zap"

	"github.com/mgthompo1/tapkernel/internal/emv/apdu"
	"github.com/mgthompo1/tapkernel/internal/emv/tag"
	"github.com/mgthompo1/tapkernel/internal/metrics"
	"github.com/mgthompo1/tapkernel/pkg/bytesutil"
	"github.com/mgthompo1/tapkernel/pkg/tlv"
)

// QueryOutcome classifies what the card reported about a torn
// transaction.
type QueryOutcome int

const (
	// CompletedOnCard means the card finalized the transaction
	CompletedOnCard QueryOutcome = iota
	// AbortedOnCard means the card rolled the transaction back
	AbortedOnCard
	// NotFoundOnCard means the card has no trace of it
	NotFoundOnCard
	// QueryFailed means the probe itself failed
	QueryFailed
)

func (o QueryOutcome) String() string {
	switch o {
	case CompletedOnCard:
		return "completed_on_card"
	case AbortedOnCard:
		return "aborted_on_card"
	case NotFoundOnCard:
		return "not_found_on_card"
	default:
		return "query_failed"
	}
}

// QueryResult is a probe outcome plus the recovered cryptogram when the
// card reported completion.
type QueryResult struct {
	Outcome    QueryOutcome
	Cryptogram string
}

// Recoverer probes cards for the fate of torn transactions using the
// scheme-specific queries.
type Recoverer struct {
	logger *zap.Logger
}

// NewRecoverer builds a card prober.
func NewRecoverer(logger *zap.Logger) *Recoverer {
	return &Recoverer{logger: logger}
}

// Probe dispatches on scheme. Schemes without a recovery query report
// the transaction as not found.
func (r *Recoverer) Probe(ctx context.Context, ex *apdu.Exchanger, scheme string, rec Record) QueryResult {
	var result QueryResult
	switch scheme {
	case "visa":
		result = r.probeVisa(ctx, ex, rec)
	case "mastercard":
		result = r.probeMastercard(ctx, ex, rec)
	default:
		result = QueryResult{Outcome: NotFoundOnCard}
	}
	r.logger.Info("torn recovery probe",
		zap.String("scheme", scheme),
		zap.String("record_id", rec.RecordID),
		zap.String("outcome", result.Outcome.String()),
	)
	metrics.TornRecoveries.WithLabelValues(result.Outcome.String()).Inc()
	return result
}

// probeVisa reads the card's torn transaction log (tag DF8128) and
// matches entries on last four digits and amount. Each entry carries a
// completion flag, the PAN tail, the amount and the cryptogram.
func (r *Recoverer) probeVisa(ctx context.Context, ex *apdu.Exchanger, rec Record) QueryResult {
	resp, err := ex.Exchange(ctx, apdu.Case2(apdu.ClaProprietary, apdu.InsGetData, 0x81, 0x28, 0x00))
	if err != nil {
		return QueryResult{Outcome: QueryFailed}
	}
	switch apdu.Classify(resp.SW()) {
	case apdu.Success, apdu.Warning:
	case apdu.NotSupported:
		return QueryResult{Outcome: NotFoundOnCard}
	default:
		return QueryResult{Outcome: QueryFailed}
	}

	logTemplate, ok := tlv.Find(resp.Data, tag.VisaTornLog)
	if !ok {
		return QueryResult{Outcome: NotFoundOnCard}
	}
	entries, err := tlv.Parse(logTemplate.Value)
	if err != nil {
		return QueryResult{Outcome: QueryFailed}
	}

	for _, entry := range entries {
		if entry.Tag != tag.VisaTornLogEntry {
			continue
		}
		// completion flag(1) pan_last4 bcd(2) amount n12(6) cryptogram(8)
		v := entry.Value
		if len(v) < 17 {
			continue
		}
		last4, err := bytesutil.BCDDecode(v[1:3])
		if err != nil || last4 != rec.PANLast4 {
			continue
		}
		amount, err := bytesutil.BCDDecodeUint(v[3:9])
		if err != nil || int64(amount) != rec.Amount {
			continue
		}

		if v[0] == 0x00 {
			return QueryResult{Outcome: AbortedOnCard}
		}
		return QueryResult{
			Outcome:    CompletedOnCard,
			Cryptogram: bytesutil.ToHex(v[9:17]),
		}
	}
	return QueryResult{Outcome: NotFoundOnCard}
}

// probeMastercard compares the card's current ATC with the recorded one:
// a moved counter means the card committed the interrupted transaction.
func (r *Recoverer) probeMastercard(ctx context.Context, ex *apdu.Exchanger, rec Record) QueryResult {
	resp, err := ex.Exchange(ctx, apdu.Case2(apdu.ClaProprietary, apdu.InsGetData, 0x9F, 0x36, 0x00))
	if err != nil {
		return QueryResult{Outcome: QueryFailed}
	}
	switch apdu.Classify(resp.SW()) {
	case apdu.Success, apdu.Warning:
	case apdu.NotSupported:
		return QueryResult{Outcome: NotFoundOnCard}
	default:
		return QueryResult{Outcome: QueryFailed}
	}

	atcTLV, ok := tlv.Find(resp.Data, tag.ATC)
	if !ok || len(atcTLV.Value) != 2 {
		return QueryResult{Outcome: QueryFailed}
	}
	cardATC, err := bytesutil.UintBE(atcTLV.Value)
	if err != nil {
		return QueryResult{Outcome: QueryFailed}
	}

	recordedBytes, err := bytesutil.FromHex(rec.ATC)
	if err != nil {
		return QueryResult{Outcome: NotFoundOnCard}
	}
	recorded, err := bytesutil.UintBE(recordedBytes)
	if err != nil || recorded == 0 {
		return QueryResult{Outcome: NotFoundOnCard}
	}

	if cardATC > recorded {
		return QueryResult{Outcome: CompletedOnCard}
	}
	return QueryResult{Outcome: AbortedOnCard}
}
