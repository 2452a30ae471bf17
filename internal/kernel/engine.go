package kernel

import (
	"context"
	"fmt"

	"github.com/mgthompo1/tapkernel/internal/emv/apdu"
	"github.com/mgthompo1/tapkernel/internal/emv/bits"
	"github.com/mgthompo1/tapkernel/internal/emv/dol"
	"github.com/mgthompo1/tapkernel/internal/emv/tag"
	"github.com/mgthompo1/tapkernel/pkg/bytesutil"
	"github.com/mgthompo1/tapkernel/pkg/errors"
	"github.com/mgthompo1/tapkernel/pkg/tlv"
)

// ODAStatus tracks offline data authentication across the flow.
type ODAStatus int

const (
	ODANotPerformed ODAStatus = iota
	ODASucceeded
	ODAFailed
	// ODACDAPending defers verification to the GENERATE AC response
	ODACDAPending
)

// Engine drives the shared EMV state machine:
// GPO, READ RECORDS, ODA, restrictions, CVM, risk, TAA, GENERATE AC.
// Scheme kernels wrap it and splice in their specific behavior.
type Engine struct {
	env    *Env
	app    SelectedApplication
	params Params

	aip        bits.AIP
	aflEntries []AFLEntry
	ctq        bits.CTQ
	hasCTQ     bool

	odaBuffer []byte
	odaMethod string
	odaStatus ODAStatus

	cvmResults [3]byte

	phase        Phase
	forcedOnline bool
}

// NewEngine builds an engine over a prepared environment.
func NewEngine(env *Env, app SelectedApplication, params Params) *Engine {
	return &Engine{env: env, app: app, params: params, phase: PhaseBeforeGenerateAC}
}

// Phase reports how far cryptogram generation progressed.
func (e *Engine) Phase() Phase { return e.phase }

// AIP returns the card's application interchange profile.
func (e *Engine) AIP() bits.AIP { return e.aip }

// CTQ returns the card transaction qualifiers, when the card sent them.
func (e *Engine) CTQ() (bits.CTQ, bool) { return e.ctq, e.hasCTQ }

// Initialize clears both stores and seeds the terminal dictionary with
// the transaction parameters and the terminal-resident data elements.
func (e *Engine) Initialize() error {
	term := e.env.Terminal
	e.env.Card.Reset()
	term.Reset()

	amount, err := bytesutil.BCDEncodeUint(uint64(e.params.AmountAuthorized), 6)
	if err != nil {
		return err
	}
	other, err := bytesutil.BCDEncodeUint(uint64(e.params.AmountOther), 6)
	if err != nil {
		return err
	}
	term.Put(tag.AmountAuthorized, amount)
	term.Put(tag.AmountOther, other)

	country, err := bytesutil.FromHex(e.env.Config.CountryCode)
	if err != nil {
		return fmt.Errorf("terminal country code: %w", err)
	}
	currency, err := bytesutil.FromHex(e.params.CurrencyCode)
	if err != nil {
		return fmt.Errorf("transaction currency code: %w", err)
	}
	term.Put(tag.TerminalCountryCode, country)
	term.Put(tag.TransactionCurrency, currency)

	date, err := bytesutil.BCDEncode(e.params.TransactionDate.Format("060102"), 3)
	if err != nil {
		return err
	}
	clock, err := bytesutil.BCDEncode(e.params.TransactionDate.Format("150405"), 3)
	if err != nil {
		return err
	}
	term.Put(tag.TransactionDate, date)
	term.Put(tag.TransactionTime, clock)
	term.Put(tag.TransactionType, []byte{e.params.TransactionType})

	un := make([]byte, 4)
	if err := e.env.RNG.FillRandom(un); err != nil {
		return errors.Capability("rng", err)
	}
	term.Put(tag.UnpredictableNumber, un)

	caps, err := bytesutil.FromHex(e.env.Config.Capabilities)
	if err != nil {
		return fmt.Errorf("terminal capabilities: %w", err)
	}
	ttype, err := bytesutil.FromHex(e.env.Config.TerminalType)
	if err != nil {
		return fmt.Errorf("terminal type: %w", err)
	}
	term.Put(tag.TerminalCapabilities, caps)
	term.Put(tag.TerminalType, ttype)
	term.Put(tag.MerchantID, []byte(e.env.Config.MerchantID))
	term.Put(tag.TerminalID, []byte(e.env.Config.TerminalID))
	term.Put(tag.TerminalAID, e.app.AID)

	e.syncTVR()
	term.Put(tag.TSI, e.env.TSI.Bytes())
	term.Put(tag.CVMResults, e.cvmResults[:])

	return nil
}

// syncTVR refreshes the serialized TVR in the terminal store so DOL
// assembly always sees the current bits.
func (e *Engine) syncTVR() {
	e.env.Terminal.Put(tag.TVR, e.env.TVR.Bytes())
}

// AFLEntry is one 4-byte application file locator entry.
type AFLEntry struct {
	SFI      byte
	First    byte
	Last     byte
	ODACount byte
}

// ParseAFL splits the AFL into entries. The SFI sits in the five high
// bits of the first byte.
func ParseAFL(afl []byte) ([]AFLEntry, error) {
	if len(afl)%4 != 0 {
		return nil, errors.ErrMalformedTLV.WithMessage("afl of %d bytes is not a multiple of 4", len(afl))
	}
	var out []AFLEntry
	for i := 0; i < len(afl); i += 4 {
		entry := AFLEntry{
			SFI:      (afl[i] >> 3) & 0x1F,
			First:    afl[i+1],
			Last:     afl[i+2],
			ODACount: afl[i+3],
		}
		if entry.First == 0 || entry.Last < entry.First {
			return nil, errors.ErrMalformedTLV.WithMessage("afl entry with record range %d-%d", entry.First, entry.Last)
		}
		out = append(out, entry)
	}
	return out, nil
}

// RunGPO assembles the PDOL data, issues GET PROCESSING OPTIONS and
// captures AIP, AFL and any additional data elements the card returned.
func (e *Engine) RunGPO(ctx context.Context) error {
	pdolData := dol.Build(e.app.PDOL, e.env.Terminal, e.env.Card)
	data := tlv.Encode(0x83, pdolData)

	resp, err := e.env.Exchanger.Exchange(ctx, apdu.Case4(apdu.ClaProprietary, apdu.InsGPO, 0x00, 0x00, data, 0x00))
	if err != nil {
		return err
	}
	if disp := apdu.Classify(resp.SW()); disp != apdu.Success && disp != apdu.Warning {
		return apdu.ErrorForSW(resp.SW())
	}

	objects, err := tlv.Parse(resp.Data)
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		return errors.MissingMandatoryData(uint32(tag.AIP))
	}

	var afl []byte
	switch objects[0].Tag {
	case tag.ResponseFormat1:
		// format 1: AIP(2) followed by the AFL
		v := objects[0].Value
		if len(v) < 2 {
			return errors.MissingMandatoryData(uint32(tag.AIP))
		}
		e.aip = bits.ParseAIP(v[:2])
		afl = v[2:]
		e.env.Card.Put(tag.AIP, v[:2])
		if len(afl) > 0 {
			e.env.Card.Put(tag.AFL, afl)
		}
	case tag.ResponseFormat2:
		if err := e.env.Card.PutTLVs(objects[:1]); err != nil {
			return err
		}
		aipBytes, ok := e.env.Card.Get(tag.AIP)
		if !ok {
			return errors.MissingMandatoryData(uint32(tag.AIP))
		}
		e.aip = bits.ParseAIP(aipBytes)
		afl, _ = e.env.Card.Get(tag.AFL)
	default:
		return errors.ErrMalformedTLV.WithMessage("gpo response starts with tag %X", uint32(objects[0].Tag))
	}

	if len(afl) > 0 {
		entries, err := ParseAFL(afl)
		if err != nil {
			return err
		}
		e.aflEntries = entries
	}

	if ctqBytes, ok := e.env.Card.Get(tag.CTQ); ok {
		e.ctq = bits.ParseCTQ(ctqBytes)
		e.hasCTQ = true
	}
	return nil
}

// ReadRecords walks the AFL, stores every record's data elements and
// accumulates the ODA input buffer.
func (e *Engine) ReadRecords(ctx context.Context) error {
	for _, entry := range e.aflEntries {
		for rec := entry.First; rec <= entry.Last; rec++ {
			p2 := entry.SFI<<3 | 0x04
			resp, err := e.env.Exchanger.Exchange(ctx, apdu.Case2(apdu.ClaInterindustry, apdu.InsReadRecord, rec, p2, 0x00))
			if err != nil {
				return err
			}
			if disp := apdu.Classify(resp.SW()); disp != apdu.Success && disp != apdu.Warning {
				return apdu.ErrorForSW(resp.SW())
			}

			objects, err := tlv.Parse(resp.Data)
			if err != nil {
				return err
			}
			if err := e.env.Card.PutTLVs(objects); err != nil {
				return err
			}

			// the first oda_count records of each entry feed static data
			// authentication, without the outer record template
			if rec-entry.First < entry.ODACount {
				if len(objects) == 1 && objects[0].Tag == tag.RecordTemplate {
					e.odaBuffer = append(e.odaBuffer, objects[0].Value...)
				} else {
					e.odaBuffer = append(e.odaBuffer, resp.Data...)
				}
			}
		}
	}
	return nil
}

// RequireCardData fetches a mandatory element from the card store.
func (e *Engine) RequireCardData(t tlv.Tag) ([]byte, error) {
	v, ok := e.env.Card.Get(t)
	if !ok {
		return nil, errors.MissingMandatoryData(uint32(t))
	}
	return v, nil
}
