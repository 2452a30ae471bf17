package kernel

import (
	"strings"

	"github.com/mgthompo1/tapkernel/internal/emv/sensitive"
	"github.com/mgthompo1/tapkernel/internal/emv/tag"
	"github.com/mgthompo1/tapkernel/pkg/bytesutil"
)

// panFromCardData prefers tag 5A and falls back to the track 2
// equivalent, whose PAN runs up to the field separator nibble (D).
func (e *Engine) panFromCardData() *sensitive.PAN {
	if panBytes, ok := e.env.Card.Get(tag.PAN); ok {
		digits := decodeCompressedNumeric(panBytes)
		return sensitive.NewPAN([]byte(digits))
	}

	track2, ok := e.env.Card.Get(tag.Track2Equivalent)
	if !ok {
		return nil
	}
	hexed := bytesutil.ToHex(track2)
	if sep := strings.IndexByte(hexed, 'D'); sep > 0 {
		return sensitive.NewPAN([]byte(hexed[:sep]))
	}
	return nil
}

// decodeCompressedNumeric strips the trailing F padding of a cn element.
func decodeCompressedNumeric(b []byte) string {
	hexed := bytesutil.ToHex(b)
	return strings.TrimRight(hexed, "F")
}

// expiryFromCardData returns the YYMM expiry digits.
func (e *Engine) expiryFromCardData() string {
	if exp, ok := e.env.Card.Get(tag.ExpirationDate); ok && len(exp) == 3 {
		digits, err := bytesutil.BCDDecode(exp)
		if err == nil {
			return digits[:4]
		}
	}
	// track 2: expiry follows the separator
	if track2, ok := e.env.Card.Get(tag.Track2Equivalent); ok {
		hexed := bytesutil.ToHex(track2)
		if sep := strings.IndexByte(hexed, 'D'); sep > 0 && len(hexed) >= sep+5 {
			return hexed[sep+1 : sep+5]
		}
	}
	return ""
}

// BuildAuthorization assembles the outcome envelope from the stores and
// the cryptogram exchange result.
func (e *Engine) BuildAuthorization(scheme string, ac *ACResult) *Authorization {
	auth := &Authorization{
		Scheme:          scheme,
		TransactionMode: ModeEMV,

		AmountAuthorized: e.params.AmountAuthorized,
		AmountOther:      e.params.AmountOther,
		CountryCode:      e.env.Config.CountryCode,
		CurrencyCode:     e.params.CurrencyCode,
		TransactionType:  e.params.TransactionType,

		AID: bytesutil.Clone(e.app.AID),
		AIP: e.aip.Bytes(),

		TVR:        e.env.TVR.Bytes(),
		CVMResults: e.CVMResults(),
	}

	if date, ok := e.env.Terminal.Get(tag.TransactionDate); ok {
		auth.TransactionDate = date
	}
	if un, ok := e.env.Terminal.Get(tag.UnpredictableNumber); ok {
		auth.UnpredictableNumber = un
	}

	if pan := e.panFromCardData(); pan != nil {
		e.env.Registry.Track(&pan.Buffer)
		auth.PAN = pan
		auth.MaskedPAN = pan.Masked()
	}
	if track2, ok := e.env.Card.Get(tag.Track2Equivalent); ok {
		t2 := sensitive.NewTrack2(track2)
		e.env.Registry.Track(&t2.Buffer)
		auth.Track2 = t2
	}
	if psn, ok := e.env.Card.Get(tag.PANSequenceNumber); ok {
		digits, err := bytesutil.BCDDecode(psn)
		if err == nil {
			auth.PSN = digits
		}
	}
	if name, ok := e.env.Card.Get(tag.CardholderName); ok {
		auth.CardholderName = strings.TrimSpace(string(name))
	}
	auth.Expiry = e.expiryFromCardData()

	if ac != nil {
		auth.CID = ac.CID
		auth.CryptogramType = ac.Type.String()
		auth.Cryptogram = ac.Cryptogram.Hex()
		auth.ATC = bytesutil.Clone(ac.ATC)
		auth.IAD = bytesutil.Clone(ac.IAD)
	}
	return auth
}
