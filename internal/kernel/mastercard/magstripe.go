package mastercard

import (
	"context"

	"github.com/mgthompo1/tapkernel/internal/emv/apdu"
	"github.com/mgthompo1/tapkernel/internal/emv/dol"
	"github.com/mgthompo1/tapkernel/internal/emv/sensitive"
	"github.com/mgthompo1/tapkernel/internal/emv/tag"
	"github.com/mgthompo1/tapkernel/internal/kernel"
	"github.com/mgthompo1/tapkernel/pkg/bytesutil"
	"github.com/mgthompo1/tapkernel/pkg/errors"
	"github.com/mgthompo1/tapkernel/pkg/tlv"
)

// defaultUDOL is used when the card carries no UDOL: unpredictable
// number, amount and currency.
var defaultUDOL = dol.DOL{
	{Tag: tag.UnpredictableNumber, Length: 4},
	{Tag: tag.AmountAuthorized, Length: 6},
	{Tag: tag.TransactionCurrency, Length: 2},
}

// processMagstripe runs the PayPass mag-stripe path: read the track
// data, ask the card for a CVC3 over the UDOL and authorize online.
func (k *Kernel) processMagstripe(ctx context.Context, eng *kernel.Engine) kernel.Outcome {
	if err := eng.ReadRecords(ctx); err != nil {
		return eng.Fail(err)
	}

	udol := defaultUDOL
	if udolBytes, ok := k.env.Card.Get(tag.UDOL); ok {
		parsed, err := dol.Parse(udolBytes)
		if err != nil {
			return eng.Fail(err)
		}
		udol = parsed
	}

	data := dol.Build(udol, k.env.Terminal, k.env.Card)
	resp, err := k.env.Exchanger.Exchange(ctx, apdu.Case4(apdu.ClaProprietary, apdu.InsComputeCryptoChecks, 0x8E, 0x80, data, 0x00))
	if err != nil {
		return eng.Fail(err)
	}
	if disp := apdu.Classify(resp.SW()); disp != apdu.Success && disp != apdu.Warning {
		return eng.Fail(apdu.ErrorForSW(resp.SW()))
	}

	objects, err := tlv.Parse(resp.Data)
	if err != nil {
		return eng.Fail(err)
	}
	if err := k.env.Card.PutTLVs(objects); err != nil {
		return eng.Fail(err)
	}

	cvc3Track2, ok := k.env.Card.Get(tag.CVC3Track2)
	if !ok {
		return eng.Fail(errors.MissingMandatoryData(uint32(tag.CVC3Track2)))
	}

	auth := eng.BuildAuthorization(Scheme, nil)
	auth.TransactionMode = kernel.ModeMagstripe
	auth.CryptogramType = "ARQC"
	auth.CVC3Track2 = bytesutil.ToHex(cvc3Track2)
	if cvc3Track1, ok := k.env.Card.Get(tag.CVC3Track1); ok {
		auth.CVC3Track1 = bytesutil.ToHex(cvc3Track1)
	}
	if atc, ok := k.env.Card.Get(tag.ATC); ok {
		auth.ATC = bytesutil.Clone(atc)
	}
	if track2, ok := k.env.Card.Get(tag.Track2MSD); ok && auth.Track2 == nil {
		t2 := sensitive.NewTrack2(track2)
		k.env.Registry.Track(&t2.Buffer)
		auth.Track2 = t2
	}

	return kernel.Outcome{Type: kernel.OutcomeOnlineRequest, Authorization: auth}
}
