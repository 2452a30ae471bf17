package kernel

import (
	"context"

	"github.com/mgthompo1/tapkernel/internal/emv/apdu"
	"github.com/mgthompo1/tapkernel/internal/emv/dol"
	"github.com/mgthompo1/tapkernel/internal/emv/sensitive"
	"github.com/mgthompo1/tapkernel/internal/emv/tag"
	"github.com/mgthompo1/tapkernel/pkg/errors"
	"github.com/mgthompo1/tapkernel/pkg/tlv"
)

// defaultCDOL stands in when the card supplied no CDOL1.
var defaultCDOL = dol.DOL{
	{Tag: tag.AmountAuthorized, Length: 6},
	{Tag: tag.AmountOther, Length: 6},
	{Tag: tag.TerminalCountryCode, Length: 2},
	{Tag: tag.TVR, Length: 5},
	{Tag: tag.TransactionCurrency, Length: 2},
	{Tag: tag.TransactionDate, Length: 3},
	{Tag: tag.TransactionType, Length: 1},
	{Tag: tag.UnpredictableNumber, Length: 4},
}

// ACResult is a parsed GENERATE AC response.
type ACResult struct {
	CID        byte
	Type       CryptogramType
	ATC        []byte
	Cryptogram *sensitive.Cryptogram
	IAD        []byte
	SDAD       []byte
}

// GenerateAC assembles the CDOL data, requests the cryptogram and parses
// the response. The CDA bit is set only when CDA was selected and is
// still pending verification.
func (e *Engine) GenerateAC(ctx context.Context, request CryptogramType, cdolTag tlv.Tag) (*ACResult, error) {
	cdolBytes, ok := e.env.Card.Get(cdolTag)
	var cdol dol.DOL
	var err error
	if ok {
		if cdol, err = dol.Parse(cdolBytes); err != nil {
			return nil, err
		}
	} else {
		cdol = defaultCDOL
	}

	e.syncTVR()
	data := dol.Build(cdol, e.env.Terminal, e.env.Card)

	p1 := byte(request)
	requestCDA := e.odaMethod == MethodCDA && e.odaStatus == ODACDAPending && request != CryptogramAAC
	if requestCDA {
		p1 |= 0x10
	}

	e.phase = PhaseAfterGenerateACSent
	resp, err := e.env.Exchanger.Exchange(ctx, apdu.Case4(apdu.ClaProprietary, apdu.InsGenerateAC, p1, 0x00, data, 0x00))
	if err != nil {
		return nil, err
	}
	e.phase = PhaseDuringResponse

	if disp := apdu.Classify(resp.SW()); disp != apdu.Success && disp != apdu.Warning {
		return nil, apdu.ErrorForSW(resp.SW())
	}

	result, err := e.parseACResponse(resp.Data)
	if err != nil {
		return nil, err
	}

	if requestCDA {
		if len(result.SDAD) > 0 {
			e.VerifyCDA(ctx, result.SDAD, result.Cryptogram.Bytes())
		} else {
			e.failCDA("card omitted signed dynamic application data")
		}
	}
	return result, nil
}

func (e *Engine) parseACResponse(data []byte) (*ACResult, error) {
	objects, err := tlv.Parse(data)
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 {
		return nil, errors.MissingMandatoryData(uint32(tag.CID))
	}

	result := &ACResult{}
	switch objects[0].Tag {
	case tag.ResponseFormat1:
		// CID(1) ATC(2) AC(8) IAD(rest)
		v := objects[0].Value
		if len(v) < 11 {
			return nil, errors.ErrMalformedTLV.WithMessage("format 1 generate ac response of %d bytes", len(v))
		}
		result.CID = v[0]
		result.ATC = append([]byte(nil), v[1:3]...)
		ac := append([]byte(nil), v[3:11]...)
		result.Cryptogram = sensitive.NewCryptogram(ac)
		if len(v) > 11 {
			result.IAD = append([]byte(nil), v[11:]...)
		}
		e.env.Card.Put(tag.CID, v[:1])
		e.env.Card.Put(tag.ATC, result.ATC)
		e.env.Card.Put(tag.ApplicationCryptogram, ac)
		if result.IAD != nil {
			e.env.Card.Put(tag.IAD, result.IAD)
		}
	case tag.ResponseFormat2:
		if err := e.env.Card.PutTLVs(objects[:1]); err != nil {
			return nil, err
		}
		cid, err := e.RequireCardData(tag.CID)
		if err != nil {
			return nil, err
		}
		atc, err := e.RequireCardData(tag.ATC)
		if err != nil {
			return nil, err
		}
		ac, err := e.RequireCardData(tag.ApplicationCryptogram)
		if err != nil {
			return nil, err
		}
		result.CID = cid[0]
		result.ATC = atc
		result.Cryptogram = sensitive.NewCryptogram(ac)
		result.IAD, _ = e.env.Card.Get(tag.IAD)
		result.SDAD, _ = e.env.Card.Get(tag.SDAD)
	default:
		return nil, errors.ErrMalformedTLV.WithMessage("generate ac response starts with tag %X", uint32(objects[0].Tag))
	}

	e.env.Registry.Track(&result.Cryptogram.Buffer)
	result.Type = CryptogramTypeFromCID(result.CID)
	return result, nil
}
