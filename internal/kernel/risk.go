package kernel

import (
	"github.com/mgthompo1/tapkernel/internal/emv/bits"
	"github.com/mgthompo1/tapkernel/internal/emv/tag"
	"github.com/mgthompo1/tapkernel/pkg/bytesutil"
	"github.com/mgthompo1/tapkernel/pkg/errors"
	"github.com/mgthompo1/tapkernel/pkg/tlv"
)

// PerformRiskManagement runs the terminal risk checks: floor limit,
// contactless limit and random online selection.
func (e *Engine) PerformRiskManagement() error {
	defer func() {
		e.env.TSI.SetTerminalRiskManagementPerformed()
		e.env.Terminal.Put(tag.TSI, e.env.TSI.Bytes())
		e.syncTVR()
	}()

	if e.env.Config.FloorLimit >= 0 && e.params.AmountAuthorized > e.env.Config.FloorLimit {
		e.env.TVR.SetFloorLimitExceeded()
	}

	if e.env.Config.ContactlessLimit > 0 && e.params.AmountAuthorized > e.env.Config.ContactlessLimit {
		// above the reader contactless limit the transaction must go
		// online regardless of action codes
		e.forcedOnline = true
	}

	if e.env.Config.OnlinePercent > 0 {
		draw := make([]byte, 4)
		if err := e.env.RNG.FillRandom(draw); err != nil {
			return errors.Capability("rng", err)
		}
		v, _ := bytesutil.UintBE(draw)
		if int(v%100) < e.env.Config.OnlinePercent {
			e.env.TVR.SetRandomlySelectedOnline()
		}
	}
	return nil
}

// CryptogramType is the cryptogram the terminal requests or receives.
type CryptogramType byte

const (
	CryptogramAAC  CryptogramType = 0x00
	CryptogramTC   CryptogramType = 0x40
	CryptogramARQC CryptogramType = 0x80
)

// String names the type for payloads and logs.
func (c CryptogramType) String() string {
	switch c {
	case CryptogramTC:
		return "TC"
	case CryptogramARQC:
		return "ARQC"
	default:
		return "AAC"
	}
}

// CryptogramTypeFromCID extracts the type from a Cryptogram Information
// Data byte: bits 7-6 carry the type on every scheme.
func CryptogramTypeFromCID(cid byte) CryptogramType {
	switch (cid >> 6) & 0x03 {
	case 0x00:
		return CryptogramAAC
	case 0x01:
		return CryptogramTC
	default:
		return CryptogramARQC
	}
}

// ActionAnalysis applies the IAC/TAC decision of terminal action
// analysis: denial first, then online, defaulting online for contactless.
func (e *Engine) ActionAnalysis(tacDenial, tacOnline bits.ActionCode) CryptogramType {
	iacDenial := e.actionCode(tag.IACDenial)
	iacOnline := e.actionCode(tag.IACOnline)

	if bits.MatchesActionCode(e.env.TVR, iacDenial.Union(tacDenial)) {
		return CryptogramAAC
	}
	if e.forcedOnline || bits.MatchesActionCode(e.env.TVR, iacOnline.Union(tacOnline)) {
		return CryptogramARQC
	}
	// contactless defaults online
	return CryptogramARQC
}

func (e *Engine) actionCode(t tlv.Tag) bits.ActionCode {
	if v, ok := e.env.Card.Get(t); ok {
		return bits.ParseActionCode(v)
	}
	return bits.ActionCode{}
}
