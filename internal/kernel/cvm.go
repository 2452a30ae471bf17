package kernel

import (
	"go.uber.org/zap"

	"github.com/mgthompo1/tapkernel/internal/emv/bits"
	"github.com/mgthompo1/tapkernel/internal/emv/tag"
	"github.com/mgthompo1/tapkernel/pkg/bytesutil"
)

// CVM method codes (rule byte 1, low six bits)
const (
	cvmFailProcessing   = 0x00
	cvmPlaintextPIN     = 0x01
	cvmOnlinePIN        = 0x02
	cvmPlaintextPINSig  = 0x03
	cvmEncipheredPIN    = 0x04
	cvmEncipheredPINSig = 0x05
	cvmSignature        = 0x1E
	cvmNoCVMRequired    = 0x1F
	cvmCDCVM            = 0x3F

	cvmApplySucceeding = 0x40
)

// CVM condition codes (rule byte 2)
const (
	condAlways           = 0x00
	condUnattendedCash   = 0x01
	condNotCash          = 0x02
	condTerminalSupports = 0x03
	condUnderX           = 0x06
	condOverX            = 0x07
	condUnderY           = 0x08
	condOverY            = 0x09
)

// CVM result codes (results byte 3)
const (
	cvmResultUnknown = 0x00
	cvmResultFailed  = 0x01
	cvmResultSuccess = 0x02
)

func (e *Engine) setCVMResults(method, condition, result byte) {
	e.cvmResults = [3]byte{method, condition, result}
	e.env.Terminal.Put(tag.CVMResults, e.cvmResults[:])
}

// CVMResults returns the current 3-byte CVM Results element.
func (e *Engine) CVMResults() []byte {
	out := make([]byte, 3)
	copy(out, e.cvmResults[:])
	return out
}

// PerformCVM decides the cardholder verification method: CDCVM when the
// consumer device already verified the holder, online PIN when the card
// demands it above the CVM limit, otherwise the card's CVM list.
func (e *Engine) PerformCVM(ttq bits.TTQ) {
	defer func() {
		e.env.TSI.SetCardholderVerificationPerformed()
		e.env.Terminal.Put(tag.TSI, e.env.TSI.Bytes())
		e.syncTVR()
	}()

	if !e.aip.CardholderVerificationSupported() && !e.hasCTQ {
		e.setCVMResults(cvmNoCVMRequired, condAlways, cvmResultSuccess)
		return
	}

	if e.hasCTQ && e.ctq.CDCVMPerformed() && ttq.CDCVMSupported() {
		e.setCVMResults(cvmCDCVM, condAlways, cvmResultSuccess)
		return
	}

	cvmRequired := e.params.AmountAuthorized > e.env.Config.CVMRequiredLimit
	if e.hasCTQ && e.ctq.OnlinePINRequired() && cvmRequired {
		e.setCVMResults(cvmOnlinePIN, condAlways, cvmResultUnknown)
		e.env.TVR.SetOnlinePINEntered()
		return
	}

	if e.hasCTQ && e.ctq.SignatureRequired() && cvmRequired {
		// signature is collected after the kernel completes
		e.setCVMResults(cvmSignature, condAlways, cvmResultUnknown)
		return
	}

	list, ok := e.env.Card.Get(tag.CVMList)
	if ok {
		e.walkCVMList(list, cvmRequired)
		return
	}

	if cvmRequired {
		e.env.TVR.SetCardholderVerificationFailed()
		e.env.TVR.SetICCDataMissing()
		e.setCVMResults(cvmFailProcessing, condAlways, cvmResultFailed)
		return
	}
	e.setCVMResults(cvmNoCVMRequired, condAlways, cvmResultSuccess)
}

// walkCVMList traverses the card's rules in order, applying the first
// whose condition holds and that the terminal can perform.
func (e *Engine) walkCVMList(list []byte, cvmRequired bool) {
	if len(list) < 8 || len(list[8:])%2 != 0 {
		e.env.TVR.SetICCDataMissing()
		e.setCVMResults(cvmFailProcessing, condAlways, cvmResultFailed)
		return
	}

	amountX, _ := bytesutil.UintBE(list[0:4])
	amountY, _ := bytesutil.UintBE(list[4:8])
	rules := list[8:]

	for i := 0; i+1 < len(rules); i += 2 {
		method := rules[i] & ^byte(cvmApplySucceeding)
		condition := rules[i+1]

		if !e.cvmConditionHolds(condition, amountX, amountY) {
			continue
		}

		switch method {
		case cvmNoCVMRequired:
			e.setCVMResults(method, condition, cvmResultSuccess)
			return
		case cvmSignature:
			e.setCVMResults(method, condition, cvmResultUnknown)
			return
		case cvmOnlinePIN:
			e.setCVMResults(method, condition, cvmResultUnknown)
			e.env.TVR.SetOnlinePINEntered()
			return
		case cvmFailProcessing:
			e.setCVMResults(method, condition, cvmResultFailed)
			e.env.TVR.SetCardholderVerificationFailed()
			return
		case cvmPlaintextPIN, cvmEncipheredPIN, cvmPlaintextPINSig, cvmEncipheredPINSig:
			// contactless readers have no offline PIN path
			if rules[i]&cvmApplySucceeding != 0 {
				continue
			}
			e.setCVMResults(method, condition, cvmResultFailed)
			e.env.TVR.SetCardholderVerificationFailed()
			return
		default:
			e.env.TVR.SetUnrecognisedCVM()
			if rules[i]&cvmApplySucceeding != 0 {
				continue
			}
			e.setCVMResults(method, condition, cvmResultFailed)
			e.env.TVR.SetCardholderVerificationFailed()
			return
		}
	}

	e.env.Logger.Debug("cvm list exhausted without a matching rule",
		zap.Bool("cvm_required", cvmRequired),
	)
	if cvmRequired {
		e.env.TVR.SetCardholderVerificationFailed()
		e.setCVMResults(cvmFailProcessing, condAlways, cvmResultFailed)
		return
	}
	e.setCVMResults(cvmNoCVMRequired, condAlways, cvmResultSuccess)
}

func (e *Engine) cvmConditionHolds(condition byte, amountX, amountY uint64) bool {
	amount := uint64(e.params.AmountAuthorized)
	switch condition {
	case condAlways:
		return true
	case condUnattendedCash:
		return false
	case condNotCash:
		return e.params.TransactionType != 0x01
	case condTerminalSupports:
		return true
	case condUnderX:
		return amount < amountX
	case condOverX:
		return amount > amountX
	case condUnderY:
		return amount < amountY
	case condOverY:
		return amount > amountY
	default:
		return false
	}
}
