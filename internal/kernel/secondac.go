package kernel

import (
	"context"

	"go.uber.org/zap"

	"github.com/mgthompo1/tapkernel/internal/capability"
	"github.com/mgthompo1/tapkernel/internal/emv/apdu"
	"github.com/mgthompo1/tapkernel/internal/emv/tag"
	"github.com/mgthompo1/tapkernel/pkg/tlv"
)

// ProcessIssuerAuth stores the issuer authentication data and validates
// it through the script authenticator. The kernel never checks the ARPC
// itself; the result only gates issuer script execution.
func (e *Engine) ProcessIssuerAuth(ctx context.Context, resp OnlineResponse) capability.ScriptAuthStatus {
	if len(resp.ResponseCode) > 0 {
		e.env.Terminal.Put(tag.AuthorizationResponse, resp.ResponseCode)
	}
	if len(resp.AuthorizationCode) > 0 {
		e.env.Terminal.Put(tag.AuthorizationCode, resp.AuthorizationCode)
	}
	if len(resp.IssuerAuthData) == 0 {
		return capability.ScriptAuthNoAuthData
	}

	e.env.Terminal.Put(tag.IssuerAuthData, resp.IssuerAuthData)

	// method 1: ARPC(8) ARC(2); method 2: ARPC(4) CSU(4) proprietary
	var arpc, arc []byte
	if len(resp.IssuerAuthData) >= 10 {
		arpc = resp.IssuerAuthData[:8]
		arc = resp.IssuerAuthData[8:10]
	} else if len(resp.IssuerAuthData) >= 8 {
		arpc = resp.IssuerAuthData[:4]
		arc = resp.IssuerAuthData[4:8]
	} else {
		return capability.ScriptAuthNoAuthData
	}

	atc, _ := e.env.Card.Get(tag.ATC)
	status := e.env.ScriptAuth.Validate(ctx, arpc, arc, atc)

	e.env.TSI.SetIssuerAuthenticationPerformed()
	e.env.Terminal.Put(tag.TSI, e.env.TSI.Bytes())
	if status == capability.ScriptAuthInvalidMAC {
		e.env.TVR.SetIssuerAuthenticationFailed()
		e.syncTVR()
	}
	return status
}

// ScriptPhase distinguishes tag 71 (before second AC) from tag 72 (after).
type ScriptPhase int

const (
	ScriptBeforeAC ScriptPhase = iota
	ScriptAfterAC
)

// ExecuteScripts runs the issuer script commands for one phase. A command
// answered with a fatal status word aborts the remaining commands of that
// script and flags the TVR.
func (e *Engine) ExecuteScripts(ctx context.Context, scripts [][]byte, phase ScriptPhase) []byte {
	wantTag := tag.IssuerScript71
	if phase == ScriptAfterAC {
		wantTag = tag.IssuerScript72
	}

	var results []byte
	ran := false
	for _, raw := range scripts {
		objects, err := tlv.Parse(raw)
		if err != nil || len(objects) == 0 || objects[0].Tag != wantTag {
			continue
		}
		ran = true
		results = append(results, e.executeScript(ctx, objects[0], phase)...)
	}

	if ran {
		e.env.TSI.SetScriptProcessingPerformed()
		e.env.Terminal.Put(tag.TSI, e.env.TSI.Bytes())
		e.syncTVR()
	}
	return results
}

// executeScript runs one 71/72 template and returns its 5-byte issuer
// script result (result byte then script identifier).
func (e *Engine) executeScript(ctx context.Context, script tlv.TLV, phase ScriptPhase) []byte {
	var scriptID []byte
	children, err := script.Children()
	if err != nil {
		return e.scriptResult(0x00, scriptID)
	}

	for _, child := range children {
		if child.Tag == 0x9F18 {
			scriptID = child.Value
		}
	}

	for _, child := range children {
		if child.Tag != 0x86 {
			continue
		}
		resp, err := e.env.Exchanger.Exchange(ctx, rawCommand(child.Value))
		if err != nil || scriptCommandFatal(resp.SW()) {
			if phase == ScriptBeforeAC {
				e.env.TVR.SetScriptFailedBeforeFinalAC()
			} else {
				e.env.TVR.SetScriptFailedAfterFinalAC()
			}
			e.env.Logger.Warn("issuer script command failed",
				zap.Int("phase", int(phase)),
				zap.Error(err),
			)
			return e.scriptResult(0x00, scriptID)
		}
	}
	return e.scriptResult(0x20, scriptID)
}

// scriptResult encodes one entry of tag 9F5B: result byte plus the
// rightmost 4 bytes of the script identifier.
func (e *Engine) scriptResult(result byte, scriptID []byte) []byte {
	id := make([]byte, 4)
	if len(scriptID) >= 4 {
		copy(id, scriptID[len(scriptID)-4:])
	} else {
		copy(id[4-len(scriptID):], scriptID)
	}
	return append([]byte{result}, id...)
}

// scriptCommandFatal treats every 6xxx except warnings as fatal for the
// remainder of the script.
func scriptCommandFatal(sw uint16) bool {
	switch apdu.Classify(sw) {
	case apdu.Success, apdu.Warning:
		return false
	default:
		return true
	}
}

// rawCommand wraps pre-encoded script command bytes for the exchanger.
func rawCommand(encoded []byte) apdu.Command {
	if len(encoded) < 4 {
		return apdu.Command{}
	}
	cmd := apdu.Command{CLA: encoded[0], INS: encoded[1], P1: encoded[2], P2: encoded[3]}
	rest := encoded[4:]
	switch {
	case len(rest) == 0:
	case len(rest) == 1:
		cmd.Le = rest[0]
		cmd.HasLE = true
	default:
		lc := int(rest[0])
		if lc <= len(rest)-1 {
			cmd.Data = rest[1 : 1+lc]
			if len(rest) > 1+lc {
				cmd.Le = rest[1+lc]
				cmd.HasLE = true
			}
		}
	}
	return cmd
}

// GenerateSecondAC asks the card to finalize the transaction after
// online processing: TC when the issuer approved, AAC otherwise.
func (e *Engine) GenerateSecondAC(ctx context.Context, approved bool) (*ACResult, error) {
	request := CryptogramAAC
	if approved {
		request = CryptogramTC
	}
	return e.GenerateAC(ctx, request, tag.CDOL2)
}
