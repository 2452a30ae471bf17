package kernel

import (
	"context"

	"go.uber.org/zap"

	"github.com/mgthompo1/tapkernel/internal/capability"
	"github.com/mgthompo1/tapkernel/internal/emv/tag"
	"github.com/mgthompo1/tapkernel/pkg/errors"
)

// ODA method names as reported in results and authorization payloads.
const (
	MethodSDA  = "SDA"
	MethodDDA  = "DDA"
	MethodFDDA = "fDDA"
	MethodCDA  = "CDA"
)

// SelectODAMethod picks the strongest method both sides support:
// CDA > DDA/fDDA > SDA. fDDA applies when the GPO already delivered
// signed dynamic data; CDA defers to the GENERATE AC response.
func (e *Engine) SelectODAMethod() string {
	switch {
	case e.aip.CDASupported():
		return MethodCDA
	case e.aip.DDASupported():
		if e.env.Card.Has(tag.SDAD) && e.env.Card.Has(tag.ICCDynamicNumber) {
			return MethodFDDA
		}
		return MethodDDA
	case e.aip.SDASupported():
		return MethodSDA
	default:
		return ""
	}
}

// PerformODA runs the selected offline data authentication method. ODA
// failure is not fatal; it sets the matching TVR bit and the transaction
// continues toward online authorization.
func (e *Engine) PerformODA(ctx context.Context) {
	e.odaMethod = e.SelectODAMethod()

	defer func() {
		e.env.TSI.SetOfflineDataAuthPerformed()
		e.syncTVR()
		e.env.Terminal.Put(tag.TSI, e.env.TSI.Bytes())
	}()

	if e.odaMethod == "" {
		e.odaStatus = ODANotPerformed
		e.env.TVR.SetOfflineDataAuthNotPerformed()
		return
	}

	if e.odaMethod == MethodCDA {
		// verification happens on the GENERATE AC response
		e.odaStatus = ODACDAPending
		return
	}

	req, err := e.buildODARequest()
	if err != nil {
		e.failODA(err.Error())
		return
	}

	var result capability.ODAResult
	switch e.odaMethod {
	case MethodSDA:
		result, err = e.env.ODA.PerformSDA(ctx, req)
	case MethodFDDA:
		req.SignedData, _ = e.env.Card.Get(tag.SDAD)
		result, err = e.env.ODA.PerformFDDA(ctx, req)
	default:
		req.SignedData, _ = e.env.Card.Get(tag.SDAD)
		result, err = e.env.ODA.PerformDDA(ctx, req)
	}

	if err != nil {
		e.failODA(err.Error())
		return
	}
	if !result.Success {
		e.failODA(result.Reason)
		return
	}
	e.odaStatus = ODASucceeded
}

// VerifyCDA checks the signed dynamic application data returned with the
// cryptogram. Called from the GENERATE AC response handler.
func (e *Engine) VerifyCDA(ctx context.Context, sdad, cryptogram []byte) {
	req, err := e.buildODARequest()
	if err != nil {
		e.failCDA(err.Error())
		return
	}
	req.SignedData = sdad
	req.ApplicationCryptogram = cryptogram

	result, err := e.env.ODA.PerformCDA(ctx, req)
	if err != nil {
		e.failCDA(err.Error())
		return
	}
	if !result.Success {
		e.failCDA(result.Reason)
		return
	}
	e.odaStatus = ODASucceeded
	e.syncTVR()
}

func (e *Engine) failODA(reason string) {
	e.odaStatus = ODAFailed
	switch e.odaMethod {
	case MethodSDA:
		e.env.TVR.SetSDAFailed()
	default:
		e.env.TVR.SetDDAFailed()
	}
	e.env.Logger.Warn("offline data authentication failed",
		zap.String("method", e.odaMethod),
		zap.String("reason", reason),
	)
}

func (e *Engine) failCDA(reason string) {
	e.odaStatus = ODAFailed
	e.env.TVR.SetCDAFailed()
	e.syncTVR()
	e.env.Logger.Warn("combined data authentication failed", zap.String("reason", reason))
}

func (e *Engine) buildODARequest() (capability.ODARequest, error) {
	req := capability.ODARequest{
		AID:        e.app.AID,
		StaticData: e.odaBuffer,
	}

	index, err := e.RequireCardData(tag.CAPublicKeyIndex)
	if err != nil {
		return req, err
	}
	rid := e.app.AID
	if len(rid) > 5 {
		rid = rid[:5]
	}
	key, ok := e.env.CAKeys.Lookup(rid, index[0])
	if !ok {
		return req, errors.ODAFailed("no CA public key for index")
	}
	req.CAPublicKey = key

	req.IssuerPKCert, err = e.RequireCardData(tag.IssuerPublicKeyCert)
	if err != nil {
		return req, err
	}
	req.IssuerPKExponent, err = e.RequireCardData(tag.IssuerPublicKeyExp)
	if err != nil {
		return req, err
	}
	req.IssuerPKRemainder, _ = e.env.Card.Get(tag.IssuerPublicKeyRem)

	// dynamic methods additionally need the ICC key chain
	if e.odaMethod != MethodSDA {
		req.ICCPKCert, err = e.RequireCardData(tag.ICCPublicKeyCert)
		if err != nil {
			return req, err
		}
		req.ICCPKExponent, err = e.RequireCardData(tag.ICCPublicKeyExp)
		if err != nil {
			return req, err
		}
		req.ICCPKRemainder, _ = e.env.Card.Get(tag.ICCPublicKeyRem)
	} else {
		req.SignedData, _ = e.env.Card.Get(tag.SignedStaticAppData)
	}

	un, _ := e.env.Terminal.Get(tag.UnpredictableNumber)
	req.UnpredictableNumber = un
	return req, nil
}
