package kernel

import (
	"context"

	"go.uber.org/zap"

	"github.com/mgthompo1/tapkernel/internal/emv/bits"
	"github.com/mgthompo1/tapkernel/internal/emv/sensitive"
	"github.com/mgthompo1/tapkernel/internal/emv/tag"
	"github.com/mgthompo1/tapkernel/pkg/errors"
)

// FlowConfig parameterizes RunStandard per scheme.
type FlowConfig struct {
	Scheme    string
	TTQ       bits.TTQ
	TACDenial bits.ActionCode
	TACOnline bits.ActionCode
}

// RunStandard executes the shared EMV sequence end to end and maps the
// cryptogram into a kernel outcome. Scheme kernels with extra states
// (RRP, mag-stripe) compose the individual steps instead.
func (e *Engine) RunStandard(ctx context.Context, cfg FlowConfig) Outcome {
	if err := e.Initialize(); err != nil {
		return e.Fail(err)
	}
	e.env.Terminal.Put(tag.TTQ, cfg.TTQ.Bytes())

	if err := e.RunGPO(ctx); err != nil {
		return e.Fail(err)
	}
	if err := e.ReadRecords(ctx); err != nil {
		return e.Fail(err)
	}

	e.PerformODA(ctx)
	e.CheckRestrictions()
	e.PerformCVM(cfg.TTQ)
	if err := e.PerformRiskManagement(); err != nil {
		return e.Fail(err)
	}

	request := e.ActionAnalysis(cfg.TACDenial, cfg.TACOnline)

	ac, err := e.GenerateAC(ctx, request, tag.CDOL1)
	if err != nil {
		return e.Fail(err)
	}

	return e.MapACOutcome(cfg.Scheme, ac)
}

// MapACOutcome converts a cryptogram result into the kernel outcome.
func (e *Engine) MapACOutcome(scheme string, ac *ACResult) Outcome {
	auth := e.BuildAuthorization(scheme, ac)

	switch ac.Type {
	case CryptogramTC:
		return Outcome{Type: OutcomeApproved, Phase: e.phase, Authorization: auth}
	case CryptogramARQC:
		return Outcome{Type: OutcomeOnlineRequest, Phase: e.phase, Authorization: auth}
	default:
		return Outcome{
			Type:          OutcomeDeclined,
			Reason:        "declined by card",
			Phase:         e.phase,
			Authorization: auth,
			Err:           errors.ErrGenerateACRejected,
		}
	}
}

// Fail maps an error onto the matching terminal outcome.
func (e *Engine) Fail(err error) Outcome {
	e.env.Logger.Warn("kernel processing failed",
		zap.String("phase", e.phase.String()),
		zap.Error(err),
	)

	if errors.Is(err, errors.ErrTryAnotherInterface) {
		return Outcome{Type: OutcomeTryAnotherInterface, Reason: err.Error(), Phase: e.phase, Err: err}
	}

	out := Outcome{Type: OutcomeEndApplication, Reason: err.Error(), Phase: e.phase, Err: err}
	// keep whatever was captured before the failure so the durability
	// layer can build a reversal around the cryptogram
	if e.phase >= PhaseAfterGenerateACSent {
		out.Authorization = e.partialAuthorization()
	}
	return out
}

func (e *Engine) partialAuthorization() *Authorization {
	var ac *ACResult
	if cid, ok := e.env.Card.Get(tag.CID); ok {
		if acBytes, ok := e.env.Card.Get(tag.ApplicationCryptogram); ok {
			atc, _ := e.env.Card.Get(tag.ATC)
			iad, _ := e.env.Card.Get(tag.IAD)
			crypt := sensitive.NewCryptogram(acBytes)
			e.env.Registry.Track(&crypt.Buffer)
			ac = &ACResult{
				CID:        cid[0],
				Type:       CryptogramTypeFromCID(cid[0]),
				ATC:        atc,
				Cryptogram: crypt,
				IAD:        iad,
			}
		}
	}
	return e.BuildAuthorization("", ac)
}
