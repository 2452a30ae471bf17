// Package visa implements the qVSDC contactless kernel, including the
// fast path where the GPO response already carries the cryptogram, the
// fDDA variant of offline authentication and the legacy MSD fallback.
package visa

import (
	"context"

	"github.com/mgthompo1/tapkernel/internal/emv/bits"
	"github.com/mgthompo1/tapkernel/internal/emv/sensitive"
	"github.com/mgthompo1/tapkernel/internal/emv/tag"
	"github.com/mgthompo1/tapkernel/internal/kernel"
	"github.com/mgthompo1/tapkernel/pkg/errors"
)

// Scheme is the kernel identifier used in outcomes and dispatch.
const Scheme = "visa"

// Kernel drives one Visa transaction over the shared EMV engine.
type Kernel struct {
	env *kernel.Env
}

// New builds a Visa kernel over a per-transaction environment.
func New(env *kernel.Env) *Kernel {
	return &Kernel{env: env}
}

// Name implements kernel.Kernel.
func (k *Kernel) Name() string { return Scheme }

// ttq assembles the terminal transaction qualifiers: EMV mode, online
// PIN and signature support, CDCVM accepted, CVM required above limit.
func (k *Kernel) ttq(params kernel.Params) bits.TTQ {
	ttq := bits.ParseTTQ([]byte{0x36, 0x00, 0x40, 0x00})
	if params.AmountAuthorized > k.env.Config.CVMRequiredLimit {
		ttq[1] |= 0x40
	}
	return ttq
}

// ProcessTransaction implements kernel.Kernel.
func (k *Kernel) ProcessTransaction(ctx context.Context, app kernel.SelectedApplication, params kernel.Params) kernel.Outcome {
	eng := kernel.NewEngine(k.env, app, params)

	if err := eng.Initialize(); err != nil {
		return eng.Fail(err)
	}
	ttq := k.ttq(params)
	k.env.Terminal.Put(tag.TTQ, ttq.Bytes())

	if err := eng.RunGPO(ctx); err != nil {
		return eng.Fail(err)
	}

	// qVSDC fast path: the card computed the cryptogram during GPO and
	// returned it alongside the application data
	if k.env.Card.Has(tag.ApplicationCryptogram) {
		return k.finishFastPath(ctx, eng, ttq)
	}

	if err := eng.ReadRecords(ctx); err != nil {
		return eng.Fail(err)
	}

	if !k.env.Card.Has(tag.CDOL1) && !k.env.Card.Has(tag.ApplicationCryptogram) && k.env.Card.Has(tag.Track2Equivalent) {
		return k.finishMagstripe(eng)
	}

	eng.PerformODA(ctx)
	eng.CheckRestrictions()
	eng.PerformCVM(ttq)
	if err := eng.PerformRiskManagement(); err != nil {
		return eng.Fail(err)
	}

	request := eng.ActionAnalysis(bits.ActionCode{}, bits.ActionCode{})
	ac, err := eng.GenerateAC(ctx, request, tag.CDOL1)
	if err != nil {
		return eng.Fail(err)
	}
	return eng.MapACOutcome(Scheme, ac)
}

// finishFastPath completes a transaction whose GPO already carried the
// cryptogram: fDDA, restrictions and CVM still run, but no GENERATE AC.
func (k *Kernel) finishFastPath(ctx context.Context, eng *kernel.Engine, ttq bits.TTQ) kernel.Outcome {
	if err := eng.ReadRecords(ctx); err != nil {
		return eng.Fail(err)
	}

	eng.PerformODA(ctx)
	eng.CheckRestrictions()
	eng.PerformCVM(ttq)
	if err := eng.PerformRiskManagement(); err != nil {
		return eng.Fail(err)
	}

	acBytes, err := eng.RequireCardData(tag.ApplicationCryptogram)
	if err != nil {
		return eng.Fail(err)
	}
	atc, err := eng.RequireCardData(tag.ATC)
	if err != nil {
		return eng.Fail(err)
	}

	crypt := sensitive.NewCryptogram(acBytes)
	k.env.Registry.Track(&crypt.Buffer)

	cid := byte(0x80)
	if v, ok := k.env.Card.Get(tag.CID); ok && len(v) == 1 {
		cid = v[0]
	}
	iad, _ := k.env.Card.Get(tag.IAD)

	ac := &kernel.ACResult{
		CID:        cid,
		Type:       kernel.CryptogramTypeFromCID(cid),
		ATC:        atc,
		Cryptogram: crypt,
		IAD:        iad,
	}
	return eng.MapACOutcome(Scheme, ac)
}

// finishMagstripe builds the legacy MSD outcome around the track 2 data.
func (k *Kernel) finishMagstripe(eng *kernel.Engine) kernel.Outcome {
	if !k.env.Card.Has(tag.Track2Equivalent) {
		return eng.Fail(errors.MissingMandatoryData(uint32(tag.Track2Equivalent)))
	}

	auth := eng.BuildAuthorization(Scheme, nil)
	auth.TransactionMode = kernel.ModeMagstripe
	auth.CryptogramType = "ARQC"
	return kernel.Outcome{Type: kernel.OutcomeOnlineRequest, Authorization: auth}
}
