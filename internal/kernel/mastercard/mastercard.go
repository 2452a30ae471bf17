// Package mastercard implements the M/Chip contactless kernel with the
// relay resistance protocol, the PayPass mag-stripe path, issuer script
// execution and the second GENERATE AC after online authorization.
package mastercard

import (
	"context"

	"github.com/mgthompo1/tapkernel/internal/capability"
	"github.com/mgthompo1/tapkernel/internal/emv/bits"
	"github.com/mgthompo1/tapkernel/internal/emv/tag"
	"github.com/mgthompo1/tapkernel/internal/kernel"
)

// Scheme is the kernel identifier used in outcomes and dispatch.
const Scheme = "mastercard"

// Kernel drives one Mastercard transaction over the shared EMV engine.
// The engine is retained between the first AC and the online response so
// the second AC runs against the same card session.
type Kernel struct {
	env *kernel.Env
	eng *kernel.Engine
}

// New builds a Mastercard kernel over a per-transaction environment.
func New(env *kernel.Env) *Kernel {
	return &Kernel{env: env}
}

// Name implements kernel.Kernel.
func (k *Kernel) Name() string { return Scheme }

// ProcessTransaction implements kernel.Kernel.
func (k *Kernel) ProcessTransaction(ctx context.Context, app kernel.SelectedApplication, params kernel.Params) kernel.Outcome {
	eng := kernel.NewEngine(k.env, app, params)
	k.eng = eng

	if err := eng.Initialize(); err != nil {
		return eng.Fail(err)
	}

	if err := eng.RunGPO(ctx); err != nil {
		return eng.Fail(err)
	}

	if !eng.AIP().EMVModeSupported() {
		return k.processMagstripe(ctx, eng)
	}

	if eng.AIP().RelayResistanceSupported() {
		k.performRelayResistance(ctx)
	}

	if err := eng.ReadRecords(ctx); err != nil {
		return eng.Fail(err)
	}

	eng.PerformODA(ctx)
	eng.CheckRestrictions()
	eng.PerformCVM(bits.TTQ{})
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

// ProcessOnlineResponse implements kernel.OnlineKernel: issuer
// authentication, pre-AC scripts, the second GENERATE AC, post-AC
// scripts.
func (k *Kernel) ProcessOnlineResponse(ctx context.Context, resp kernel.OnlineResponse, prev *kernel.Authorization) kernel.OnlineResult {
	eng := k.eng
	if eng == nil {
		return kernel.OnlineResult{Type: kernel.OnlineResultEndApplication}
	}

	authStatus := eng.ProcessIssuerAuth(ctx, resp)

	// scripts only run when issuer authentication certified success
	var scriptResults []byte
	if authStatus == capability.ScriptAuthSuccess {
		scriptResults = eng.ExecuteScripts(ctx, resp.IssuerScripts, kernel.ScriptBeforeAC)
	}

	ac, err := eng.GenerateSecondAC(ctx, resp.Approved)
	if err != nil {
		out := eng.Fail(err)
		return kernel.OnlineResult{Type: kernel.OnlineResultEndApplication, Authorization: out.Authorization, Err: out.Err}
	}

	if authStatus == capability.ScriptAuthSuccess {
		scriptResults = append(scriptResults, eng.ExecuteScripts(ctx, resp.IssuerScripts, kernel.ScriptAfterAC)...)
	}

	auth := eng.BuildAuthorization(Scheme, ac)
	if prev != nil {
		auth.TransactionMode = prev.TransactionMode
	}

	result := kernel.OnlineResult{Authorization: auth, ScriptResults: scriptResults}
	if ac.Type == kernel.CryptogramTC {
		result.Type = kernel.OnlineResultApproved
	} else {
		result.Type = kernel.OnlineResultDeclined
	}
	return result
}
