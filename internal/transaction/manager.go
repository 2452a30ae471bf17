package transaction

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mgthompo1/tapkernel/config"
	"github.com/mgthompo1/tapkernel/internal/capability"
	"github.com/mgthompo1/tapkernel/internal/durability/reversal"
	"github.com/mgthompo1/tapkernel/internal/durability/torn"
	"github.com/mgthompo1/tapkernel/internal/emv/apdu"
	"github.com/mgthompo1/tapkernel/internal/emv/bits"
	"github.com/mgthompo1/tapkernel/internal/emv/datastore"
	"github.com/mgthompo1/tapkernel/internal/emv/sensitive"
	"github.com/mgthompo1/tapkernel/internal/entrypoint"
	"github.com/mgthompo1/tapkernel/internal/kernel"
	"github.com/mgthompo1/tapkernel/internal/metrics"
	"github.com/mgthompo1/tapkernel/pkg/bytesutil"
	"github.com/mgthompo1/tapkernel/pkg/errors"
)

// Capabilities groups the injected collaborators the manager hands to
// each kernel environment.
type Capabilities struct {
	ODA        capability.ODAVerifier
	CAKeys     capability.CAKeyStore
	ScriptAuth capability.ScriptAuthenticator
	Clock      capability.Clock
	RNG        capability.RNG
}

// RecoveredTorn reports a torn record resolved during this presentation;
// a non-empty cryptogram must be notified online by the caller.
type RecoveredTorn struct {
	RecordID   string
	Outcome    torn.QueryOutcome
	Cryptogram string
}

// Result is what one card presentation produced.
type Result struct {
	TransactionID string
	Scheme        string
	Outcome       kernel.Outcome
	Recovered     []RecoveredTorn
}

// Manager orchestrates one transaction at a time: entry point, kernel,
// state machine and the durability layer.
type Manager struct {
	cfg       config.Configs
	logger    *zap.Logger
	entry     *entrypoint.EntryPoint
	tornLog   *torn.Log
	recover   *torn.Recoverer
	reversals *reversal.Queue
	caps      Capabilities

	mu      sync.Mutex
	active  bool
	machine *Machine

	// state of the in-flight transaction
	currentKernel kernel.Kernel
	currentParams kernel.Params
	currentAuth   *kernel.Authorization
}

// NewManager wires the orchestrator.
func NewManager(
	cfg config.Configs,
	entry *entrypoint.EntryPoint,
	tornLog *torn.Log,
	reversals *reversal.Queue,
	caps Capabilities,
	logger *zap.Logger,
) *Manager {
	m := &Manager{
		cfg:       cfg,
		logger:    logger,
		entry:     entry,
		tornLog:   tornLog,
		recover:   torn.NewRecoverer(logger),
		reversals: reversals,
		caps:      caps,
		machine:   NewMachine(logger),
	}
	tornLog.OnEvict(m.enqueueTornReversal)
	return m
}

// Machine exposes the state machine for observation.
func (m *Manager) Machine() *Machine { return m.machine }

// Begin arms the manager for one transaction. A second Begin before the
// active transaction settles fails with TransactionInProgress.
func (m *Manager) Begin(params kernel.Params) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active {
		return errors.ErrTransactionInProgress
	}
	if params.TransactionID == "" {
		params.TransactionID = uuid.New().String()
	}

	if err := m.machine.Transition(StateAwaitingCard); err != nil {
		return err
	}
	m.active = true
	m.currentParams = params
	m.currentAuth = nil
	m.currentKernel = nil
	return nil
}

// ProcessCard drives a presented card through selection and kernel
// processing, then probes it for pending torn transactions.
func (m *Manager) ProcessCard(ctx context.Context, transceiver capability.Transceiver) (*Result, error) {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return nil, errors.InvalidStateTransition(string(m.machine.State()), string(StateCardDetected))
	}
	params := m.currentParams
	m.mu.Unlock()

	if err := m.machine.Transition(StateCardDetected); err != nil {
		return nil, err
	}

	registry := sensitive.NewRegistry()
	m.machine.Bind(registry)

	env := &kernel.Env{
		Logger:     m.logger,
		Exchanger:  apdu.NewExchanger(transceiver).WithTimeout(m.cfg.KERNEL.TransceiveTimeout),
		Terminal:   datastore.New(),
		Card:       datastore.New(),
		TVR:        &bits.TVR{},
		TSI:        &bits.TSI{},
		Registry:   registry,
		Config:     m.cfg.KERNEL,
		ODA:        m.caps.ODA,
		CAKeys:     m.caps.CAKeys,
		ScriptAuth: m.caps.ScriptAuth,
		Clock:      m.caps.Clock,
		RNG:        m.caps.RNG,
	}

	selection, err := m.entry.Select(ctx, env.Exchanger)
	if err != nil {
		m.toError()
		m.release()
		return nil, err
	}

	k := selection.Factory(env)
	m.mu.Lock()
	m.currentKernel = k
	m.mu.Unlock()

	if err := m.machine.Transition(StateInit); err != nil {
		return nil, err
	}

	outcome := k.ProcessTransaction(ctx, selection.Application, params)
	metrics.TransactionOutcomes.WithLabelValues(k.Name(), outcome.Type.String()).Inc()

	result := &Result{
		TransactionID: params.TransactionID,
		Scheme:        k.Name(),
		Outcome:       outcome,
	}

	// recovery probes run while the card is still in the field
	if outcome.Authorization != nil && outcome.Authorization.PAN != nil {
		result.Recovered = m.recoverTorn(ctx, env.Exchanger, k.Name(), outcome.Authorization.PAN)
	}

	m.settle(ctx, k.Name(), outcome)
	return result, nil
}

// settle advances the state machine and takes durability actions for the
// kernel outcome.
func (m *Manager) settle(ctx context.Context, scheme string, outcome kernel.Outcome) {
	m.mu.Lock()
	m.currentAuth = outcome.Authorization
	m.mu.Unlock()

	switch outcome.Type {
	case kernel.OutcomeOnlineRequest:
		m.advanceToFirstAC()
		if err := m.machine.Transition(StateOnline); err != nil {
			m.logger.Error("state machine out of step", zap.Error(err))
		}

	case kernel.OutcomeApproved, kernel.OutcomeDeclined:
		m.advanceToFirstAC()
		if err := m.machine.Transition(StateCompletion); err != nil {
			m.logger.Error("state machine out of step", zap.Error(err))
		}
		m.release()

	case kernel.OutcomeTryAnotherInterface:
		m.toError()
		m.release()

	case kernel.OutcomeEndApplication:
		m.handleFailure(ctx, scheme, outcome)
		m.release()
	}
}

// advanceToFirstAC steps the machine through the kernel-internal stages
// so observers see the documented path.
func (m *Manager) advanceToFirstAC() {
	for _, s := range []State{StateGPO, StateReadRecords, StateODA, StateRestrictions, StateCVM, StateRisk, StateTAA, StateFirstAC} {
		if err := m.machine.Transition(s); err != nil {
			m.logger.Error("state machine out of step", zap.Error(err))
			return
		}
	}
}

// handleFailure maps a kernel failure onto durable records: a tear after
// the cryptogram enqueues a reversal; an interrupted exchange with a
// known PAN takes a torn record.
func (m *Manager) handleFailure(ctx context.Context, scheme string, outcome kernel.Outcome) {
	m.toError()

	auth := outcome.Authorization
	isTear := errors.Is(outcome.Err, errors.ErrCardCommunication)

	if auth != nil && auth.Cryptogram != "" && outcome.Phase >= kernel.PhaseAfterGenerateACSent {
		reason := reversal.ReasonSystemError
		if isTear {
			reason = reversal.ReasonCommunicationError
		}
		m.enqueueReversal(ctx, auth, reason)
		return
	}

	if isTear && auth != nil && auth.PAN != nil {
		rec := torn.Record{
			TransactionID: m.currentParams.TransactionID,
			PANHash:       auth.PAN.Hash(),
			PANLast4:      auth.PAN.LastFour(),
			PSN:           auth.PSN,
			Amount:        m.currentParams.AmountAuthorized,
			Currency:      m.currentParams.CurrencyCode,
			ATC:           bytesutil.ToHex(auth.ATC),
			AID:           bytesutil.ToHex(auth.AID),
			Scheme:        scheme,
			Phase:         tornPhase(outcome.Phase),
		}
		if _, err := m.tornLog.Append(ctx, rec); err != nil {
			m.logger.Error("failed to record torn transaction", zap.Error(err))
		}
	}
}

func tornPhase(p kernel.Phase) torn.Phase {
	switch p {
	case kernel.PhaseAfterGenerateACSent:
		return torn.PhaseAfterGenerateACSent
	case kernel.PhaseDuringResponse:
		return torn.PhaseDuringResponse
	default:
		return torn.PhaseBeforeGenerateAC
	}
}

// CompleteOnline feeds the acquirer response back: issuer
// authentication, scripts and the second AC for kernels that support it.
// A card failure here enqueues a reversal around the first cryptogram.
func (m *Manager) CompleteOnline(ctx context.Context, resp kernel.OnlineResponse) (*kernel.OnlineResult, error) {
	m.mu.Lock()
	k := m.currentKernel
	auth := m.currentAuth
	m.mu.Unlock()

	if m.machine.State() != StateOnline {
		return nil, errors.InvalidStateTransition(string(m.machine.State()), string(StateIssuerAuth))
	}

	onlineKernel, ok := k.(kernel.OnlineKernel)
	if !ok {
		// schemes without a second AC finish on the acquirer verdict
		if err := m.machine.Transition(StateCompletion); err != nil {
			return nil, err
		}
		m.release()
		result := &kernel.OnlineResult{Type: kernel.OnlineResultDeclined, Authorization: auth}
		if resp.Approved {
			result.Type = kernel.OnlineResultApproved
		}
		return result, nil
	}

	if err := m.machine.Transition(StateIssuerAuth); err != nil {
		return nil, err
	}
	if err := m.machine.Transition(StateSecondAC); err != nil {
		return nil, err
	}

	result := onlineKernel.ProcessOnlineResponse(ctx, resp, auth)
	if result.Type == kernel.OnlineResultEndApplication {
		m.toError()
		if auth != nil && auth.Cryptogram != "" {
			m.enqueueReversal(ctx, auth, reversal.ReasonCommunicationError)
		}
		m.release()
		return &result, result.Err
	}

	if err := m.machine.Transition(StateCompletion); err != nil {
		return nil, err
	}
	m.release()
	return &result, nil
}

// FailOnline records that the acquirer exchange failed after the
// cryptogram was produced; the authorization must be reversed.
func (m *Manager) FailOnline(ctx context.Context, reason reversal.Reason) error {
	m.mu.Lock()
	auth := m.currentAuth
	m.mu.Unlock()

	if m.machine.State() != StateOnline {
		return errors.InvalidStateTransition(string(m.machine.State()), string(StateError))
	}

	m.toError()
	if auth != nil && auth.Cryptogram != "" {
		m.enqueueReversal(ctx, auth, reason)
	}
	m.release()
	return nil
}

// Cancel aborts the active transaction. Before the first AC this only
// wipes state; after it, the generated cryptogram must be reversed.
func (m *Manager) Cancel(ctx context.Context) error {
	m.mu.Lock()
	auth := m.currentAuth
	m.mu.Unlock()

	state := m.machine.State()
	if state == StateIdle {
		return errors.InvalidStateTransition(string(state), string(StateCancelled))
	}

	if m.machine.Cancellable() {
		if err := m.machine.Transition(StateCancelled); err != nil {
			return err
		}
		m.release()
		return nil
	}

	if err := m.machine.Transition(StateCancelled); err != nil {
		return err
	}
	if auth != nil && auth.Cryptogram != "" {
		m.enqueueReversal(ctx, auth, reversal.ReasonUserCancelled)
	}
	m.release()
	return nil
}

// release returns the machine to IDLE and frees the single-transaction
// slot.
func (m *Manager) release() {
	if err := m.machine.Transition(StateIdle); err != nil {
		m.logger.Error("failed to return to idle", zap.Error(err))
	}
	m.mu.Lock()
	m.active = false
	m.mu.Unlock()
}

func (m *Manager) toError() {
	if err := m.machine.Transition(StateError); err != nil {
		m.logger.Error("failed to enter error state", zap.Error(err))
	}
}

// enqueueReversal builds the queue record from an authorization payload.
func (m *Manager) enqueueReversal(ctx context.Context, auth *kernel.Authorization, reason reversal.Reason) {
	rec := reversal.Record{
		OriginalTransactionID: m.currentParams.TransactionID,
		Amount:                auth.AmountAuthorized,
		Currency:              auth.CurrencyCode,
		MaskedPAN:             auth.MaskedPAN,
		PSN:                   auth.PSN,
		Cryptogram:            auth.Cryptogram,
		CryptogramType:        auth.CryptogramType,
		Reason:                reason,
	}
	if _, err := m.reversals.Enqueue(ctx, rec); err != nil {
		m.logger.Error("failed to queue reversal", zap.Error(err))
	}
}

// enqueueTornReversal handles torn-log evictions and exhausted
// recoveries.
func (m *Manager) enqueueTornReversal(ctx context.Context, rec torn.Record) {
	rev := reversal.Record{
		OriginalTransactionID: rec.TransactionID,
		Amount:                rec.Amount,
		Currency:              rec.Currency,
		MaskedPAN:             "******" + rec.PANLast4,
		PSN:                   rec.PSN,
		Cryptogram:            rec.RecoveredCryptogram,
		Reason:                reversal.ReasonPartialCompletion,
	}
	if _, err := m.reversals.Enqueue(ctx, rev); err != nil {
		m.logger.Error("failed to queue reversal for torn record", zap.Error(err))
	}
}

// recoverTorn probes the presented card for the fate of matching pending
// torn records.
func (m *Manager) recoverTorn(ctx context.Context, ex *apdu.Exchanger, scheme string, pan *sensitive.PAN) []RecoveredTorn {
	pending := m.tornLog.PendingFor(pan.Hash())
	if len(pending) == 0 {
		return nil
	}

	var out []RecoveredTorn
	for _, rec := range pending {
		query := m.recover.Probe(ctx, ex, scheme, rec)
		recovered := RecoveredTorn{RecordID: rec.RecordID, Outcome: query.Outcome, Cryptogram: query.Cryptogram}

		switch query.Outcome {
		case torn.CompletedOnCard:
			if err := m.tornLog.MarkRecovered(ctx, rec.RecordID, query.Cryptogram); err != nil {
				m.logger.Error("failed to mark torn record recovered", zap.Error(err))
			}
		case torn.NotFoundOnCard, torn.AbortedOnCard:
			if err := m.tornLog.MarkRecovered(ctx, rec.RecordID, ""); err != nil {
				m.logger.Error("failed to mark torn record recovered", zap.Error(err))
			}
		case torn.QueryFailed:
			if _, err := m.tornLog.RecordAttempt(ctx, rec.RecordID); err != nil {
				m.logger.Error("failed to count torn recovery attempt", zap.Error(err))
			}
		}
		out = append(out, recovered)
	}
	return out
}
