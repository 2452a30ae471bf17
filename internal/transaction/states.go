// Package transaction owns the per-presentation state machine and the
// orchestrator that links entry point, kernels and the durability layer.
package transaction

import (
	"sync"

	"go.uber.org/zap"

	"github.com/mgthompo1/tapkernel/internal/emv/sensitive"
	"github.com/mgthompo1/tapkernel/pkg/errors"
)

// State is one node of the transaction state machine.
type State string

const (
	StateIdle         State = "IDLE"
	StateAwaitingCard State = "AWAITING_CARD"
	StateCardDetected State = "CARD_DETECTED"
	StateInit         State = "INIT"
	StateGPO          State = "GPO"
	StateReadRecords  State = "READ_RECORDS"
	StateODA          State = "ODA"
	StateRestrictions State = "RESTRICTIONS"
	StateCVM          State = "CVM"
	StateRisk         State = "RISK"
	StateTAA          State = "TAA"
	StateFirstAC      State = "FIRST_AC"
	StateOnline       State = "ONLINE"
	StateIssuerAuth   State = "ISSUER_AUTH"
	StateSecondAC     State = "SECOND_AC"
	StateCompletion   State = "COMPLETION"
	StateError        State = "ERROR"
	StateCancelled    State = "CANCELLED"
)

// transitions is the static successor table. Any edge not listed is an
// invalid transition.
var transitions = map[State][]State{
	StateIdle:         {StateAwaitingCard},
	StateAwaitingCard: {StateCardDetected, StateCancelled, StateIdle},
	StateCardDetected: {StateInit, StateError, StateCancelled},
	StateInit:         {StateGPO, StateError, StateCancelled},
	StateGPO:          {StateReadRecords, StateError, StateCancelled},
	StateReadRecords:  {StateODA, StateError, StateCancelled},
	StateODA:          {StateRestrictions, StateError, StateCancelled},
	StateRestrictions: {StateCVM, StateError, StateCancelled},
	StateCVM:          {StateRisk, StateError, StateCancelled},
	StateRisk:         {StateTAA, StateError, StateCancelled},
	StateTAA:          {StateFirstAC, StateError, StateCancelled},
	StateFirstAC:      {StateOnline, StateCompletion, StateError, StateCancelled},
	StateOnline:       {StateIssuerAuth, StateCompletion, StateError, StateCancelled},
	StateIssuerAuth:   {StateSecondAC, StateError},
	StateSecondAC:     {StateCompletion, StateError},
	StateCompletion:   {StateIdle},
	StateError:        {StateIdle},
	StateCancelled:    {StateIdle},
}

// terminalStates trigger zeroization of the bound sensitive registry.
var terminalStates = map[State]struct{}{
	StateCompletion: {},
	StateError:      {},
	StateCancelled:  {},
}

// cancellableStates are the pre-FIRST_AC states a user may abort from
// without durable consequences.
var cancellableStates = map[State]struct{}{
	StateAwaitingCard: {},
	StateCardDetected: {},
	StateInit:         {},
	StateGPO:          {},
	StateReadRecords:  {},
	StateODA:          {},
	StateRestrictions: {},
	StateCVM:          {},
	StateRisk:         {},
	StateTAA:          {},
}

// Machine enforces the transition table and wipes sensitive buffers on
// entry to any terminal state.
type Machine struct {
	mu       sync.Mutex
	state    State
	registry *sensitive.Registry
	logger   *zap.Logger
}

// NewMachine starts in IDLE.
func NewMachine(logger *zap.Logger) *Machine {
	return &Machine{state: StateIdle, logger: logger}
}

// Bind attaches the sensitive registry of the active transaction.
func (m *Machine) Bind(registry *sensitive.Registry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry = registry
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Successors lists the allowed next states.
func Successors(s State) []State {
	out := make([]State, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

// Transition moves to the next state or fails with
// InvalidStateTransition.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := false
	for _, next := range transitions[m.state] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return errors.InvalidStateTransition(string(m.state), string(to))
	}

	m.logger.Debug("transaction state transition",
		zap.String("from", string(m.state)),
		zap.String("to", string(to)),
	)
	m.state = to

	if _, terminal := terminalStates[to]; terminal && m.registry != nil {
		m.registry.ZeroizeAll()
	}
	return nil
}

// Cancellable reports whether the current state allows a consequence-free
// user cancellation.
func (m *Machine) Cancellable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := cancellableStates[m.state]
	return ok
}
