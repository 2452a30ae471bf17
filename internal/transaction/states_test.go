package transaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mgthompo1/tapkernel/internal/emv/sensitive"
	"github.com/mgthompo1/tapkernel/pkg/errors"
)

func TestHappyPathTransitions(t *testing.T) {
	m := NewMachine(zap.NewNop())
	assert.Equal(t, StateIdle, m.State())

	path := []State{
		StateAwaitingCard, StateCardDetected, StateInit, StateGPO,
		StateReadRecords, StateODA, StateRestrictions, StateCVM,
		StateRisk, StateTAA, StateFirstAC, StateOnline,
		StateIssuerAuth, StateSecondAC, StateCompletion, StateIdle,
	}
	for _, s := range path {
		require.NoError(t, m.Transition(s), "to %s", s)
	}
	assert.Equal(t, StateIdle, m.State())
}

func TestInvalidTransitionFails(t *testing.T) {
	m := NewMachine(zap.NewNop())

	err := m.Transition(StateFirstAC)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidStateTransition))
	assert.Equal(t, StateIdle, m.State(), "failed transition leaves state unchanged")

	require.NoError(t, m.Transition(StateAwaitingCard))
	assert.Error(t, m.Transition(StateOnline))
	assert.Error(t, m.Transition(StateAwaitingCard))
}

func TestSuccessorsMatchTable(t *testing.T) {
	// every reachable state only reaches its listed successors
	for state, successors := range transitions {
		allowed := make(map[State]struct{}, len(successors))
		for _, s := range successors {
			allowed[s] = struct{}{}
		}

		for _, candidate := range []State{
			StateIdle, StateAwaitingCard, StateCardDetected, StateInit,
			StateGPO, StateReadRecords, StateODA, StateRestrictions,
			StateCVM, StateRisk, StateTAA, StateFirstAC, StateOnline,
			StateIssuerAuth, StateSecondAC, StateCompletion, StateError,
			StateCancelled,
		} {
			m := NewMachine(zap.NewNop())
			m.state = state

			err := m.Transition(candidate)
			if _, ok := allowed[candidate]; ok {
				assert.NoError(t, err, "%s -> %s", state, candidate)
			} else {
				assert.Error(t, err, "%s -> %s", state, candidate)
			}
		}
	}
}

func TestTerminalStatesZeroize(t *testing.T) {
	for _, terminal := range []State{StateError, StateCancelled, StateCompletion} {
		m := NewMachine(zap.NewNop())
		registry := sensitive.NewRegistry()
		m.Bind(registry)

		pan := sensitive.NewPAN([]byte("4761740000000012"))
		registry.Track(&pan.Buffer)

		// walk to a state that can reach the terminal state
		require.NoError(t, m.Transition(StateAwaitingCard))
		require.NoError(t, m.Transition(StateCardDetected))
		if terminal == StateCompletion {
			for _, s := range []State{StateInit, StateGPO, StateReadRecords, StateODA, StateRestrictions, StateCVM, StateRisk, StateTAA, StateFirstAC} {
				require.NoError(t, m.Transition(s))
			}
		}
		require.NoError(t, m.Transition(terminal))

		assert.True(t, registry.AllZero(), "buffers wiped on %s", terminal)
		assert.True(t, pan.IsZero())
	}
}

func TestCancellable(t *testing.T) {
	m := NewMachine(zap.NewNop())
	assert.False(t, m.Cancellable(), "idle has nothing to cancel")

	require.NoError(t, m.Transition(StateAwaitingCard))
	assert.True(t, m.Cancellable())

	m.state = StateFirstAC
	assert.False(t, m.Cancellable(), "after the first AC a cancel has durable consequences")

	m.state = StateOnline
	assert.False(t, m.Cancellable())
}
