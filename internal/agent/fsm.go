package agent

import (
	"context"

	"github.com/qmuntal/stateless" // FSM library

	"github.com/comigor/cryptosec-go/internal/logger"
)

// FSM States
type FSMState stateless.State

var (
	StateIdle      FSMState = "Idle"      // Initial, and terminal for every turn
	StateStreaming FSMState = "Streaming" // Exactly one exchange in flight
)

// FSM Triggers
type FSMTrigger stateless.Trigger

var (
	TriggerSubmit    FSMTrigger = "Submit"
	TriggerCompleted FSMTrigger = "Completed"
	TriggerFailed    FSMTrigger = "Failed"
	TriggerCancelled FSMTrigger = "Cancelled" // Stream ended without a terminal marker
)

// newMachine builds the per-session exchange machine. Submitting while
// streaming re-enters Streaming: the previous exchange is aborted by the store.
func newMachine(sessionID string, initial FSMState) *stateless.StateMachine {
	fsm := stateless.NewStateMachineWithMode(initial, stateless.FiringQueued)

	fsm.Configure(StateIdle).
		Permit(TriggerSubmit, StateStreaming).
		Ignore(TriggerCompleted).
		Ignore(TriggerFailed).
		Ignore(TriggerCancelled)

	fsm.Configure(StateStreaming).
		PermitReentry(TriggerSubmit).
		Permit(TriggerCompleted, StateIdle).
		Permit(TriggerFailed, StateIdle).
		Permit(TriggerCancelled, StateIdle)

	if sessionID != "" {
		fsm.OnTransitioned(func(_ context.Context, tr stateless.Transition) {
			logger.L.Debug("FSM transition", "session", sessionID, "from", tr.Source, "to", tr.Destination, "trigger", tr.Trigger)
		})
	}
	return fsm
}

// Transition is the pure transition function of the exchange machine: the
// state reached by firing trigger from state. Unknown moves return an error.
func Transition(from FSMState, trigger FSMTrigger) (FSMState, error) {
	fsm := newMachine("", from)
	if err := fsm.Fire(trigger); err != nil {
		return from, err
	}
	return fsm.MustState().(FSMState), nil
}
