// Package sim drives the simulation: a tick state machine, the polling
// loop that wires the price feed to the strategy and ledger, and the
// snapshot fan-out to external consumers.
package sim

import (
	"fmt"
	"time"
)

// LoopState represents the current phase of the simulation loop.
type LoopState string

const (
	// StateInit is the pre-run phase: configuration loaded, components
	// constructed, portfolio zeroed.
	StateInit LoopState = "init"
	// StatePolling waits for the next scheduled tick and fetches a price.
	StatePolling LoopState = "polling"
	// StateRetrying is the bounded retry sub-phase entered on a source
	// failure during polling.
	StateRetrying LoopState = "retrying"
	// StateEvaluating feeds the new price through the tracker and the
	// signal engine.
	StateEvaluating LoopState = "evaluating"
	// StateTradeApplied is reached when the tick's signal executed.
	StateTradeApplied LoopState = "trade_applied"
	// StateIdle is reached when the tick completed without a trade.
	StateIdle LoopState = "idle"
	// StateStopped is terminal: explicit shutdown or fatal init error.
	StateStopped LoopState = "stopped"
)

// StateTransition defines a valid loop state transition.
type StateTransition struct {
	From        LoopState
	To          LoopState
	Condition   string
	Description string
}

// ValidTransitions enumerates the legal tick cycle:
// Init -> Polling <-> Evaluating -> (TradeApplied | Idle) -> Polling -> ... -> Stopped.
var ValidTransitions = []StateTransition{
	{StateInit, StatePolling, "components_ready", "Components constructed, loop entering steady state"},
	{StateInit, StateStopped, "init_failed", "Fatal configuration or construction error"},

	{StatePolling, StateEvaluating, "price_received", "Price sample fetched successfully"},
	{StatePolling, StateRetrying, "source_error", "Price source failed, bounded retry in progress"},
	{StateRetrying, StateEvaluating, "price_received", "Retry produced a price sample"},
	{StateRetrying, StateIdle, "retries_exhausted", "Retry budget exhausted, tick degraded"},

	{StateEvaluating, StateTradeApplied, "trade_executed", "Signal executed against the ledger"},
	{StateEvaluating, StateIdle, "no_trade", "HOLD signal or no executable order"},
	{StateEvaluating, StateIdle, "trade_skipped", "Signal rejected by ledger constraints"},
	{StateEvaluating, StateIdle, "invalid_price", "Price rejected by the tracker, tick skipped"},

	{StateTradeApplied, StatePolling, "tick_complete", "Snapshot published, scheduling next poll"},
	{StateIdle, StatePolling, "tick_complete", "Snapshot published, scheduling next poll"},

	{StatePolling, StateStopped, "shutdown", "Shutdown requested"},
	{StateRetrying, StateStopped, "shutdown", "Shutdown requested"},
	{StateEvaluating, StateStopped, "shutdown", "Shutdown requested"},
	{StateTradeApplied, StateStopped, "shutdown", "Shutdown requested"},
	{StateIdle, StateStopped, "shutdown", "Shutdown requested"},
}

// StateMachine validates and tracks loop state transitions.
type StateMachine struct {
	currentState   LoopState
	previousState  LoopState
	transitionTime time.Time
	transitionCnt  map[LoopState]int
}

// NewStateMachine creates a machine in the Init state.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		currentState:  StateInit,
		previousState: StateInit,
		transitionCnt: make(map[LoopState]int),
	}
}

// Current returns the current state.
func (sm *StateMachine) Current() LoopState {
	return sm.currentState
}

// Previous returns the state before the last transition.
func (sm *StateMachine) Previous() LoopState {
	return sm.previousState
}

// Transition moves to a new state if the transition table allows it.
func (sm *StateMachine) Transition(to LoopState, condition string) error {
	if !sm.isDefined(to, condition) {
		return fmt.Errorf("invalid transition from %s to %s with condition %q",
			sm.currentState, to, condition)
	}

	sm.previousState = sm.currentState
	sm.currentState = to
	sm.transitionTime = time.Now().UTC()
	sm.transitionCnt[to]++
	return nil
}

func (sm *StateMachine) isDefined(to LoopState, condition string) bool {
	for _, t := range ValidTransitions {
		if t.From == sm.currentState && t.To == to && t.Condition == condition {
			return true
		}
	}
	return false
}

// TransitionCount returns how many times the loop has entered a state.
func (sm *StateMachine) TransitionCount(state LoopState) int {
	return sm.transitionCnt[state]
}

// Stopped reports whether the machine reached its terminal state.
func (sm *StateMachine) Stopped() bool {
	return sm.currentState == StateStopped
}
