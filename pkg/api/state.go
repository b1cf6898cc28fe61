package api

import "fmt"

// LoopState is a state of the function-call feedback loop.
type LoopState string

const (
	LoopStateInitial          LoopState = "initial"
	LoopStateAwaitingFeedback LoopState = "awaiting_feedback"
	LoopStateContinuing       LoopState = "continuing"
	LoopStateTerminal         LoopState = "terminal"
)

var loopTransitions = map[LoopState][]LoopState{
	LoopStateInitial:          {LoopStateAwaitingFeedback, LoopStateTerminal},
	LoopStateAwaitingFeedback: {LoopStateContinuing},
	LoopStateContinuing:       {LoopStateAwaitingFeedback, LoopStateTerminal},
	LoopStateTerminal:         {}, // terminal
}

// ValidateLoopTransition checks whether a feedback loop transition is valid.
// The terminal state does not allow outgoing transitions.
func ValidateLoopTransition(from, to LoopState) *APIError {
	allowed, exists := loopTransitions[from]
	if !exists {
		return NewServerError(fmt.Sprintf("invalid loop transition from %s to %s", from, to))
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return NewServerError(fmt.Sprintf("invalid loop transition from %s to %s", from, to))
}

// NextLoopState returns the state reached after executing a query: a reply
// with pending tool calls awaits feedback, anything else is terminal.
func NextLoopState(hasPending bool) LoopState {
	if hasPending {
		return LoopStateAwaitingFeedback
	}
	return LoopStateTerminal
}
