package solver

import "fmt"

type State string

const (
	StateRendering   State = "rendering"
	StateRouting     State = "routing"
	StateLLMFallback State = "llm_fallback"
	StateSubmitting  State = "submitting"
	StateFollowNext  State = "follow_next"
	StateRetry       State = "retry"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

var allowedTransitions = map[State]map[State]struct{}{
	StateRendering: {
		StateRouting: {},
		StateFailed:  {},
	},
	StateRouting: {
		StateSubmitting:  {},
		StateLLMFallback: {},
		StateFailed:      {},
	},
	StateLLMFallback: {
		StateSubmitting: {},
		StateFailed:     {},
	},
	StateSubmitting: {
		StateFollowNext: {},
		StateRetry:      {},
		StateDone:       {},
		StateFailed:     {},
	},
	StateFollowNext: {
		StateRendering: {},
		StateFailed:    {},
	},
	StateRetry: {
		StateRouting: {},
		StateFailed:  {},
	},
	StateDone:   {},
	StateFailed: {},
}

func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

func ValidateTransition(from, to State) error {
	next, ok := allowedTransitions[from]
	if !ok {
		return fmt.Errorf("invalid session state: %q", from)
	}
	if _, ok := allowedTransitions[to]; !ok {
		return fmt.Errorf("invalid session state: %q", to)
	}
	if _, ok := next[to]; !ok {
		return fmt.Errorf("invalid session transition: %s -> %s", from, to)
	}
	return nil
}
