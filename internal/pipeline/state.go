package pipeline

// State is a step of the correction state machine
type State string

const (
	StateReceived           State = "received"
	StateRanking            State = "ranking"
	StateCorrecting         State = "correcting"
	StateFallbackCorrecting State = "fallback_correcting"
	StateClassifying        State = "classifying"
	StateScoring            State = "scoring"
	StateCompleted          State = "completed"
	StateRejected           State = "rejected" // Terminal: invalid input
)

// Terminal reports whether no transition leaves s
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateRejected
}

// StateHook observes every transition of one request. It runs on the
// request goroutine and must not block.
type StateHook func(requestID string, state State)
