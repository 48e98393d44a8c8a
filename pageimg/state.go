package pageimg

// State is the loading state of a render session.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

type event int

const (
	eventStart event = iota
	eventSucceeded
	eventFailed
	eventCancelled
	eventDispose
)

// next is the transition table. Settlement events are only accepted while
// loading; a cancellation ends the session without advertising a new state.
func next(s State, ev event) (State, bool) {
	switch ev {
	case eventStart:
		return StateLoading, true
	case eventSucceeded:
		if s == StateLoading {
			return StateSuccess, true
		}
	case eventFailed:
		if s == StateLoading {
			return StateError, true
		}
	case eventCancelled:
		if s == StateLoading {
			return s, true
		}
	case eventDispose:
		return StateIdle, true
	}
	return s, false
}

// resultKind classifies how a render task settled.
type resultKind int

const (
	resultSuccess resultKind = iota
	resultFailure
	resultCancelled
)

type taskResult struct {
	kind  resultKind
	image string
	err   error
}

func (r taskResult) event() event {
	switch r.kind {
	case resultSuccess:
		return eventSucceeded
	case resultFailure:
		return eventFailed
	default:
		return eventCancelled
	}
}
