package chat

// State is a step of a turn
type State int

const (
	stateInvalid State = iota
	StateDecide
	StateRetrieve
	StateRespond
	StateDone
)

func (s State) String() string {
	switch s {
	case StateDecide:
		return "decide"
	case StateRetrieve:
		return "retrieve"
	case StateRespond:
		return "respond"
	case StateDone:
		return "done"
	default:
		return "invalid"
	}
}

// Event is the outcome of running a state
type Event int

const (
	// EventToolRequested is raised when the model asks for retrieval
	EventToolRequested Event = iota + 1
	// EventAnswered is raised when the model answers without retrieval
	EventAnswered
	// EventRetrieved is raised after every requested retrieval has run
	EventRetrieved
	// EventResponded is raised when the final answer is complete
	EventResponded
)

func (e Event) String() string {
	switch e {
	case EventToolRequested:
		return "tool_requested"
	case EventAnswered:
		return "answered"
	case EventRetrieved:
		return "retrieved"
	case EventResponded:
		return "responded"
	default:
		return "unknown"
	}
}

// next is the transition function of a turn. Undefined pairs yield an invalid state.
func next(s State, e Event) State {
	switch {
	case s == StateDecide && e == EventToolRequested:
		return StateRetrieve
	case s == StateDecide && e == EventAnswered:
		return StateRespond
	case s == StateRetrieve && e == EventRetrieved:
		return StateRespond
	case s == StateRespond && e == EventResponded:
		return StateDone
	default:
		return stateInvalid
	}
}
