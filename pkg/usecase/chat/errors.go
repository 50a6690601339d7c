package chat

import (
	"errors"

	"github.com/m-mizutani/goerr/v2"
)

var (
	// ErrVectorStoreUnreachable fails a turn whose retrieval could not reach the vector store
	ErrVectorStoreUnreachable = goerr.New("vector store unreachable")
	// ErrRetrievalFailed fails a turn whose vector store answered with an error, such as a
	// dimension mismatch after the embedding model changed
	ErrRetrievalFailed = goerr.New("retrieval failed")
	// ErrModelInvocation fails a turn whose model call errored or timed out
	ErrModelInvocation = goerr.New("model invocation failed")
	// ErrTurnInProgress is returned when a turn starts while another one is running
	ErrTurnInProgress = goerr.New("another turn is in progress")

	ErrSessionClosed   = goerr.New("session is closed")
	ErrSessionNotFound = goerr.New("session not found")
)

// TurnError is the terminal error of a failed turn. The session stays usable.
type TurnError struct {
	Kind  error
	State State
	Err   error
}

func (e *TurnError) Error() string {
	msg := e.Kind.Error()
	if e.State != stateInvalid {
		msg += " in " + e.State.String()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

// Is matches the kind of the failure so that errors.Is(err, ErrModelInvocation) works
func (e *TurnError) Is(target error) bool {
	return e.Kind == target
}

// IsTurnError reports whether err failed a turn, as opposed to a cancellation
func IsTurnError(err error) bool {
	var te *TurnError
	return errors.As(err, &te)
}
