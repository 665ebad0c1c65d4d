package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the referenced task or collaborator record is
	// absent.
	ErrNotFound = errors.New("dispatch: not found")

	// ErrConflict indicates a lost optimistic-update race: the persisted
	// status no longer matches the expected pre-state. The caller re-fetches
	// and decides whether to retry; the lifecycle never retries on its own.
	ErrConflict = errors.New("dispatch: stale task status")

	// ErrValidation indicates a semantically invalid request, such as
	// assigning a mediator outside the task's grid.
	ErrValidation = errors.New("dispatch: validation failed")
)

// TransitionError reports an illegal lifecycle edge, naming both states.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("dispatch: illegal transition from %s to %s", e.From, e.To)
}

// AsTransitionError unwraps err into a TransitionError if it is one.
func AsTransitionError(err error) (*TransitionError, bool) {
	var te *TransitionError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
