package assessment

import (
	"errors"
	"fmt"
)

// ValidationError reports an input field rejected before any rule ran.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StateError reports a stage submitted out of order, for example admission
// bloods for a session that is already complete.
type StateError struct {
	State FlowState
	Event string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s while session is in state %q", e.Event, e.State)
}

// ErrMissingAdmissionBaseline is returned when a continuation decision is
// requested without admission bloods to compare against. The comparison
// rules are meaningless without a baseline, so this is reported to the
// caller rather than guessed around.
var ErrMissingAdmissionBaseline = errors.New("admission baseline bloods are missing")

// ErrSessionNotFound is returned when an assessment session id does not
// exist or has expired.
var ErrSessionNotFound = errors.New("assessment session not found")
