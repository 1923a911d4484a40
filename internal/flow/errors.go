package flow

import "errors"

var (
	// ErrValidationRejected marks input that failed the current step's validator.
	ErrValidationRejected = errors.New("validation rejected")
	// ErrNotInFlow is returned by Collector.Submit when the conversation has no active flow.
	ErrNotInFlow = errors.New("no active flow")
	// ErrCollaboratorUnavailable wraps failures of the advisory, vision, consultant or sink calls.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	// ErrInvariantViolation means a session reached a step without the fields that step depends on.
	ErrInvariantViolation = errors.New("session invariant violated")
)

// ValidationError carries the message shown to the participant when input is rejected.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "validation rejected: " + e.Message
}

// Is makes errors.Is(err, ErrValidationRejected) hold for every ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationRejected
}

func reject(message string) error {
	return &ValidationError{Message: message}
}
