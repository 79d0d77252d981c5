package workflow

import "errors"

// Expected, caller-facing outcomes. The engine never retries them; the HTTP
// layer maps each to a stable code.
var (
	// ErrInvalidTransition reports that no edge leaves the current state via
	// the requested trigger.
	ErrInvalidTransition = errors.New("workflow: invalid transition")

	// ErrGuardRejected reports that the edge exists and the actor is allowed,
	// but a business precondition failed.
	ErrGuardRejected = errors.New("workflow: guard rejected")

	// ErrConflict reports that a concurrent transition won the race. The
	// caller may reload and retry with the state it now observes.
	ErrConflict = errors.New("workflow: conflict")

	// ErrNotFound reports an unregistered entity type or missing instance.
	ErrNotFound = errors.New("workflow: not found")

	// ErrInvalidInput reports malformed caller input.
	ErrInvalidInput = errors.New("workflow: invalid input")
)
