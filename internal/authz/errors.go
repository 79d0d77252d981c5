package authz

import "errors"

var (
	// ErrUnauthenticated means no actor identity could be resolved.
	ErrUnauthenticated = errors.New("authz: unauthenticated")
	// ErrForbidden means the actor resolved but lacks the permission.
	ErrForbidden = errors.New("authz: forbidden")

	ErrNotFound     = errors.New("authz: not found")
	ErrConflict     = errors.New("authz: resource conflict")
	ErrInvalidInput = errors.New("authz: invalid input")
)
