package core

import "errors"

// Sentinel errors for the access and storage contracts. Callers match
// them with errors.Is; the store and services wrap them with context via
// fmt.Errorf("...: %w", err).
var (
	// ErrNotFound means a resource id or path does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrForbidden means the caller is authenticated but not authorized:
	// a failed ownership or grant check, or a non-owner attempting to
	// grant or revoke.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict means a duplicate grant, or a uniqueness race that
	// retrying within the local attempt budget could not resolve.
	ErrConflict = errors.New("conflict")

	// ErrUnauthenticated means identity resolution failed upstream. No
	// operation proceeds without an identity.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrUnavailable means an external dependency failed. For the group
	// membership lookup this is recovered locally by substituting an
	// empty group set and is never surfaced to the caller.
	ErrUnavailable = errors.New("unavailable")
)
