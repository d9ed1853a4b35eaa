package pool

import "errors"

var (
	// ErrProvisioning indicates a session could not be created. The pool
	// never retries provisioning failures.
	ErrProvisioning = errors.New("session provisioning failed")

	// ErrNotFound indicates an unknown session id.
	ErrNotFound = errors.New("session not found")

	// ErrExpired indicates a session failed its aliveness check and was
	// evicted from the registry.
	ErrExpired = errors.New("session expired")

	// ErrRetriesExhausted indicates execute gave up after MaxRetries
	// session-fault replacements.
	ErrRetriesExhausted = errors.New("max retries reached, unable to execute scenario")

	// ErrClosed indicates the pool has been shut down.
	ErrClosed = errors.New("session pool is closed")
)
