package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")

	// Job lifecycle
	ErrJobNotFound = errors.New("job not found")
	ErrJobTimedOut = errors.New("job timed out")
	ErrJobTerminal = errors.New("job already in a terminal status")

	// Credit ledger
	ErrCreditExhausted = errors.New("credit exhausted for feature")
	ErrAlreadyEngaged  = errors.New("credit already engaged for job")

	// Result delivery
	ErrDuplicateRegistration = errors.New("handler already registered for job")

	// Sessions
	ErrSessionConflict  = errors.New("another device holds the active session")
	ErrSessionNotFound  = errors.New("session record not found")
	ErrNotAuthenticated = errors.New("no authenticated user")

	// Infra
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid executor context")
)
