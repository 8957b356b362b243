package conduct

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("conduct: no store configured")
	ErrStoreClosed = errors.New("conduct: store closed")

	// ErrNotStarted is returned by operations invoked before Start: the
	// recovery sweep must complete before any submission is accepted.
	ErrNotStarted = errors.New("conduct: engine not started")

	// Not found errors.
	ErrJobNotFound = errors.New("conduct: job not found")

	// Submit-time errors. All are surfaced before any job row is created.
	ErrUnknownCommand = errors.New("conduct: no handler registered for command")
	ErrValidation     = errors.New("conduct: invalid job parameters")
	ErrQuotaExceeded  = errors.New("conduct: quota exceeded")
	ErrRateLimited    = errors.New("conduct: submission rate limit exceeded")

	// State errors.
	ErrConflict         = errors.New("conduct: invalid state transition")
	ErrJobAlreadyExists = errors.New("conduct: job already exists")

	// ErrCancelled is returned by a handler that aborted in response to a
	// cancellation request. The runner maps it (and any error wrapping
	// context.Canceled) to the cancelled terminal state instead of failed.
	ErrCancelled = errors.New("conduct: job cancelled")
)
