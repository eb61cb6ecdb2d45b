package intake

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("intake: no store configured")
	ErrStoreClosed     = errors.New("intake: store closed")
	ErrMigrationFailed = errors.New("intake: migration failed")

	// Queue errors.
	ErrJobNotFound = errors.New("intake: job not found")
	ErrLeaseLost   = errors.New("intake: lease no longer held by worker")
	ErrUnknownKind = errors.New("intake: no handler registered for job kind")
	ErrInvalidJob  = errors.New("intake: invalid job")

	// Registration errors.
	ErrPatientNotFound = errors.New("intake: patient not found")
	ErrDuplicateEmail  = errors.New("intake: email already registered")

	// Lifecycle errors.
	ErrAlreadyStarted = errors.New("intake: already started")
)
