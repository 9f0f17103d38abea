package coordinator

import (
	"github.com/roadrunner-server/errors"
)

var (
	// ErrEmptyKey is returned by Enqueue for an empty key.
	ErrEmptyKey = errors.Str("job key cannot be empty")

	// ErrNilWork is returned by Enqueue when main work is nil.
	ErrNilWork = errors.Str("job main work cannot be nil")

	// ErrNegativeRetries is returned by Enqueue for a negative retry budget.
	ErrNegativeRetries = errors.Str("max retries must not be negative")

	// ErrStopped is returned by Enqueue after Shutdown.
	ErrStopped = errors.Str("coordinator was stopped")

	ErrPoolStopped      = errors.Str("processor was stopped")
	ErrSchedulerStopped = errors.Str("retry scheduler was stopped")
)
