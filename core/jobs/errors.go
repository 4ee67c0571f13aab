package jobs

import (
	"errors"
	"fmt"

	herrors "herald/core/errors"
)

var (
	// ErrReservedName is returned when registering a handler named "exit".
	ErrReservedName = fmt.Errorf("%w: cannot register handler with reserved name %q", herrors.ErrInvalidInput, ExitJobName)

	// ErrDuplicateHandler is matched by every *DuplicateHandlerError.
	ErrDuplicateHandler = errors.New("handler already registered")

	// ErrRegistryFrozen is returned when registering after Start.
	ErrRegistryFrozen = errors.New("handler registry is frozen")

	// ErrSend is returned when the dispatch channel no longer accepts jobs.
	ErrSend = fmt.Errorf("%w: could not send job to dispatcher", herrors.ErrClosed)

	// ErrJoin is returned by Stop when the worker did not terminate cleanly.
	ErrJoin = errors.New("could not join dispatcher worker")
)

// DuplicateHandlerError reports a second registration for the same name.
type DuplicateHandlerError struct {
	Name string
}

func (e *DuplicateHandlerError) Error() string {
	return fmt.Sprintf("handler already exists for '%s'", e.Name)
}

// Is matches ErrDuplicateHandler and the application-wide ErrAlreadyExists.
func (e *DuplicateHandlerError) Is(target error) bool {
	return target == ErrDuplicateHandler || target == herrors.ErrAlreadyExists
}

// ProcessingError is the error a handler returns to report that it could not
// process a job. The worker retries the job while it has retries left.
type ProcessingError struct {
	Detail string
	Err    error
}

// NewProcessingError returns a ProcessingError with an optional cause.
func NewProcessingError(detail string, cause error) *ProcessingError {
	return &ProcessingError{Detail: detail, Err: cause}
}

func (e *ProcessingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("error processing job: '%s': %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("error processing job: '%s'", e.Detail)
}

func (e *ProcessingError) Unwrap() error { return e.Err }
