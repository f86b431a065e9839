package apperr

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrAlreadyExists    = errors.New("already exists")
	ErrValidation       = errors.New("validation failed")
	ErrInvalidProof     = errors.New("invalid proof of work")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrAlreadyVoted     = errors.New("already voted")
	ErrUnavailable      = errors.New("store unavailable")
	ErrForbidden        = errors.New("forbidden")
)

// ValidationError is a rejection with a human readable reason.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid returns a ValidationError with the given reason.
func Invalid(reason string) error {
	return &ValidationError{Reason: reason}
}
