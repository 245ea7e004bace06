package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrAcquisition        = errors.New("acquisition failed")
	ErrDeadlineExceeded   = errors.New("batch deadline exceeded")
	ErrBackendUnavailable = errors.New("storage backend unavailable")
	ErrNotFound           = errors.New("not found")
	ErrUnknownIdentifier  = errors.New("unknown identifier")
	ErrUnknownEngine      = errors.New("unknown fetch engine")
	ErrLobbyUnavailable   = errors.New("lobby unavailable")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// AcquisitionError is recorded against a single identifier and never aborts a batch.
type AcquisitionError struct {
	ID    string
	Stage string
	Err   error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.ID, e.Stage, e.Err)
}

func (e *AcquisitionError) Unwrap() []error { return []error{ErrAcquisition, e.Err} }
