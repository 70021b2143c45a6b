package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the search and embedding operations
type ErrorKind string

const (
	// KindDependencyUnavailable means the embedding provider cannot be loaded or reached.
	// Search operations recover from it by degrading to keyword-only scoring.
	KindDependencyUnavailable ErrorKind = "DependencyUnavailable"
	// KindSchemaMismatch means a requested table, text column or vector column does not exist
	KindSchemaMismatch ErrorKind = "SchemaMismatch"
	// KindDimensionMismatch means a stored vector does not match the active model's dimension
	KindDimensionMismatch ErrorKind = "DimensionMismatch"
	// KindInvalidConfiguration means weights, threshold or limit are out of range
	KindInvalidConfiguration ErrorKind = "InvalidConfiguration"
	// KindInternal covers storage and other unexpected failures
	KindInternal ErrorKind = "Internal"
)

// Sentinel errors shared across packages
var (
	ErrDependencyUnavailable = errors.New("embedding provider unavailable")
	ErrSchemaMismatch        = errors.New("schema mismatch")
	ErrDimensionMismatch     = errors.New("vector dimension mismatch")
	ErrInvalidConfiguration  = errors.New("invalid configuration")
)

// Domain errors for result validation
var (
	ErrInvalidRowID          = errors.New("invalid row ID")
	ErrInvalidRank           = errors.New("rank must be >= 1")
	ErrInvalidRelevanceScore = errors.New("relevance score must be between 0 and 1")
	ErrMissingTable          = errors.New("table is required")
)

// Error is a classified failure with a human-readable message
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewError creates a classified error
func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Errorf creates a classified error with a formatted message
func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap supports errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel that corresponds to the error kind
func (e *Error) Is(target error) bool {
	switch e.Kind {
	case KindDependencyUnavailable:
		return target == ErrDependencyUnavailable
	case KindSchemaMismatch:
		return target == ErrSchemaMismatch
	case KindDimensionMismatch:
		return target == ErrDimensionMismatch
	case KindInvalidConfiguration:
		return target == ErrInvalidConfiguration
	}
	return false
}

// KindOf classifies an arbitrary error. Unclassified errors are KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	switch {
	case errors.Is(err, ErrDependencyUnavailable):
		return KindDependencyUnavailable
	case errors.Is(err, ErrSchemaMismatch):
		return KindSchemaMismatch
	case errors.Is(err, ErrDimensionMismatch):
		return KindDimensionMismatch
	case errors.Is(err, ErrInvalidConfiguration):
		return KindInvalidConfiguration
	}
	return KindInternal
}

// IsDependencyUnavailable reports whether err means the embedding provider cannot serve
func IsDependencyUnavailable(err error) bool {
	return KindOf(err) == KindDependencyUnavailable
}

// ErrorPayload is the wire shape of a failure
type ErrorPayload struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// PayloadOf converts err into its wire shape
func PayloadOf(err error) *ErrorPayload {
	if err == nil {
		return nil
	}
	return &ErrorPayload{Kind: KindOf(err), Message: err.Error()}
}
