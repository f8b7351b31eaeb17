package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists signals a duplicate resource.
	ErrAlreadyExists = errors.New("already exists")
	// ErrQuotaExceeded signals a configured limit being hit.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrValidation is the root of every ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrPermission is the root of every PermissionError.
	ErrPermission = errors.New("permission denied")
	// ErrQuery is the root of every QueryError.
	ErrQuery = errors.New("query failed")
	// ErrRelation is the root of every RelationError.
	ErrRelation = errors.New("relation constraint violated")
)

// ValidationError reports a bad input shape or value, carrying the
// offending field id when one is known.
type ValidationError struct {
	FieldID string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.FieldID == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on field %s: %s", e.FieldID, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError for a field.
func NewValidationError(fieldID, format string, args ...any) error {
	return &ValidationError{FieldID: fieldID, Reason: fmt.Sprintf(format, args...)}
}

// PermissionError reports a missing capability.
type PermissionError struct {
	Permission string
	ResourceID string
}

func (e *PermissionError) Error() string {
	if e.ResourceID == "" {
		return fmt.Sprintf("permission denied: %s", e.Permission)
	}
	return fmt.Sprintf("permission denied: %s on %s", e.Permission, e.ResourceID)
}

func (e *PermissionError) Unwrap() error { return ErrPermission }

// NewPermissionError creates a PermissionError.
func NewPermissionError(permission, resourceID string) error {
	return &PermissionError{Permission: permission, ResourceID: resourceID}
}

// Query error reason codes.
const (
	QueryReasonMalformed      = "malformed"
	QueryReasonUnknownField   = "unknown_field"
	QueryReasonBadOperator    = "unsupported_operator"
	QueryReasonTimeout        = "timeout"
	QueryReasonGraphTooLarge  = "graph_too_large"
	QueryReasonUnknownJoin    = "unknown_join_collection"
	QueryReasonBadAggregation = "unsupported_aggregation"
)

// QueryError reports a malformed query, an operator illegal for a field
// type, an execution timeout, or a graph-analytics size ceiling breach.
type QueryError struct {
	Reason string
	Detail string
}

func (e *QueryError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("query failed: %s", e.Reason)
	}
	return fmt.Sprintf("query failed: %s: %s", e.Reason, e.Detail)
}

func (e *QueryError) Unwrap() error { return ErrQuery }

// IsTimeout reports whether the query failed by exceeding its deadline.
func (e *QueryError) IsTimeout() bool { return e.Reason == QueryReasonTimeout }

// NewQueryError creates a QueryError with a reason code and detail.
func NewQueryError(reason, format string, args ...any) error {
	return &QueryError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// RelationError reports a relation constraint violation: self-reference,
// cycle, count-bound breach, or a disallowed link/unlink.
type RelationError struct {
	RelationID string
	Reason     string
}

func (e *RelationError) Error() string {
	if e.RelationID == "" {
		return fmt.Sprintf("relation constraint violated: %s", e.Reason)
	}
	return fmt.Sprintf("relation %s: constraint violated: %s", e.RelationID, e.Reason)
}

func (e *RelationError) Unwrap() error { return ErrRelation }

// NewRelationError creates a RelationError.
func NewRelationError(relationID, format string, args ...any) error {
	return &RelationError{RelationID: relationID, Reason: fmt.Sprintf(format, args...)}
}
