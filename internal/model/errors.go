package model

import (
	"fmt"
	"sort"
	"strings"
)

// ConflictError reports an operation that is invalid in the entity's current
// state: an illegal status transition, a duplicate active registration, a
// duplicate team payment, a double refund request. The current and attempted
// states are named so callers can surface them directly.
type ConflictError struct {
	Entity string
	ID     string
	From   string
	To     string
	Reason string
}

func (e *ConflictError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Reason)
	}
	return fmt.Sprintf("%s %s: cannot transition from %q to %q", e.Entity, e.ID, e.From, e.To)
}

// ValidationError reports malformed input or violated constraints, keyed by
// the offending field.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, problem string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: problem}}
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, f := range names {
		parts = append(parts, f+": "+e.Fields[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a problem for a field and returns the error for chaining.
func (e *ValidationError) Add(field, problem string) *ValidationError {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.Fields[field] = problem
	return e
}

// Empty reports whether no field problems were recorded.
func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}
