package models

import (
	"fmt"
	"strings"
)

// Business error codes carried by BusinessError
const (
	CodeCreation  = "CREATION_ERROR"
	CodeUpdate    = "UPDATE_ERROR"
	CodeDelete    = "DELETE_ERROR"
	CodeRetrieval = "RETRIEVAL_ERROR"
	CodeSearch    = "SEARCH_ERROR"
	CodeExport    = "EXPORT_ERROR"
)

// ValidationError reports every rule the input violated, not just the
// first one found.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

// NotFoundError identifies the missing resource and its identifier
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id %d not found", e.Resource, e.ID)
}

// ConflictError signals a uniqueness violation on a single field
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Field, e.Value)
}

// ForbiddenError signals an operation blocked by a protection rule
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	return e.Reason
}

// BusinessError wraps an unexpected failure from a domain operation with
// an operation-specific code.
type BusinessError struct {
	Code string
	Op   string
	Err  error
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Code, e.Op, e.Err)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}
