package domain

import (
	"errors"
	"fmt"
)

// EntityType identifies the kind of record a lookup targeted.
type EntityType string

const (
	// EntitySample identifies a sample lookup.
	EntitySample EntityType = "sample"
	// EntityCase identifies a case lookup by base code.
	EntityCase EntityType = "case"
	// EntityReference identifies the role A sample of a case.
	EntityReference EntityType = "reference sample"
	// EntityTable identifies a backing table.
	EntityTable EntityType = "table"
)

// ErrNotFound is returned when a sample, case or table lookup fails.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ErrInvalidInput is returned when sample data handed to a comparison is
// missing or malformed.
type ErrInvalidInput struct {
	Reason string
}

func (e ErrInvalidInput) Error() string {
	return "invalid input: " + e.Reason
}

// IsNotFound reports whether err wraps an ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}

// IsInvalidInput reports whether err wraps an ErrInvalidInput.
func IsInvalidInput(err error) bool {
	var inv ErrInvalidInput
	return errors.As(err, &inv)
}
