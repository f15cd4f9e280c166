package services

import (
	"errors"
	"fmt"
)

var (
	ErrQuerysetNotFound = errors.New("queryset not found")
	ErrTableNotFound    = errors.New("table not found")
	ErrQuerysetExists   = errors.New("queryset already exists")
	ErrInvalidReference = errors.New("reference does not exist in the broker")
)

// InvalidReferenceError names the table, or column of a table, that the
// broker reported as absent while admitting a write.
type InvalidReferenceError struct {
	Table  string
	Column string
}

func (e *InvalidReferenceError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("table %q does not exist in the broker", e.Table)
	}
	return fmt.Sprintf("column %q does not exist on table %q in the broker", e.Column, e.Table)
}

func (e *InvalidReferenceError) Is(target error) bool {
	return target == ErrInvalidReference
}
