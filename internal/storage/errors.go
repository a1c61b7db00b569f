// Package storage persists repository snapshots and reads database metadata.
package storage

import (
	"errors"
	"fmt"
)

var (
	ErrNotInitialized    = errors.New("store connection is not initialized")
	ErrInsert            = errors.New("insert failed")
	ErrInvalidRepository = errors.New("invalid repository")
	ErrVersionNotFound   = errors.New("database version not found")
)

// InsertError reports the table a failed insert targeted.
type InsertError struct {
	Table string
	Err   error
}

func (e *InsertError) Error() string {
	return fmt.Sprintf("%v into %s: %v", ErrInsert, e.Table, e.Err)
}

func (e *InsertError) Unwrap() []error {
	return []error{ErrInsert, e.Err}
}
