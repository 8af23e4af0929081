package tracker

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")
)

// ValidationError reports a missing or malformed input. It is always
// returned before any remote call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// StoreError wraps a failure from the record store or object storage.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *StoreError) Unwrap() error { return e.Err }

// PartialFailureError reports a two-step write whose first step committed
// and whose second step failed. Nothing is compensated.
type PartialFailureError struct {
	Op        string // "schedule" or "unschedule"
	Completed string // what was committed
	Failed    string // what was not
	Err       error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s partially failed: %s, but %s: %v", e.Op, e.Completed, e.Failed, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }
