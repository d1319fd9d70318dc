package store

import (
	"errors"
	"fmt"
)

// Sentinel errors for categorizing store failures.
var (
	// ErrConnectionFailed indicates a failure to reach the database.
	ErrConnectionFailed = errors.New("store: connection failed")

	// ErrQueryFailed indicates a query execution failure.
	ErrQueryFailed = errors.New("store: query failed")

	// ErrNotFound indicates the requested record was not found.
	ErrNotFound = errors.New("store: not found")
)

// StoreError wraps store errors with the failing operation and table.
type StoreError struct {
	Op    string
	Table string
	Err   error
}

// Error returns the error message.
func (e *StoreError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("store.%s(%s): %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("store.%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsNotFound checks if the error is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable reports whether the failure may clear on redelivery. Query
// and connection failures are both retryable from the pipeline's point of
// view: the transport redelivers and the write is idempotent.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConnectionFailed) || errors.Is(err, ErrQueryFailed)
}

func wrapConnectionError(op string, err error) error {
	return &StoreError{Op: op, Err: fmt.Errorf("%w: %v", ErrConnectionFailed, err)}
}

func wrapQueryError(op, table string, err error) error {
	return &StoreError{Op: op, Table: table, Err: fmt.Errorf("%w: %v", ErrQueryFailed, err)}
}

func wrapNotFound(op, table, id string) error {
	return &StoreError{Op: op, Table: table, Err: fmt.Errorf("%w: event_id=%s", ErrNotFound, id)}
}
