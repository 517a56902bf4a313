package store

import (
	"errors"
	"fmt"
)

// ErrNotFound reports that no record exists for a number. It is an
// absence, not a storage fault.
var ErrNotFound = errors.New("caller not found")

// ErrStoreUnavailable matches any error caused by the underlying storage
// being unreachable or failing.
var ErrStoreUnavailable = errors.New("reputation store unavailable")

// UnavailableError wraps a storage fault with the operation that hit it.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrStoreUnavailable, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is reports ErrStoreUnavailable as a match so callers can use errors.Is.
func (e *UnavailableError) Is(target error) bool { return target == ErrStoreUnavailable }

func unavailable(op string, err error) error {
	return &UnavailableError{Op: op, Err: err}
}
