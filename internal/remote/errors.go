package remote

import (
	"errors"
	"fmt"
)

// FetchError reports a transport or query failure from the remote store.
type FetchError struct {
	Op      string // "select", "insert", "update", "delete"
	Table   string
	Wrapped error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("remote %s on %s: %v", e.Op, e.Table, e.Wrapped)
}

func (e *FetchError) Unwrap() error { return e.Wrapped }

// NotFoundError reports that a query expected to resolve to exactly one row
// matched none.
type NotFoundError struct {
	Table string
	Key   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Table, e.Key)
}

// ValidationError reports a constraint violation surfaced by the remote
// store. Constraints are never enforced client-side.
type ValidationError struct {
	Table   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s rejected by store: %s", e.Table, e.Message)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
