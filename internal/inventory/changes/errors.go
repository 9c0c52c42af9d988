package changes

import (
	"errors"
	"fmt"
)

// FatalError marks an event that must not be redelivered: retrying cannot
// change the outcome.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal error: %v", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal checks if an error is a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// ItemError records a failure of one entity inside a batch. The rest of the
// batch is still committed.
type ItemError struct {
	Entity string
	ID     int64
	Err    error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s %d: %v", e.Entity, e.ID, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// Retryable reports whether redelivering the event could succeed. Fatal
// errors and batches whose only failures are per-item rejections are not
// retryable.
func Retryable(err error) bool {
	if err == nil || IsFatal(err) {
		return false
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if Retryable(e) {
				return true
			}
		}
		return false
	}
	var ie *ItemError
	return !errors.As(err, &ie)
}
