package docstore

import (
	"errors"
	"fmt"
)

// WriteError reports a rejected write. It matches ErrWriteFailure.
type WriteError struct {
	Op         string
	Collection string
	ID         string
	Err        error
}

func (e *WriteError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Collection, e.ID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) Is(target error) bool { return target == ErrWriteFailure }

// WrapWrite returns nil for a nil err, err itself when it already is a
// WriteError or a not-found, and a WriteError otherwise.
func WrapWrite(op, collection, id string, err error) error {
	if err == nil {
		return nil
	}
	var we *WriteError
	if errors.As(err, &we) || errors.Is(err, ErrNotFound) {
		return err
	}
	return &WriteError{Op: op, Collection: collection, ID: id, Err: err}
}

// IsNotFound reports whether err is a missing-document error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
