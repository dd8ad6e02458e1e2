package repository

import "errors"

type keepChangesError struct {
	err error
}

func (e *keepChangesError) Error() string { return e.err.Error() }
func (e *keepChangesError) Unwrap() error { return e.err }

// KeepChanges wraps err so that UpdateLocked persists the mutation made by
// the callback before returning err to the caller.
func KeepChanges(err error) error {
	return &keepChangesError{err: err}
}

// SplitKeepChanges reports whether err came from KeepChanges and returns the
// error the caller should see.
func SplitKeepChanges(err error) (error, bool) {
	var k *keepChangesError
	if errors.As(err, &k) {
		return k.err, true
	}
	return err, false
}
