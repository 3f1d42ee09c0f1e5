package database

import "github.com/pkg/errors"

// ErrNotFound is returned by Get and Seek when the requested key does not
// exist. Callers match against it with errors.Is / errors.Cause, not with
// string comparison.
var ErrNotFound = errors.New("key not found")

// IsNotFoundError reports whether err is, or wraps, ErrNotFound.
func IsNotFoundError(err error) bool {
	return errors.Cause(err) == ErrNotFound
}
