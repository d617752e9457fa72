package directory

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested group, role, permission or user
	// does not exist in the Directory.
	ErrNotFound = errors.New("directory: record not found")

	// ErrAlreadyExists indicates a create collided with an existing record
	// of the same name.
	ErrAlreadyExists = errors.New("directory: already exists")
)

// APIError is a generic upstream failure. Callers treat it as retryable.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("directory: %s failed with status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("directory: %s failed with status %d: %s", e.Op, e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a missing-record error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists reports whether err is a duplicate-name error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}
