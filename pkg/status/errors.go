package status

import "fmt"

// StatusNotFoundError is returned when a site has never been checked.
type StatusNotFoundError struct {
	ID string
}

func (e *StatusNotFoundError) Error() string {
	return fmt.Sprintf("No status found for site: %s", e.ID)
}

// PersistenceError wraps a failure to write the status document.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist site status: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
