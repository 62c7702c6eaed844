package service

import "fmt"

// NotFoundError is returned when no user matches the requested id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("User not found: %s", e.ID)
}

// DuplicateError is returned when a user with the same dni already exists.
type DuplicateError struct {
	DNI string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("User already exists: %s", e.DNI)
}

// StorageError wraps a failure of the storage layer. Op names the failed step.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
