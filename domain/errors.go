package domain

import "errors"

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTaskNotFound is returned when a task is not present on a board.
	ErrTaskNotFound = errors.New("task not found on board")
	// ErrVersionConflict indicates the backend rejected an update because the
	// task changed since it was fetched.
	ErrVersionConflict = errors.New("version conflict")
)
