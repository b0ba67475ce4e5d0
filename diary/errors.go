package diary

import "errors"

// ErrEntryNotFound covers both a missing entry and an entry owned by a
// different account. Callers cannot tell the two apart.
var ErrEntryNotFound = errors.New("diary entry not found")

// ErrInvalidEntry rejects entries missing required fields.
var ErrInvalidEntry = errors.New("diary entry is missing required fields")

// PersistenceError hides storage detail from callers; the cause lands in
// the logs only.
type PersistenceError struct {
	Op string
}

func (e *PersistenceError) Error() string {
	return e.Op + " failed due to a storage error, please try again"
}
