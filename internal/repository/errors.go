package repository

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when an operation needs a row that does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write violates a uniqueness constraint
	ErrConflict = errors.New("conflict")

	// ErrInvalidTransition is returned when a delivery log entry is not in a state that allows the change
	ErrInvalidTransition = errors.New("invalid delivery status transition")
)

// isUniqueViolation reports whether err is a SQLite UNIQUE or PRIMARY KEY violation
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
