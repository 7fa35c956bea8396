package repository

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when a row does not exist. Callers decide whether
// that maps to a 404 or a conflict.
var ErrNotFound = errors.New("not found")

// IsRunningConflict reports whether err is the unique-index violation raised
// when a second running entry is inserted for the same user.
func IsRunningConflict(err error) bool {
	return err != nil && strings.Contains(err.Error(), "idx_time_entries_one_running")
}
