package library

import "errors"

var (
	// ErrNotFound is returned by a Store when no record exists for a key.
	ErrNotFound = errors.New("library: record not found")

	// ErrInvalidBackup indicates a backup envelope lacks its version or
	// export timestamp, or carries a version this package cannot read.
	ErrInvalidBackup = errors.New("library: invalid backup")
)
