// Package apperr holds the error taxonomy shared by every layer of the store.
package apperr

import "errors"

// Validation failures. The requested mutation is rejected before any write.
var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicateName = errors.New("duplicate name")
	ErrCycleDetected = errors.New("cycle detected")
	ErrNotEmpty      = errors.New("not empty")
	ErrInvalidInput  = errors.New("invalid input")
)

// Storage and recovery failures.
var (
	ErrStoreLocked    = errors.New("store locked")
	ErrCorruptStore   = errors.New("corrupt store")
	ErrIO             = errors.New("io error")
	ErrIndexStale     = errors.New("index stale")
	ErrRestoreAborted = errors.New("restore aborted")
)

// ErrImportRenamed is informational: an imported record received a fresh id.
var ErrImportRenamed = errors.New("import renamed")

// IsValidation reports whether err is a validation failure that left state unchanged.
func IsValidation(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDuplicateName) ||
		errors.Is(err, ErrCycleDetected) ||
		errors.Is(err, ErrNotEmpty) ||
		errors.Is(err, ErrInvalidInput)
}
