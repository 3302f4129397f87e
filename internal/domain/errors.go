package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Ledger errors
	ErrEntryNotFound = errors.New("entry not found")

	// Remote errors
	ErrConflict         = errors.New("remote reports duplicate")
	ErrNotAuthenticated = errors.New("no user signed in")

	// Backup errors
	ErrBackupVersion = errors.New("backup file version is newer than this application")
)

// ─── Validation ─────────────────────────────────────────────────────────────

// ValidationError reports a rejected input. Validation failures are returned
// synchronously and never leave partial state behind.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ─── Storage ────────────────────────────────────────────────────────────────

// StorageKind distinguishes storage failure modes so callers can tell the
// user what to do about them.
type StorageKind int

const (
	StorageUnavailable StorageKind = iota
	StorageQuotaExceeded
)

func (k StorageKind) String() string {
	switch k {
	case StorageQuotaExceeded:
		return "quota exceeded"
	default:
		return "storage unavailable"
	}
}

// StorageError wraps a persistence failure. In-memory state is unaffected;
// it remains whatever was last successfully persisted.
type StorageError struct {
	Kind StorageKind
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorage reports whether err is a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// ─── Network ────────────────────────────────────────────────────────────────

// NetworkError wraps a failed remote call. The mutation that caused it is
// queued for retry, never lost.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNetwork reports whether err is a NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
