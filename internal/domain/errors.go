package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// Ticket errors
	ErrTicketNotFound   = errors.New("ticket not found")
	ErrTicketNotPending = errors.New("ticket is not awaiting a second weighing")
	ErrNoReading        = errors.New("no scale reading available")

	// Class sentinels matched through errors.Is on the typed errors below.
	ErrValidation = errors.New("validation failed")
	ErrStorage    = errors.New("storage failure")
	ErrSync       = errors.New("sync push failed")
)

// ─── Typed Errors ───────────────────────────────────────────────────────────

// ValidationError rejects caller input before any state changes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// StorageError wraps a persistence failure with the operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrStorage) match any StorageError.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// SyncError describes a failed push of a finalized ticket. It is recorded
// and logged, never returned to the weighing caller.
type SyncError struct {
	TicketID   TicketID
	StatusCode int
	Err        error
}

func (e *SyncError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("sync ticket %s: status %d: %v", e.TicketID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("sync ticket %s: %v", e.TicketID, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrSync) match any SyncError.
func (e *SyncError) Is(target error) bool { return target == ErrSync }

// NotPending wraps ErrTicketNotPending so callers matching on
// ErrTicketNotFound also treat it as "no such pending ticket".
func NotPending(id TicketID) error {
	return fmt.Errorf("ticket %s: %w: %w", id, ErrTicketNotPending, ErrTicketNotFound)
}
