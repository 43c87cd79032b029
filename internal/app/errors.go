package app

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	// ErrNotFound is returned when the referenced document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied is returned when a caller touches a session
	// they do not own.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidInput is returned for malformed operation parameters.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSessionState is returned when a session is not in a state that
	// allows the requested operation.
	ErrSessionState = errors.New("invalid session state")

	// ErrSeasonState is returned when a season pipeline transition is
	// requested out of order.
	ErrSeasonState = errors.New("invalid season state")

	// ErrNoActiveSeason is returned when no configured competition
	// period contains the current instant.
	ErrNoActiveSeason = errors.New("no active season")

	// ErrPromotionIncomplete is returned when a season promotion pass
	// could not evaluate every ranked player. The pass is safe to rerun:
	// players already evaluated for the season are skipped.
	ErrPromotionIncomplete = errors.New("promotion pass incomplete")
)

// NewKind creates an error of the given kind for an operation.
func NewKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}

// WrapKind wraps an external error with an operation name and a
// package sentinel, keeping both visible to errors.Is.
func WrapKind(op string, kind, err error) error {
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}
