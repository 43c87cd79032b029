package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("missing player identity")
)

// NewKind creates an error of the given kind for an operation.
func NewKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}

// WrapKind wraps an external error with an operation name and a
// package sentinel.
func WrapKind(op string, kind, err error) error {
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// Wrap annotates an error with an operation name.
func Wrap(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
