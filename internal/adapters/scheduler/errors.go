package scheduler

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package.
var (
	ErrInvalidSchedule = errors.New("invalid cron schedule")
)

// NewKind creates an error of the given kind for an operation.
func NewKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}
