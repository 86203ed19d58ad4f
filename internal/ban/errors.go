package ban

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("unknown ban ID")
	ErrUnknownPlayer = errors.New("unknown player")
	ErrInvalidExpiry = errors.New("expiry must be in the future")

	// ErrInconsistent means a statement keyed by primary key touched more
	// than one row. The transaction is rolled back.
	ErrInconsistent = errors.New("ban table inconsistency")
)

// ConflictError is returned when a ban has already been reverted.
type ConflictError struct {
	BanID   uint64
	UnbanID uint64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("ban %d has already been reverted by unban %d", e.BanID, e.UnbanID)
}
