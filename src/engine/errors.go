package engine

import (
	"errors"
	"fmt"

	"cpass/src/types"
)

var (
	// ErrInvalidRequest rejects malformed input before any mutation.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFound covers unknown ticket ids and unresolved scan codes.
	ErrNotFound = errors.New("ticket not found")
	// ErrBusy is returned when the per-code lock cannot be acquired within
	// the configured wait. Gate devices should re-scan.
	ErrBusy = errors.New("ticket code busy")
	// ErrRefundFailed means the gateway did not confirm the refund. The
	// ticket stays confirmed and the operation is safe to retry.
	ErrRefundFailed = errors.New("refund failed")
	// ErrChargeReferenceMissing rejects a paid purchase with no payment
	// confirmation attached.
	ErrChargeReferenceMissing = errors.New("charge reference missing")
	// ErrInvalidState is the target for errors.Is on InvalidStateError.
	ErrInvalidState = errors.New("operation not permitted from current ticket state")
)

// InvalidStateError reports which status blocked the operation, so callers
// can tell a duplicate scan (used) apart from a cancelled or expired code.
type InvalidStateError struct {
	Op     string
	Status types.TicketStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s ticket in status %q", e.Op, e.Status)
}

func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}
