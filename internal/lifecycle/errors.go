package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/Facats/slotwatcherss/internal/reconcile"
	"github.com/Facats/slotwatcherss/internal/repository"
	"github.com/Facats/slotwatcherss/internal/tier"
)

// Validation errors are terminal for the request that caused them and
// are never retried.
var (
	// ErrDuplicateSlot means the holder already has an active slot.
	ErrDuplicateSlot = errors.New("holder already has an active slot")
	// ErrNoActiveSlot means the holder has no active slot (at the given
	// resource, for broadcast attempts).
	ErrNoActiveSlot = errors.New("holder has no active slot")
	// ErrUnknownTier means the tier name is not in the catalog.
	ErrUnknownTier = tier.ErrUnknownTier
	// ErrSlotNotFound means no slot, active or not, has the given id.
	ErrSlotNotFound = errors.New("slot not found")
	// ErrInvalidArgument means a required field was empty.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Infrastructure errors.
var (
	// ErrAuthorizationUnavailable means the external authorization system
	// could not complete a grant.  Nothing was persisted.
	ErrAuthorizationUnavailable = reconcile.ErrUnavailable
	// ErrStoreUnavailable means the entitlement store failed.  The
	// operation was aborted; the trigger may retry.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// storeErr wraps an unexpected store failure.  Context errors pass
// through so callers can tell cancellation apart from an outage.
func storeErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

func isNotFound(err error) bool { return errors.Is(err, repository.ErrNotFound) }
