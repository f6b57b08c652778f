package repository

import (
	"context"
	"fmt"

	"github.com/iliyamo/seat-hold-service/internal/model"
)

// SeatStore is the authoritative mapping from seat id to SeatRecord.  All
// mutations go through CompareAndSet so callers can build optimistic
// concurrency on top of it: among racing writers holding the same expected
// record exactly one succeeds.
//
// Records are compared by Version.  A successful write stores next with
// Version set to expected.Version+1 and returns the stored record.  A lost
// race returns the record currently stored and ok=false.
type SeatStore interface {
	Get(ctx context.Context, seatID string) (model.SeatRecord, error)
	CompareAndSet(ctx context.Context, seatID string, expected, next model.SeatRecord) (stored model.SeatRecord, ok bool, err error)
	// Snapshot returns every record in the stable seat order.
	Snapshot(ctx context.Context) ([]model.SeatRecord, error)
	// ResetAll makes every seat AVAILABLE and bumps every version.
	ResetAll(ctx context.Context) error
}

// checkRecord enforces the ownership and deadline invariants of a record
// about to be written.
func checkRecord(r model.SeatRecord) error {
	switch r.Status {
	case model.SeatAvailable:
		if r.OwnerID != "" || !r.HoldExpiresAt.IsZero() {
			return fmt.Errorf("%w: AVAILABLE seat carries owner or deadline", ErrInvalidRecord)
		}
	case model.SeatHeld:
		if r.OwnerID == "" || r.HoldExpiresAt.IsZero() {
			return fmt.Errorf("%w: HELD seat needs owner and deadline", ErrInvalidRecord)
		}
	case model.SeatSold:
		if r.OwnerID == "" || !r.HoldExpiresAt.IsZero() {
			return fmt.Errorf("%w: SOLD seat needs owner and no deadline", ErrInvalidRecord)
		}
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRecord, r.Status)
	}
	return nil
}
