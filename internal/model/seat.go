package model

import "time"

// SeatStatus is the lifecycle state of a single seat.  A seat starts
// AVAILABLE, becomes HELD while a user has a time-bounded claim on it and
// ends SOLD once the hold is finalized.  SOLD only leaves via a global
// reset.
type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE"
	SeatHeld      SeatStatus = "HELD"
	SeatSold      SeatStatus = "SOLD"
)

// Valid reports whether s is one of the known statuses.
func (s SeatStatus) Valid() bool {
	switch s {
	case SeatAvailable, SeatHeld, SeatSold:
		return true
	}
	return false
}

// Seat describes a physical seat in the venue grid.  Seats are derived
// from the venue layout and never change while the process runs.
//
// Fields:
//
//	ID        – "<row>-<col>" position identifier.
//	Row, Col  – zero-based grid coordinates.
//	SectionID – section the seat belongs to.
//	Price     – section price in whole currency units.
type Seat struct {
	ID        string
	Row       int
	Col       int
	SectionID string
	Price     float64
}

// SeatRecord is the mutable state of one seat as owned by the seat store.
// OwnerID is set iff Status is not AVAILABLE and HoldExpiresAt is set iff
// Status is HELD.  Version increases by one on every successful write and
// is used for compare-and-set; it is never exposed to clients.
type SeatRecord struct {
	SeatID        string
	Status        SeatStatus
	OwnerID       string
	HoldExpiresAt time.Time
	Version       uint64
}

// Available returns the initial record for a seat.
func Available(seatID string) SeatRecord {
	return SeatRecord{SeatID: seatID, Status: SeatAvailable}
}

// HoldExpired reports whether r is a hold whose deadline is at or before now.
func (r SeatRecord) HoldExpired(now time.Time) bool {
	return r.Status == SeatHeld && !r.HoldExpiresAt.After(now)
}

// State strips the internal fields from r.
func (r SeatRecord) State() SeatState {
	return SeatState{SeatID: r.SeatID, Status: r.Status, OwnerID: r.OwnerID}
}

// SeatState is the externally visible view of a seat: the hold deadline
// and version stay internal.
type SeatState struct {
	SeatID  string     `json:"seatId"`
	Status  SeatStatus `json:"status"`
	OwnerID string     `json:"ownerId,omitempty"`
}
