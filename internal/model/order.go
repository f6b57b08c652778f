package model

import "time"

// Order records a finalized seat purchase.  Orders are append-only; a
// global seat reset does not remove them.
//
// Fields:
//
//	ID          – uuid assigned when the purchase completes.
//	SeatID      – purchased seat.
//	UserID      – purchasing user as supplied by the caller.
//	AmountCents – seat price at the time of purchase.
//	CreatedAt   – UTC purchase time.
type Order struct {
	ID          string    `json:"id"`
	SeatID      string    `json:"seatId"`
	UserID      string    `json:"userId"`
	AmountCents int64     `json:"amountCents"`
	CreatedAt   time.Time `json:"createdAt"`
}
