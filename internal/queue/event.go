// Package queue defines the purchase events exchanged over the message
// broker and the background consumer that logs them.
package queue

import (
	"time"

	"github.com/iliyamo/seat-hold-service/internal/model"
)

// SeatPurchasedQueue is the durable queue purchases are published to.
const SeatPurchasedQueue = "seat.purchased"

// SeatPurchasedEvent is published when a held seat is finalized.  It
// carries enough for downstream consumers to log, notify or run analytics
// without reading the seat store.
type SeatPurchasedEvent struct {
	OrderID     string `json:"order_id"`
	SeatID      string `json:"seat_id"`
	UserID      string `json:"user_id"`
	AmountCents int64  `json:"amount_cents"`
	PurchasedAt string `json:"purchased_at"`
}

// FromOrder builds the event for a recorded order.
func FromOrder(o model.Order) SeatPurchasedEvent {
	return SeatPurchasedEvent{
		OrderID:     o.ID,
		SeatID:      o.SeatID,
		UserID:      o.UserID,
		AmountCents: o.AmountCents,
		PurchasedAt: o.CreatedAt.UTC().Format(time.RFC3339),
	}
}
