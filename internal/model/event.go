package model

// EventType distinguishes the push channel messages.
type EventType string

const (
	EventSeatUpdate EventType = "SEAT_UPDATE"
	EventReset      EventType = "RESET"
)

// SeatEvent is one state change as produced by the hold manager.  A
// RESET event has no seat payload and tells observers to drop their local
// seat state.
type SeatEvent struct {
	Type    EventType  `json:"type"`
	Payload *SeatState `json:"payload,omitempty"`
}

// SeatUpdate builds the event describing a seat's new state.
func SeatUpdate(s SeatState) SeatEvent {
	return SeatEvent{Type: EventSeatUpdate, Payload: &s}
}

// Reset builds the distinguished reset event.
func Reset() SeatEvent {
	return SeatEvent{Type: EventReset}
}
