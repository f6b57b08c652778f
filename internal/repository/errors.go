// Package repository defines the storage layer: the authoritative seat
// state store and the append-only order ledger.  The sentinel errors below
// let higher layers such as the hold manager distinguish between failure
// scenarios without inspecting backend specific errors.
package repository

import "errors"

// ErrSeatNotFound is returned when a seat id is not part of the store.
var ErrSeatNotFound = errors.New("seat not found")

// ErrInvalidRecord is returned when a write would break the record
// invariants: an owner is required iff the seat is not AVAILABLE and a
// deadline is required iff the seat is HELD.
var ErrInvalidRecord = errors.New("invalid seat record")

// ErrNotInitialized is returned by backends that need seeding before use.
var ErrNotInitialized = errors.New("seat store not initialized")
