package hold

import (
	"errors"

	"github.com/iliyamo/seat-hold-service/internal/repository"
)

// Failure kinds reported by the Manager.  Handlers translate them into
// HTTP status codes with errors.Is.
var (
	// ErrNotFound is returned for an unknown seat id.
	ErrNotFound = repository.ErrSeatNotFound
	// ErrConflict means the seat is held by someone else, sold, or the
	// caller lost a race for it.
	ErrConflict = errors.New("seat unavailable")
	// ErrForbidden means the caller is not the current holder.
	ErrForbidden = errors.New("seat held by another user")
	// ErrInvalidState means the operation makes no sense for the seat's
	// current status, such as releasing an AVAILABLE seat.
	ErrInvalidState = errors.New("operation not allowed in current seat state")
	// ErrExpired means the caller's hold existed but its deadline passed.
	ErrExpired = errors.New("hold expired")
	// ErrInvalidRequest is returned before any lookup when an id is missing.
	ErrInvalidRequest = errors.New("seat id and user id are required")
)
