// Package hold implements the seat state machine on top of the seat store:
// acquiring, releasing, expiring and finalizing holds, plus the global
// reset.  Every operation is a read followed by a single compare-and-set,
// so concurrent callers on the same seat are arbitrated by the store and
// callers on different seats never contend.
package hold

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/seat-hold-service/internal/model"
	"github.com/iliyamo/seat-hold-service/internal/repository"
)

// ReacquirePolicy decides what an Acquire by the current holder does.
type ReacquirePolicy string

const (
	// PolicyRenew extends the hold deadline and reports success.
	PolicyRenew ReacquirePolicy = "renew"
	// PolicyNoop reports success and leaves the hold untouched.
	PolicyNoop ReacquirePolicy = "noop"
)

// ParsePolicy maps a configuration value to a policy.
func ParsePolicy(s string) (ReacquirePolicy, error) {
	switch p := ReacquirePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyRenew, PolicyNoop:
		return p, nil
	case "":
		return PolicyRenew, nil
	}
	return "", fmt.Errorf("unknown reacquire policy %q", s)
}

// Pricer resolves the price of a seat for the order ledger.
type Pricer interface {
	PriceOf(seatID string) float64
}

// OrderSink is told about every completed purchase.  Failures are logged
// and never undo the sale.
type OrderSink interface {
	RecordOrder(ctx context.Context, o model.Order) error
}

// Manager is the only writer of seat state.
type Manager struct {
	store  repository.SeatStore
	prices Pricer
	ttl    time.Duration
	policy ReacquirePolicy
	now    func() time.Time
	log    *slog.Logger
	sinks  []OrderSink

	// gate orders ResetAll against per-seat operations: seat operations
	// share it, ResetAll takes it exclusively.
	gate sync.RWMutex
	seq  *sequencer
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// WithPolicy sets the reacquire policy.
func WithPolicy(p ReacquirePolicy) Option { return func(m *Manager) { m.policy = p } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.log = l } }

// WithOrderSinks registers purchase listeners.
func WithOrderSinks(sinks ...OrderSink) Option {
	return func(m *Manager) { m.sinks = append(m.sinks, sinks...) }
}

// NewManager builds a Manager over store.  The store is read once to learn
// the current version of every seat.
func NewManager(ctx context.Context, store repository.SeatStore, prices Pricer, pub Publisher, ttl time.Duration, opts ...Option) (*Manager, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("hold ttl must be positive, got %s", ttl)
	}
	m := &Manager{
		store:  store,
		prices: prices,
		ttl:    ttl,
		policy: PolicyRenew,
		now:    time.Now,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	records, err := store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load seat versions: %w", err)
	}
	m.seq = newSequencer(pub, records)
	return m, nil
}

// TTL is the configured hold duration.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Acquire places or renews a hold on seatID for userID.
func (m *Manager) Acquire(ctx context.Context, seatID, userID string) (model.SeatState, error) {
	if err := validate(seatID, userID); err != nil {
		return model.SeatState{}, err
	}
	m.gate.RLock()
	defer m.gate.RUnlock()

	cur, err := m.current(ctx, seatID)
	if err != nil {
		return model.SeatState{}, err
	}
	switch cur.Status {
	case model.SeatSold:
		return cur.State(), ErrConflict
	case model.SeatHeld:
		if cur.OwnerID != userID {
			return cur.State(), ErrConflict
		}
		if m.policy == PolicyNoop {
			return cur.State(), nil
		}
	}
	next := model.SeatRecord{
		Status:        model.SeatHeld,
		OwnerID:       userID,
		HoldExpiresAt: m.now().Add(m.ttl),
	}
	stored, ok, err := m.write(ctx, cur, next)
	if err != nil {
		return model.SeatState{}, err
	}
	if !ok {
		return stored.State(), ErrConflict
	}
	m.log.Debug("seat held", "seat", seatID, "user", userID, "renewed", cur.Status == model.SeatHeld)
	return stored.State(), nil
}

// Release gives up userID's hold on seatID.
func (m *Manager) Release(ctx context.Context, seatID, userID string) (model.SeatState, error) {
	if err := validate(seatID, userID); err != nil {
		return model.SeatState{}, err
	}
	m.gate.RLock()
	defer m.gate.RUnlock()

	cur, err := m.current(ctx, seatID)
	if err != nil {
		return model.SeatState{}, err
	}
	if cur.Status != model.SeatHeld {
		return cur.State(), ErrInvalidState
	}
	if cur.OwnerID != userID {
		return cur.State(), ErrForbidden
	}
	stored, ok, err := m.write(ctx, cur, model.Available(seatID))
	if err != nil {
		return model.SeatState{}, err
	}
	if !ok {
		return stored.State(), ErrConflict
	}
	m.log.Debug("seat released", "seat", seatID, "user", userID)
	return stored.State(), nil
}

// Finalize converts userID's unexpired hold on seatID into a sale.
func (m *Manager) Finalize(ctx context.Context, seatID, userID string) (model.SeatState, error) {
	if err := validate(seatID, userID); err != nil {
		return model.SeatState{}, err
	}
	stored, err := m.finalize(ctx, seatID, userID)
	if err != nil {
		return stored.State(), err
	}
	m.log.Info("seat sold", "seat", seatID, "user", userID)
	m.recordOrder(ctx, stored)
	return stored.State(), nil
}

func (m *Manager) finalize(ctx context.Context, seatID, userID string) (model.SeatRecord, error) {
	m.gate.RLock()
	defer m.gate.RUnlock()

	cur, err := m.store.Get(ctx, seatID)
	if err != nil {
		return model.SeatRecord{}, err
	}
	if cur.HoldExpired(m.now()) {
		prevOwner := cur.OwnerID
		if cur, _, err = m.expire(ctx, cur); err != nil {
			return model.SeatRecord{}, err
		}
		if prevOwner == userID {
			return cur, ErrExpired
		}
	}
	switch {
	case cur.Status != model.SeatHeld:
		return cur, ErrInvalidState
	case cur.OwnerID != userID:
		return cur, ErrForbidden
	}
	next := model.SeatRecord{Status: model.SeatSold, OwnerID: userID}
	stored, ok, err := m.write(ctx, cur, next)
	if err != nil {
		return model.SeatRecord{}, err
	}
	if !ok {
		return stored, ErrConflict
	}
	return stored, nil
}

// ExpireIfDue turns an overdue hold back into an AVAILABLE seat.  It
// reports whether this call performed the transition.
func (m *Manager) ExpireIfDue(ctx context.Context, seatID string) (bool, error) {
	if seatID == "" {
		return false, ErrInvalidRequest
	}
	m.gate.RLock()
	defer m.gate.RUnlock()

	cur, err := m.store.Get(ctx, seatID)
	if err != nil {
		return false, err
	}
	if !cur.HoldExpired(m.now()) {
		return false, nil
	}
	_, won, err := m.expire(ctx, cur)
	if err != nil {
		return false, err
	}
	return won, nil
}

// DueHolds lists seats whose holds are past their deadline.  It does not
// change anything.
func (m *Manager) DueHolds(ctx context.Context) ([]string, error) {
	records, err := m.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	now := m.now()
	var due []string
	for _, r := range records {
		if r.HoldExpired(now) {
			due = append(due, r.SeatID)
		}
	}
	return due, nil
}

// Snapshot returns every seat's visible state in seat order.  Overdue holds
// found while reading are expired first, so a snapshot never shows a hold
// past its deadline.
func (m *Manager) Snapshot(ctx context.Context) ([]model.SeatState, error) {
	m.gate.RLock()
	defer m.gate.RUnlock()

	records, err := m.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	now := m.now()
	out := make([]model.SeatState, 0, len(records))
	for _, r := range records {
		if r.HoldExpired(now) {
			if r, _, err = m.expire(ctx, r); err != nil {
				return nil, err
			}
		}
		out = append(out, r.State())
	}
	return out, nil
}

// ResetAll makes every seat AVAILABLE and publishes one reset event.
func (m *Manager) ResetAll(ctx context.Context) error {
	m.gate.Lock()
	defer m.gate.Unlock()

	if err := m.store.ResetAll(ctx); err != nil {
		// A partial reset may have moved some versions.
		m.seq.desyncAll()
		return fmt.Errorf("reset seats: %w", err)
	}
	records, err := m.store.Snapshot(ctx)
	if err != nil {
		m.log.Warn("read back after reset failed", "err", err)
		records = nil
	}
	m.seq.reset(records)
	m.log.Info("all seats reset")
	return nil
}

// current reads seatID and expires an overdue hold before returning it.
func (m *Manager) current(ctx context.Context, seatID string) (model.SeatRecord, error) {
	cur, err := m.store.Get(ctx, seatID)
	if err != nil {
		return model.SeatRecord{}, err
	}
	if cur.HoldExpired(m.now()) {
		cur, _, err = m.expire(ctx, cur)
	}
	return cur, err
}

// expire writes an overdue hold back to AVAILABLE and reports whether this
// call won.  If another writer got there first the record it left is
// returned instead.
func (m *Manager) expire(ctx context.Context, cur model.SeatRecord) (model.SeatRecord, bool, error) {
	stored, ok, err := m.write(ctx, cur, model.Available(cur.SeatID))
	if err != nil {
		return model.SeatRecord{}, false, err
	}
	if ok {
		m.log.Debug("hold expired", "seat", cur.SeatID, "user", cur.OwnerID)
	}
	return stored, ok, nil
}

// write performs the compare-and-set and emits the event for a win.
func (m *Manager) write(ctx context.Context, cur, next model.SeatRecord) (model.SeatRecord, bool, error) {
	stored, ok, err := m.store.CompareAndSet(ctx, cur.SeatID, cur, next)
	if err != nil {
		m.resync(ctx, cur.SeatID, err)
		return model.SeatRecord{}, false, err
	}
	if ok {
		m.seq.emit(stored.SeatID, stored.Version, model.SeatUpdate(stored.State()))
	}
	return stored, ok, nil
}

// resync runs after a compare-and-set error.  The write may still have
// landed, so the seat is read back and its current state published if the
// store moved.  If the read fails too, the next event for the seat
// becomes the new baseline.
func (m *Manager) resync(ctx context.Context, seatID string, cause error) {
	m.seq.desync(seatID)
	rec, err := m.store.Get(ctx, seatID)
	if err != nil {
		m.log.Warn("seat read back failed", "seat", seatID, "cause", cause, "err", err)
		return
	}
	m.seq.resync(rec)
}

func (m *Manager) recordOrder(ctx context.Context, sold model.SeatRecord) {
	if len(m.sinks) == 0 {
		return
	}
	price := 0.0
	if m.prices != nil {
		price = m.prices.PriceOf(sold.SeatID)
	}
	o := model.Order{
		ID:          uuid.NewString(),
		SeatID:      sold.SeatID,
		UserID:      sold.OwnerID,
		AmountCents: int64(math.Round(price * 100)),
		CreatedAt:   m.now().UTC(),
	}
	for _, s := range m.sinks {
		if err := s.RecordOrder(ctx, o); err != nil {
			m.log.Error("record order failed", "order", o.ID, "seat", o.SeatID, "err", err)
		}
	}
}

func validate(seatID, userID string) error {
	if strings.TrimSpace(seatID) == "" || strings.TrimSpace(userID) == "" {
		return ErrInvalidRequest
	}
	return nil
}
