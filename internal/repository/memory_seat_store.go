package repository

import (
	"context"
	"sync/atomic"

	"github.com/iliyamo/seat-hold-service/internal/model"
)

// MemorySeatStore keeps one atomically swapped record per seat.  The seat
// map is built once and never changes, so lookups need no lock and writes
// to different seats never contend.
type MemorySeatStore struct {
	order []string
	slots map[string]*atomic.Pointer[model.SeatRecord]
}

// NewMemorySeatStore creates a store with every seat AVAILABLE.  ids fixes
// the snapshot order.
func NewMemorySeatStore(ids []string) *MemorySeatStore {
	s := &MemorySeatStore{
		order: append([]string(nil), ids...),
		slots: make(map[string]*atomic.Pointer[model.SeatRecord], len(ids)),
	}
	for _, id := range ids {
		p := new(atomic.Pointer[model.SeatRecord])
		rec := model.Available(id)
		p.Store(&rec)
		s.slots[id] = p
	}
	return s
}

// Get returns a copy of the current record.
func (s *MemorySeatStore) Get(_ context.Context, seatID string) (model.SeatRecord, error) {
	p, ok := s.slots[seatID]
	if !ok {
		return model.SeatRecord{}, ErrSeatNotFound
	}
	return *p.Load(), nil
}

// CompareAndSet swaps in next if the stored version still equals
// expected.Version.
func (s *MemorySeatStore) CompareAndSet(_ context.Context, seatID string, expected, next model.SeatRecord) (model.SeatRecord, bool, error) {
	p, ok := s.slots[seatID]
	if !ok {
		return model.SeatRecord{}, false, ErrSeatNotFound
	}
	if err := checkRecord(next); err != nil {
		return model.SeatRecord{}, false, err
	}
	cur := p.Load()
	if cur.Version != expected.Version {
		return *cur, false, nil
	}
	rec := next
	rec.SeatID = seatID
	rec.Version = cur.Version + 1
	if !p.CompareAndSwap(cur, &rec) {
		return *p.Load(), false, nil
	}
	return rec, true, nil
}

// Snapshot copies every record in seat order.  Each record is read
// atomically; the snapshot as a whole is not a single point in time.
func (s *MemorySeatStore) Snapshot(_ context.Context) ([]model.SeatRecord, error) {
	out := make([]model.SeatRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.slots[id].Load())
	}
	return out, nil
}

// ResetAll overwrites every seat with a fresh AVAILABLE record.  Each seat
// is swapped with its own CAS loop so concurrent writers holding a stale
// version lose.
func (s *MemorySeatStore) ResetAll(_ context.Context) error {
	for _, id := range s.order {
		p := s.slots[id]
		for {
			cur := p.Load()
			rec := model.Available(id)
			rec.Version = cur.Version + 1
			if p.CompareAndSwap(cur, &rec) {
				break
			}
		}
	}
	return nil
}
