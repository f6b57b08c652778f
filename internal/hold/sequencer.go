package hold

import (
	"sync"

	"github.com/iliyamo/seat-hold-service/internal/model"
)

// Publisher receives every state change in production order.  Publish
// must not block; delivery problems stay inside the publisher.
type Publisher interface {
	Publish(ev model.SeatEvent)
}

// sequencer hands events to the publisher in store version order per
// seat.  Two writers can win consecutive compare-and-sets on a seat and
// then reach emit in the opposite order; the later version is parked until
// its predecessor has been published.
//
// A seat is unsynced when a write's outcome is unknown (the store may or
// may not have moved).  The next version seen for an unsynced seat, from
// emit or resync, is taken as the new baseline.
type sequencer struct {
	mu       sync.Mutex
	pub      Publisher
	last     map[string]uint64
	pending  map[string]map[uint64]model.SeatEvent
	unsynced map[string]bool
}

func newSequencer(pub Publisher, records []model.SeatRecord) *sequencer {
	s := &sequencer{
		pub:      pub,
		last:     make(map[string]uint64, len(records)),
		pending:  make(map[string]map[uint64]model.SeatEvent),
		unsynced: make(map[string]bool),
	}
	for _, r := range records {
		s.last[r.SeatID] = r.Version
	}
	return s
}

// emit publishes ev, written as version of seatID, once every lower
// version of that seat has been published.  Versions at or below the
// last published one are superseded and dropped.
func (s *sequencer) emit(seatID string, version uint64, ev model.SeatEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if version <= s.last[seatID] {
		return
	}
	if !s.unsynced[seatID] && version > s.last[seatID]+1 {
		p := s.pending[seatID]
		if p == nil {
			p = make(map[uint64]model.SeatEvent)
			s.pending[seatID] = p
		}
		p[version] = ev
		return
	}
	s.publishLocked(seatID, version, ev)
}

// desync marks seatID after a write whose outcome is unknown.
func (s *sequencer) desync(seatID string) {
	s.mu.Lock()
	s.unsynced[seatID] = true
	s.mu.Unlock()
}

func (s *sequencer) desyncAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.last {
		s.unsynced[id] = true
	}
}

// resync aligns seatID with a record read back from the store.  If the
// store is ahead of what was published, the record's state is published
// in place of whatever was missed.
func (s *sequencer) resync(rec model.SeatRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch last := s.last[rec.SeatID]; {
	case rec.Version > last:
		s.publishLocked(rec.SeatID, rec.Version, model.SeatUpdate(rec.State()))
	case rec.Version == last:
		delete(s.unsynced, rec.SeatID)
	}
}

// publishLocked publishes ev as version, discards parked versions it
// supersedes, then drains the ones that now follow in order.
func (s *sequencer) publishLocked(seatID string, version uint64, ev model.SeatEvent) {
	s.pub.Publish(ev)
	s.last[seatID] = version
	delete(s.unsynced, seatID)

	p := s.pending[seatID]
	for v := range p {
		if v <= version {
			delete(p, v)
		}
	}
	for p != nil {
		next, ok := p[s.last[seatID]+1]
		if !ok {
			break
		}
		delete(p, s.last[seatID]+1)
		s.pub.Publish(next)
		s.last[seatID]++
	}
	if len(p) == 0 {
		delete(s.pending, seatID)
	}
}

// reset takes the post-reset versions from records and publishes the
// single reset event.  With nil records (the store could not be read
// back) every seat becomes unsynced instead.  The caller must hold the
// manager gate exclusively, so nothing is in flight.
func (s *sequencer) reset(records []model.SeatRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.pending)
	clear(s.unsynced)
	if records == nil {
		for id := range s.last {
			s.unsynced[id] = true
		}
	}
	for _, r := range records {
		s.last[r.SeatID] = r.Version
	}
	s.pub.Publish(model.Reset())
}
