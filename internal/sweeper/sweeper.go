// Package sweeper releases holds whose deadline has passed.  Holds are also
// expired inline whenever an operation touches them, so the sweep only
// bounds how long an idle seat can keep showing as HELD.
package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// Expirer is the part of the hold manager the sweeper drives.
type Expirer interface {
	DueHolds(ctx context.Context) ([]string, error)
	ExpireIfDue(ctx context.Context, seatID string) (bool, error)
}

// Sweeper periodically expires overdue holds.
type Sweeper struct {
	holds    Expirer
	interval time.Duration
	log      *slog.Logger
}

// New returns a sweeper that runs every interval.
func New(holds Expirer, interval time.Duration, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{holds: holds, interval: interval, log: log}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	s.log.Info("expiry sweeper started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("expiry sweeper stopped")
			return
		case <-t.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep and returns how many holds it expired.
// A failure on one seat is logged and the sweep moves on.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	due, err := s.holds.DueHolds(ctx)
	if err != nil {
		s.log.Error("list overdue holds failed", "err", err)
		return 0
	}
	n := 0
	for _, id := range due {
		ok, err := s.holds.ExpireIfDue(ctx, id)
		if err != nil {
			s.log.Error("expire hold failed", "seat", id, "err", err)
			continue
		}
		if ok {
			n++
		}
	}
	if n > 0 {
		s.log.Debug("expired holds", "count", n)
	}
	return n
}
