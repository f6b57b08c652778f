package hold

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-hold-service/internal/model"
	"github.com/iliyamo/seat-hold-service/internal/repository"
)

const ttl = 60 * time.Second

var seats = []string{"0-0", "0-1", "2-5"}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 10, 16, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []model.SeatEvent
}

func (r *recorder) Publish(ev model.SeatEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) all() []model.SeatEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.SeatEvent(nil), r.events...)
}

type flatPrice float64

func (p flatPrice) PriceOf(string) float64 { return float64(p) }

type sinkFunc func(ctx context.Context, o model.Order) error

func (f sinkFunc) RecordOrder(ctx context.Context, o model.Order) error { return f(ctx, o) }

type fixture struct {
	m     *Manager
	store repository.SeatStore
	clock *fakeClock
	pub   *recorder
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := repository.NewMemorySeatStore(seats)
	return newFixtureWithStore(t, store, opts...)
}

func newFixtureWithStore(t *testing.T, store repository.SeatStore, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{store: store, clock: newClock(), pub: &recorder{}}
	opts = append([]Option{WithClock(f.clock.Now)}, opts...)
	m, err := NewManager(context.Background(), store, flatPrice(120), f.pub, ttl, opts...)
	require.NoError(t, err)
	f.m = m
	return f
}

func (f *fixture) record(t *testing.T, id string) model.SeatRecord {
	t.Helper()
	r, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return r
}

func update(id string, st model.SeatStatus, owner string) model.SeatEvent {
	return model.SeatUpdate(model.SeatState{SeatID: id, Status: st, OwnerID: owner})
}

func TestPurchaseScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	st, err := f.m.Acquire(ctx, "2-5", "A")
	require.NoError(t, err)
	assert.Equal(t, model.SeatState{SeatID: "2-5", Status: model.SeatHeld, OwnerID: "A"}, st)

	f.clock.Advance(time.Second)
	_, err = f.m.Acquire(ctx, "2-5", "B")
	assert.ErrorIs(t, err, ErrConflict)

	f.clock.Advance(9 * time.Second)
	st, err = f.m.Finalize(ctx, "2-5", "A")
	require.NoError(t, err)
	assert.Equal(t, model.SeatSold, st.Status)
	assert.Equal(t, "A", st.OwnerID)
	assert.True(t, f.record(t, "2-5").HoldExpiresAt.IsZero())

	f.clock.Advance(time.Second)
	_, err = f.m.Finalize(ctx, "2-5", "A")
	assert.ErrorIs(t, err, ErrInvalidState)

	assert.Equal(t, []model.SeatEvent{
		update("2-5", model.SeatHeld, "A"),
		update("2-5", model.SeatSold, "A"),
	}, f.pub.all())
}

func TestInlineExpiryScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.m.Acquire(ctx, "0-0", "A")
	require.NoError(t, err)

	f.clock.Advance(61 * time.Second)
	st, err := f.m.Acquire(ctx, "0-0", "B")
	require.NoError(t, err)
	assert.Equal(t, model.SeatHeld, st.Status)
	assert.Equal(t, "B", st.OwnerID)

	assert.Equal(t, []model.SeatEvent{
		update("0-0", model.SeatHeld, "A"),
		update("0-0", model.SeatAvailable, ""),
		update("0-0", model.SeatHeld, "B"),
	}, f.pub.all())
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const n = 100
	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := f.m.Acquire(ctx, "2-5", fmt.Sprintf("user-%d", i))
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrConflict):
				conflicts.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(n-1), conflicts.Load())
	assert.Len(t, f.pub.all(), 1)
}

func TestReacquireRenews(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.m.Acquire(ctx, "0-1", "A")
	require.NoError(t, err)
	first := f.record(t, "0-1").HoldExpiresAt

	f.clock.Advance(30 * time.Second)
	st, err := f.m.Acquire(ctx, "0-1", "A")
	require.NoError(t, err)
	assert.Equal(t, "A", st.OwnerID)
	assert.Equal(t, first.Add(30*time.Second), f.record(t, "0-1").HoldExpiresAt)
	assert.Len(t, f.pub.all(), 2)

	// Renewed deadline keeps the hold alive past the original one.
	f.clock.Advance(45 * time.Second)
	_, err = f.m.Acquire(ctx, "0-1", "B")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestReacquireNoopPolicy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithPolicy(PolicyNoop))

	_, err := f.m.Acquire(ctx, "0-1", "A")
	require.NoError(t, err)
	before := f.record(t, "0-1")

	f.clock.Advance(10 * time.Second)
	st, err := f.m.Acquire(ctx, "0-1", "A")
	require.NoError(t, err)
	assert.Equal(t, model.SeatHeld, st.Status)
	assert.Equal(t, before, f.record(t, "0-1"))
	assert.Len(t, f.pub.all(), 1)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyRenew, p)
	p, err = ParsePolicy(" NOOP ")
	require.NoError(t, err)
	assert.Equal(t, PolicyNoop, p)
	_, err = ParsePolicy("reject")
	assert.Error(t, err)
}

func TestFinalizeExpiredHold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.m.Acquire(ctx, "0-0", "A")
	require.NoError(t, err)
	f.clock.Advance(ttl)

	_, err = f.m.Finalize(ctx, "0-0", "A")
	assert.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, model.SeatAvailable, f.record(t, "0-0").Status)
}

func TestFinalizeOthersExpiredHold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.m.Acquire(ctx, "0-0", "A")
	require.NoError(t, err)
	f.clock.Advance(2 * ttl)

	_, err = f.m.Finalize(ctx, "0-0", "B")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestFinalizeFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.m.Finalize(ctx, "0-1", "A")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, uint64(0), f.record(t, "0-1").Version, "rejected finalize must not write")

	_, err = f.m.Acquire(ctx, "0-1", "A")
	require.NoError(t, err)
	_, err = f.m.Finalize(ctx, "0-1", "B")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Len(t, f.pub.all(), 1)
}

func TestRelease(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.m.Release(ctx, "0-0", "A")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.m.Acquire(ctx, "0-0", "A")
	require.NoError(t, err)
	_, err = f.m.Release(ctx, "0-0", "B")
	assert.ErrorIs(t, err, ErrForbidden)

	st, err := f.m.Release(ctx, "0-0", "A")
	require.NoError(t, err)
	assert.Equal(t, model.SeatState{SeatID: "0-0", Status: model.SeatAvailable}, st)

	rec := f.record(t, "0-0")
	assert.Empty(t, rec.OwnerID)
	assert.True(t, rec.HoldExpiresAt.IsZero())

	// Releasing an overdue hold finds it already expired.
	_, err = f.m.Acquire(ctx, "0-0", "A")
	require.NoError(t, err)
	f.clock.Advance(ttl + time.Second)
	_, err = f.m.Release(ctx, "0-0", "A")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestExpireIfDue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	done, err := f.m.ExpireIfDue(ctx, "0-0")
	require.NoError(t, err)
	assert.False(t, done)

	_, err = f.m.Acquire(ctx, "0-0", "A")
	require.NoError(t, err)
	f.clock.Advance(ttl - time.Second)
	done, err = f.m.ExpireIfDue(ctx, "0-0")
	require.NoError(t, err)
	assert.False(t, done, "hold is not due yet")

	f.clock.Advance(time.Second)
	due, err := f.m.DueHolds(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"0-0"}, due)

	done, err = f.m.ExpireIfDue(ctx, "0-0")
	require.NoError(t, err)
	assert.True(t, done)

	done, err = f.m.ExpireIfDue(ctx, "0-0")
	require.NoError(t, err)
	assert.False(t, done, "second call is a no-op")
	assert.Len(t, f.pub.all(), 2)

	_, err = f.m.ExpireIfDue(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestResetAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.m.Acquire(ctx, "0-0", "A")
	require.NoError(t, err)
	_, err = f.m.Acquire(ctx, "2-5", "B")
	require.NoError(t, err)
	_, err = f.m.Finalize(ctx, "2-5", "B")
	require.NoError(t, err)

	require.NoError(t, f.m.ResetAll(ctx))
	snap, err := f.m.Snapshot(ctx)
	require.NoError(t, err)
	for _, s := range snap {
		assert.Equal(t, model.SeatState{SeatID: s.SeatID, Status: model.SeatAvailable}, s)
	}

	events := f.pub.all()
	require.Len(t, events, 4)
	assert.Equal(t, model.Reset(), events[3])

	// Events keep flowing after the reset.
	_, err = f.m.Acquire(ctx, "2-5", "C")
	require.NoError(t, err)
	events = f.pub.all()
	assert.Equal(t, update("2-5", model.SeatHeld, "C"), events[len(events)-1])
}

func TestSnapshotExpiresOverdueHolds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.m.Acquire(ctx, "0-1", "A")
	require.NoError(t, err)
	snap, err := f.m.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.SeatState{
		{SeatID: "0-0", Status: model.SeatAvailable},
		{SeatID: "0-1", Status: model.SeatHeld, OwnerID: "A"},
		{SeatID: "2-5", Status: model.SeatAvailable},
	}, snap)

	f.clock.Advance(ttl)
	snap, err = f.m.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SeatAvailable, snap[1].Status)
	assert.Len(t, f.pub.all(), 2)
}

func TestRequestValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.m.Acquire(ctx, "", "A")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = f.m.Release(ctx, "0-0", " ")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = f.m.Acquire(ctx, "9-9", "A")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.m.Finalize(ctx, "9-9", "A")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, f.pub.all())
}

func TestFinalizeRecordsOrder(t *testing.T) {
	ctx := context.Background()
	var got []model.Order
	sink := sinkFunc(func(_ context.Context, o model.Order) error {
		got = append(got, o)
		return nil
	})
	failing := sinkFunc(func(context.Context, model.Order) error { return errors.New("ledger down") })
	f := newFixture(t, WithOrderSinks(failing, sink))

	_, err := f.m.Acquire(ctx, "2-5", "A")
	require.NoError(t, err)
	_, err = f.m.Finalize(ctx, "2-5", "A")
	require.NoError(t, err, "sink failures never fail the purchase")

	require.Len(t, got, 1)
	assert.Equal(t, "2-5", got[0].SeatID)
	assert.Equal(t, "A", got[0].UserID)
	assert.Equal(t, int64(12000), got[0].AmountCents)
	assert.NotEmpty(t, got[0].ID)
	assert.Equal(t, f.clock.Now(), got[0].CreatedAt)
}

func TestNewManagerRejectsBadTTL(t *testing.T) {
	_, err := NewManager(context.Background(), repository.NewMemorySeatStore(seats), nil, &recorder{}, 0)
	assert.Error(t, err)
}

func TestManagerOverRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	store := repository.NewRedisSeatStore(rdb, "t", seats)
	require.NoError(t, store.Init(ctx))
	f := newFixtureWithStore(t, store)

	_, err := f.m.Acquire(ctx, "2-5", "A")
	require.NoError(t, err)
	_, err = f.m.Acquire(ctx, "2-5", "B")
	assert.ErrorIs(t, err, ErrConflict)
	f.clock.Advance(ttl + time.Second)
	_, err = f.m.Acquire(ctx, "2-5", "B")
	require.NoError(t, err)
	_, err = f.m.Finalize(ctx, "2-5", "B")
	require.NoError(t, err)
	require.NoError(t, f.m.ResetAll(ctx))

	assert.Equal(t, []model.SeatEvent{
		update("2-5", model.SeatHeld, "A"),
		update("2-5", model.SeatAvailable, ""),
		update("2-5", model.SeatHeld, "B"),
		update("2-5", model.SeatSold, "B"),
		model.Reset(),
	}, f.pub.all())
}

// lossyStore lets armed writes land and then reports a transport error,
// the way a timed-out Redis round trip does.
type lossyStore struct {
	repository.SeatStore
	mu       sync.Mutex
	failCAS  int
	readBack bool // when false, the read after a failed write fails too
	failGet  int
	failWipe bool
}

func (s *lossyStore) CompareAndSet(ctx context.Context, id string, expected, next model.SeatRecord) (model.SeatRecord, bool, error) {
	stored, ok, err := s.SeatStore.CompareAndSet(ctx, id, expected, next)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil && ok && s.failCAS > 0 {
		s.failCAS--
		if !s.readBack {
			s.failGet++
		}
		return model.SeatRecord{}, false, errors.New("i/o timeout")
	}
	return stored, ok, err
}

func (s *lossyStore) Get(ctx context.Context, id string) (model.SeatRecord, error) {
	s.mu.Lock()
	fail := s.failGet > 0
	if fail {
		s.failGet--
	}
	s.mu.Unlock()
	if fail {
		return model.SeatRecord{}, errors.New("i/o timeout")
	}
	return s.SeatStore.Get(ctx, id)
}

func (s *lossyStore) ResetAll(ctx context.Context) error {
	if err := s.SeatStore.ResetAll(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWipe {
		s.failWipe = false
		return errors.New("i/o timeout")
	}
	return nil
}

func (s *lossyStore) arm(cas int, readBack bool) {
	s.mu.Lock()
	s.failCAS, s.readBack = cas, readBack
	s.mu.Unlock()
}

func TestWriteErrorPublishesStoredState(t *testing.T) {
	ctx := context.Background()
	store := &lossyStore{SeatStore: repository.NewMemorySeatStore(seats)}
	f := newFixtureWithStore(t, store)

	_, err := f.m.Acquire(ctx, "0-0", "alice")
	require.NoError(t, err)

	store.arm(1, true)
	_, err = f.m.Release(ctx, "0-0", "alice")
	require.Error(t, err)
	assert.Equal(t, model.SeatAvailable, f.record(t, "0-0").Status, "write landed despite the error")

	_, err = f.m.Acquire(ctx, "0-0", "bob")
	require.NoError(t, err)
	_, err = f.m.Release(ctx, "0-0", "bob")
	require.NoError(t, err)
	_, err = f.m.Acquire(ctx, "0-1", "carol")
	require.NoError(t, err)

	assert.Equal(t, []model.SeatEvent{
		update("0-0", model.SeatHeld, "alice"),
		update("0-0", model.SeatAvailable, ""),
		update("0-0", model.SeatHeld, "bob"),
		update("0-0", model.SeatAvailable, ""),
		update("0-1", model.SeatHeld, "carol"),
	}, f.pub.all())
	assert.Empty(t, f.m.seq.pending)
}

func TestWriteErrorWithFailedReadBack(t *testing.T) {
	ctx := context.Background()
	store := &lossyStore{SeatStore: repository.NewMemorySeatStore(seats)}
	f := newFixtureWithStore(t, store)

	_, err := f.m.Acquire(ctx, "0-0", "alice")
	require.NoError(t, err)

	store.arm(1, false)
	_, err = f.m.Release(ctx, "0-0", "alice")
	require.Error(t, err)

	// nothing could be published for the lost write; the next one resumes
	_, err = f.m.Acquire(ctx, "0-0", "bob")
	require.NoError(t, err)
	_, err = f.m.Finalize(ctx, "0-0", "bob")
	require.NoError(t, err)

	assert.Equal(t, []model.SeatEvent{
		update("0-0", model.SeatHeld, "alice"),
		update("0-0", model.SeatHeld, "bob"),
		update("0-0", model.SeatSold, "bob"),
	}, f.pub.all())
}

func TestResetRealignsAfterLostWrite(t *testing.T) {
	ctx := context.Background()
	store := &lossyStore{SeatStore: repository.NewMemorySeatStore(seats)}
	f := newFixtureWithStore(t, store)

	store.arm(1, false)
	_, err := f.m.Acquire(ctx, "2-5", "alice")
	require.Error(t, err)

	require.NoError(t, f.m.ResetAll(ctx))
	_, err = f.m.Acquire(ctx, "2-5", "bob")
	require.NoError(t, err)

	assert.Equal(t, []model.SeatEvent{
		model.Reset(),
		update("2-5", model.SeatHeld, "bob"),
	}, f.pub.all())
}

func TestFailedResetKeepsEventsFlowing(t *testing.T) {
	ctx := context.Background()
	store := &lossyStore{SeatStore: repository.NewMemorySeatStore(seats), failWipe: true}
	f := newFixtureWithStore(t, store)

	require.Error(t, f.m.ResetAll(ctx))
	_, err := f.m.Acquire(ctx, "2-5", "bob")
	require.NoError(t, err)

	assert.Equal(t, []model.SeatEvent{update("2-5", model.SeatHeld, "bob")}, f.pub.all())
}
