package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-hold-service/internal/model"
	q "github.com/iliyamo/seat-hold-service/internal/queue"
	"github.com/iliyamo/seat-hold-service/internal/repository"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []q.SeatPurchasedEvent
	err    error
}

func (f *fakePublisher) PublishSeatPurchased(ctx context.Context, ev q.SeatPurchasedEvent) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("publish without deadline")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

func order(id, seat string) model.Order {
	return model.Order{ID: id, SeatID: seat, UserID: "A", AmountCents: 12000, CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func TestLedgerSinkStoresOrder(t *testing.T) {
	repo := repository.NewMemoryOrderRepo()
	sink := NewLedgerSink(repo)

	require.NoError(t, sink.RecordOrder(context.Background(), order("o-1", "2-5")))

	got, err := repo.ListByUser(context.Background(), "A")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2-5", got[0].SeatID)
}

func TestBrokerSinkPublishesInBackground(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewBrokerSink(pub, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, sink.RecordOrder(ctx, order("o-1", "2-5")))
	require.NoError(t, sink.RecordOrder(ctx, order("o-2", "0-0")))
	cancel() // request scope ending must not abort the publish
	sink.Wait()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.events, 2)
	seats := []string{pub.events[0].SeatID, pub.events[1].SeatID}
	assert.ElementsMatch(t, []string{"2-5", "0-0"}, seats)
	assert.Equal(t, "2026-01-02T03:04:05Z", pub.events[0].PurchasedAt)
}

func TestBrokerSinkSwallowsPublishErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	sink := NewBrokerSink(pub, 0, nil)

	assert.NoError(t, sink.RecordOrder(context.Background(), order("o-1", "2-5")))
	sink.Wait()
	assert.Len(t, pub.events, 1)
}
