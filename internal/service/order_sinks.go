package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/iliyamo/seat-hold-service/internal/model"
	q "github.com/iliyamo/seat-hold-service/internal/queue"
	"github.com/iliyamo/seat-hold-service/internal/repository"
)

// LedgerSink writes every purchase to the order ledger.
type LedgerSink struct {
	repo repository.OrderRepo
}

func NewLedgerSink(repo repository.OrderRepo) *LedgerSink { return &LedgerSink{repo: repo} }

func (s *LedgerSink) RecordOrder(ctx context.Context, o model.Order) error {
	return s.repo.Create(ctx, o)
}

// EventPublisher is satisfied by *PurchasePublisher.
type EventPublisher interface {
	PublishSeatPurchased(ctx context.Context, ev q.SeatPurchasedEvent) error
}

// BrokerSink publishes purchases in the background so a slow or absent
// broker never delays the purchase response.
type BrokerSink struct {
	pub     EventPublisher
	timeout time.Duration
	log     *slog.Logger
	wg      sync.WaitGroup
}

// NewBrokerSink wraps pub.  Each publish gets at most timeout.
func NewBrokerSink(pub EventPublisher, timeout time.Duration, log *slog.Logger) *BrokerSink {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &BrokerSink{pub: pub, timeout: timeout, log: log}
}

// RecordOrder schedules the publish and returns immediately.
func (s *BrokerSink) RecordOrder(ctx context.Context, o model.Order) error {
	ev := q.FromOrder(o)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		if err := s.pub.PublishSeatPurchased(pctx, ev); err != nil {
			s.log.Warn("purchase event not published", "order", ev.OrderID, "seat", ev.SeatID, "err", err)
		}
	}()
	return nil
}

// Wait blocks until every scheduled publish has finished.
func (s *BrokerSink) Wait() { s.wg.Wait() }
