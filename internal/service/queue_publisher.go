// Package service holds the purchase side effects hung off the hold
// manager: the order ledger sink and the RabbitMQ purchase publisher.
// Publisher errors are logged and returned so callers can ignore failures
// without interrupting the purchase itself.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	q "github.com/iliyamo/seat-hold-service/internal/queue"
)

// PurchasePublisher publishes SeatPurchasedEvents to the seat.purchased
// queue.  The broker connection is dialed lazily and redialed after a
// failure.  Messages are marked persistent.
type PurchasePublisher struct {
	url string
	log *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPurchasePublisher returns a publisher for the broker at url.
func NewPurchasePublisher(url string, log *slog.Logger) *PurchasePublisher {
	if log == nil {
		log = slog.Default()
	}
	return &PurchasePublisher{url: url, log: log.With("component", "purchase-publisher")}
}

// PublishSeatPurchased sends ev.  Safe for concurrent use.
func (p *PurchasePublisher) PublishSeatPurchased(ctx context.Context, ev q.SeatPurchasedEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureChannel(); err != nil {
		p.log.Warn("rabbitmq unavailable", "err", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx,
		"",                   // default exchange
		q.SeatPurchasedQueue, // routing key = queue name
		false,                // mandatory
		false,                // immediate
		pub,
	); err != nil {
		p.log.Warn("rabbitmq publish failed", "order", ev.OrderID, "err", err)
		p.resetLocked()
		return err
	}
	return nil
}

// Close releases the broker connection.
func (p *PurchasePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	return nil
}

func (p *PurchasePublisher) ensureChannel() error {
	if p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	p.resetLocked()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("channel open: %w", err)
	}
	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(q.SeatPurchasedQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *PurchasePublisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
