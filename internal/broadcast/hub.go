// Package broadcast fans seat events out to every connected observer.
//
// Each observer owns a bounded outbox.  Publish encodes the event once,
// takes a snapshot of the registered observers and offers the message to
// each outbox without blocking.  An observer whose outbox is full is
// disconnected rather than skipped, so an observer that stays connected
// never misses an event and a slow one never delays the others.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/iliyamo/seat-hold-service/internal/model"
)

// DefaultBuffer is the outbox size used when none is configured.
const DefaultBuffer = 256

// Observer is one registered push channel.
type Observer struct {
	ID string

	mu     sync.Mutex
	out    chan []byte
	closed bool
}

// Messages yields encoded events in publish order.  The channel is closed
// when the observer is unregistered or falls behind.
func (o *Observer) Messages() <-chan []byte { return o.out }

// offer enqueues msg without blocking.  It reports false when the
// observer is closed or its outbox overflowed, which closes it.
func (o *Observer) offer(msg []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	select {
	case o.out <- msg:
		return true
	default:
		o.closed = true
		close(o.out)
		return false
	}
}

func (o *Observer) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.out)
	}
}

// Hub is the registry of connected observers.
type Hub struct {
	mu        sync.RWMutex
	observers map[string]*Observer
	buffer    int
	log       *slog.Logger
}

// NewHub creates an empty hub.  buffer <= 0 selects DefaultBuffer.
func NewHub(buffer int, log *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		observers: make(map[string]*Observer),
		buffer:    buffer,
		log:       log,
	}
}

// Register adds a new observer.  It only receives events published after
// this call returns.
func (h *Hub) Register() *Observer {
	o := &Observer{
		ID:  uuid.NewString(),
		out: make(chan []byte, h.buffer),
	}
	h.mu.Lock()
	h.observers[o.ID] = o
	n := len(h.observers)
	h.mu.Unlock()
	h.log.Info("observer connected", "observer", o.ID, "observers", n)
	return o
}

// Unregister removes o and closes its channel.  It is safe to call more
// than once.
func (h *Hub) Unregister(o *Observer) {
	h.mu.Lock()
	_, ok := h.observers[o.ID]
	delete(h.observers, o.ID)
	n := len(h.observers)
	h.mu.Unlock()
	o.close()
	if ok {
		h.log.Info("observer disconnected", "observer", o.ID, "observers", n)
	}
}

// Publish delivers ev to every registered observer.  Errors never reach
// the caller.
func (h *Hub) Publish(ev model.SeatEvent) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("encode event failed", "type", ev.Type, "err", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Observer, 0, len(h.observers))
	for _, o := range h.observers {
		targets = append(targets, o)
	}
	h.mu.RUnlock()

	for _, o := range targets {
		if !o.offer(msg) {
			h.log.Warn("dropping slow observer", "observer", o.ID)
			h.Unregister(o)
		}
	}
}

// Count is the number of registered observers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// Close unregisters every observer.
func (h *Hub) Close() {
	h.mu.Lock()
	all := h.observers
	h.observers = make(map[string]*Observer)
	h.mu.Unlock()
	for _, o := range all {
		o.close()
	}
}
