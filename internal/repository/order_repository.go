package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/iliyamo/seat-hold-service/internal/model"
)

// OrderRepo is the append-only ledger of finalized purchases.
type OrderRepo interface {
	// Create stores o.  ID and CreatedAt must already be set.
	Create(ctx context.Context, o model.Order) error
	// ListByUser returns the user's orders, oldest first.
	ListByUser(ctx context.Context, userID string) ([]model.Order, error)
}

// MemoryOrderRepo keeps orders in process memory.  It is the default
// ledger when no database is configured.
type MemoryOrderRepo struct {
	mu     sync.RWMutex
	orders []model.Order
}

// NewMemoryOrderRepo returns an empty ledger.
func NewMemoryOrderRepo() *MemoryOrderRepo { return &MemoryOrderRepo{} }

// Create appends o.
func (r *MemoryOrderRepo) Create(_ context.Context, o model.Order) error {
	r.mu.Lock()
	r.orders = append(r.orders, o)
	r.mu.Unlock()
	return nil
}

// ListByUser filters the ledger by user.
func (r *MemoryOrderRepo) ListByUser(_ context.Context, userID string) ([]model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
