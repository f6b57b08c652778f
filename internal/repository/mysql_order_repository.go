package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/seat-hold-service/internal/model"
)

// MySQLOrderRepo stores orders in the MySQL `orders` table.  All
// timestamps are written and read in UTC; the connection is opened with
// parseTime=true so DATETIME columns scan into time.Time.
type MySQLOrderRepo struct {
	db *sql.DB
}

// NewMySQLOrderRepo returns a repo bound to db.
func NewMySQLOrderRepo(db *sql.DB) *MySQLOrderRepo { return &MySQLOrderRepo{db: db} }

// EnsureSchema creates the orders table when it does not exist.
func (r *MySQLOrderRepo) EnsureSchema(ctx context.Context) error {
	const q = `CREATE TABLE IF NOT EXISTS orders (
	    id           CHAR(36)     NOT NULL PRIMARY KEY,
	    seat_id      VARCHAR(32)  NOT NULL,
	    user_id      VARCHAR(128) NOT NULL,
	    amount_cents BIGINT       NOT NULL,
	    created_at   DATETIME(3)  NOT NULL,
	    INDEX idx_orders_user (user_id, created_at)
	)`
	if _, err := r.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("create orders table: %w", err)
	}
	return nil
}

// Create inserts a single order.
func (r *MySQLOrderRepo) Create(ctx context.Context, o model.Order) error {
	const q = `INSERT INTO orders (id, seat_id, user_id, amount_cents, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, q, o.ID, o.SeatID, o.UserID, o.AmountCents, o.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// ListByUser returns the user's orders ordered by creation time.
func (r *MySQLOrderRepo) ListByUser(ctx context.Context, userID string) ([]model.Order, error) {
	const q = `SELECT id, seat_id, user_id, amount_cents, created_at
	           FROM orders
	           WHERE user_id = ?
	           ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	var out []model.Order
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.SeatID, &o.UserID, &o.AmountCents, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
