package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iliyamo/seat-hold-service/internal/model"
)

// pgxConn is the subset of *pgxpool.Pool the ledger needs.
type pgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PgOrderRepo stores orders in PostgreSQL using pgx directly.
type PgOrderRepo struct {
	db pgxConn
}

// NewPgOrderRepo returns a repo bound to db, normally a *pgxpool.Pool.
func NewPgOrderRepo(db pgxConn) *PgOrderRepo { return &PgOrderRepo{db: db} }

// EnsureSchema creates the orders table when it does not exist.
func (r *PgOrderRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS orders (
			id           UUID PRIMARY KEY,
			seat_id      TEXT        NOT NULL,
			user_id      TEXT        NOT NULL,
			amount_cents BIGINT      NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL
		)`,
	)
	if err != nil {
		return fmt.Errorf("create orders table: %w", err)
	}
	_, err = r.db.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_orders_user ON orders (user_id, created_at)`)
	if err != nil {
		return fmt.Errorf("create orders index: %w", err)
	}
	return nil
}

// Create inserts a single order.
func (r *PgOrderRepo) Create(ctx context.Context, o model.Order) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO orders (id, seat_id, user_id, amount_cents, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		o.ID, o.SeatID, o.UserID, o.AmountCents, o.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// ListByUser returns the user's orders ordered by creation time.
func (r *PgOrderRepo) ListByUser(ctx context.Context, userID string) ([]model.Order, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id::text, seat_id, user_id, amount_cents, created_at
		 FROM orders
		 WHERE user_id = $1
		 ORDER BY created_at ASC`,
		userID,
	)
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
