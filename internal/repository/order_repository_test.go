package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-hold-service/internal/model"
)

func TestMemoryOrderRepo(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryOrderRepo()
	t0 := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)

	require.NoError(t, r.Create(ctx, model.Order{ID: "2", SeatID: "0-1", UserID: "alice", AmountCents: 100, CreatedAt: t0.Add(time.Second)}))
	require.NoError(t, r.Create(ctx, model.Order{ID: "1", SeatID: "0-0", UserID: "alice", AmountCents: 100, CreatedAt: t0}))
	require.NoError(t, r.Create(ctx, model.Order{ID: "3", SeatID: "2-5", UserID: "bob", AmountCents: 100, CreatedAt: t0}))

	got, err := r.ListByUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "2", got[1].ID)

	got, err = r.ListByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMySQLOrderRepo(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	r := NewMySQLOrderRepo(db)
	at := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)
	o := model.Order{ID: "4f8c", SeatID: "2-5", UserID: "alice", AmountCents: 25000, CreatedAt: at}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS orders")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO orders (id, seat_id, user_id, amount_cents, created_at) VALUES (?, ?, ?, ?, ?)")).
		WithArgs(o.ID, o.SeatID, o.UserID, o.AmountCents, at).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, seat_id, user_id, amount_cents, created_at")).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"id", "seat_id", "user_id", "amount_cents", "created_at"}).
			AddRow(o.ID, o.SeatID, o.UserID, o.AmountCents, at))

	require.NoError(t, r.EnsureSchema(ctx))
	require.NoError(t, r.Create(ctx, o))
	got, err := r.ListByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []model.Order{o}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
