package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-hold-service/internal/hold"
	"github.com/iliyamo/seat-hold-service/internal/model"
	"github.com/iliyamo/seat-hold-service/internal/repository"
)

// Holds is the part of *hold.Manager the gateway drives.
type Holds interface {
	Acquire(ctx context.Context, seatID, userID string) (model.SeatState, error)
	Release(ctx context.Context, seatID, userID string) (model.SeatState, error)
	Finalize(ctx context.Context, seatID, userID string) (model.SeatState, error)
	Snapshot(ctx context.Context) ([]model.SeatState, error)
	ResetAll(ctx context.Context) error
}

// Layout serves the venue layout document.
type Layout interface {
	Raw() []byte
}

// SeatHandler exposes the seat operations over HTTP.  It holds no seat
// state itself; every decision is made by Holds.
type SeatHandler struct {
	Holds  Holds
	Venue  Layout
	Orders repository.OrderRepo
	Log    *slog.Logger
}

// NewSeatHandler constructs a SeatHandler.  holds and venue must be non-nil.
func NewSeatHandler(holds Holds, venue Layout, orders repository.OrderRepo, log *slog.Logger) *SeatHandler {
	if holds == nil || venue == nil {
		panic("nil dependency passed to NewSeatHandler")
	}
	if log == nil {
		log = slog.Default()
	}
	return &SeatHandler{Holds: holds, Venue: venue, Orders: orders, Log: log}
}

type seatRequest struct {
	SeatID string `json:"seatId"`
	UserID string `json:"userId"`
}

// bindSeat reads {"seatId","userId"}; both are required.
func bindSeat(c echo.Context) (seatRequest, bool) {
	var req seatRequest
	if err := c.Bind(&req); err != nil {
		return req, false
	}
	req.SeatID = strings.TrimSpace(req.SeatID)
	req.UserID = strings.TrimSpace(req.UserID)
	return req, req.SeatID != "" && req.UserID != ""
}

func malformed(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"status": "fail", "error": "invalid_request", "message": "seatId and userId are required"})
}

// GetVenue handles GET /api/venue and returns the layout document as loaded.
func (h *SeatHandler) GetVenue(c echo.Context) error {
	return c.JSONBlob(http.StatusOK, h.Venue.Raw())
}

// ListSeats handles GET /api/seats: the state of every seat.
func (h *SeatHandler) ListSeats(c echo.Context) error {
	seats, err := h.Holds.Snapshot(c.Request().Context())
	if err != nil {
		h.Log.Error("snapshot failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"status": "fail", "error": "internal", "message": "failed to fetch seats"})
	}
	return c.JSON(http.StatusOK, seats)
}

// Hold handles POST /api/hold.
func (h *SeatHandler) Hold(c echo.Context) error {
	req, ok := bindSeat(c)
	if !ok {
		return malformed(c)
	}
	st, err := h.Holds.Acquire(context.WithoutCancel(c.Request().Context()), req.SeatID, req.UserID)
	if err != nil {
		return h.fail(c, "hold", req, st, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "success", "message": "Seat held successfully", "seatId": req.SeatID, "seat": st})
}

// Release handles DELETE /api/hold.
func (h *SeatHandler) Release(c echo.Context) error {
	req, ok := bindSeat(c)
	if !ok {
		return malformed(c)
	}
	st, err := h.Holds.Release(context.WithoutCancel(c.Request().Context()), req.SeatID, req.UserID)
	if err != nil {
		return h.fail(c, "release", req, st, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "success", "message": "Seat released successfully", "seatId": req.SeatID, "seat": st})
}

// Purchase handles POST /api/purchase.
func (h *SeatHandler) Purchase(c echo.Context) error {
	req, ok := bindSeat(c)
	if !ok {
		return malformed(c)
	}
	st, err := h.Holds.Finalize(context.WithoutCancel(c.Request().Context()), req.SeatID, req.UserID)
	if err != nil {
		return h.fail(c, "purchase", req, st, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "success", "message": "Purchase successful", "seatId": req.SeatID, "seat": st})
}

// Reset handles POST /api/reset.  Orders already recorded are kept.
func (h *SeatHandler) Reset(c echo.Context) error {
	if err := h.Holds.ResetAll(context.WithoutCancel(c.Request().Context())); err != nil {
		h.Log.Error("reset failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"status": "fail", "error": "internal", "message": "reset failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "success", "message": "All seats reset"})
}

// ListOrders handles GET /api/orders?userId=.
func (h *SeatHandler) ListOrders(c echo.Context) error {
	userID := strings.TrimSpace(c.QueryParam("userId"))
	if userID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"status": "fail", "error": "invalid_request", "message": "userId is required"})
	}
	if h.Orders == nil {
		return c.JSON(http.StatusOK, echo.Map{"items": []model.Order{}})
	}
	items, err := h.Orders.ListByUser(c.Request().Context(), userID)
	if err != nil {
		h.Log.Error("list orders failed", "user", userID, "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"status": "fail", "error": "internal", "message": "failed to fetch orders"})
	}
	if items == nil {
		items = []model.Order{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// fail maps a hold error to its HTTP status.  The seat's current state is
// included when the manager reported one.
func (h *SeatHandler) fail(c echo.Context, op string, req seatRequest, st model.SeatState, err error) error {
	code, kind := classify(err)
	if code == http.StatusInternalServerError {
		h.Log.Error(op+" failed", "seat", req.SeatID, "user", req.UserID, "err", err)
		return c.JSON(code, echo.Map{"status": "fail", "error": kind, "message": "internal server error"})
	}
	body := echo.Map{"status": "fail", "error": kind, "message": err.Error(), "seatId": req.SeatID}
	if st.SeatID != "" {
		body["seat"] = st
	}
	return c.JSON(code, body)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, hold.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, hold.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, hold.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, hold.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, hold.ErrInvalidState):
		return http.StatusBadRequest, "invalid_state"
	case errors.Is(err, hold.ErrExpired):
		return http.StatusGone, "expired"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
