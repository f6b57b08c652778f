// Package router registers the HTTP surface on an Echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-hold-service/internal/handler"
)

// RegisterRoutes registers the liveness probes.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
	e.GET("/health", handler.Health)
}

// SeatMiddleware groups the optional middleware applied per route class.
// Nil entries are skipped.
type SeatMiddleware struct {
	Cache     echo.MiddlewareFunc // static venue document
	RateLimit echo.MiddlewareFunc // seat mutations
	Admin     echo.MiddlewareFunc // global reset
}

// RegisterSeats registers the seat API under /api.
func RegisterSeats(e *echo.Echo, h *handler.SeatHandler, mw SeatMiddleware) {
	g := e.Group("/api")
	g.GET("/venue", h.GetVenue, use(mw.Cache)...)
	g.GET("/seats", h.ListSeats)
	g.GET("/orders", h.ListOrders)

	limited := use(mw.RateLimit)
	g.POST("/hold", h.Hold, limited...)
	g.DELETE("/hold", h.Release, limited...)
	g.POST("/purchase", h.Purchase, limited...)
	g.POST("/reset", h.Reset, use(mw.Admin)...)
}

// RegisterPush registers the websocket push channel.
func RegisterPush(e *echo.Echo, p *handler.PushHandler) {
	e.GET("/ws", p.Serve)
}

func use(m ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := m[:0:0]
	for _, f := range m {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}
