package api

import (
	_ "embed"
	"log/slog"

	"github.com/gin-gonic/gin"
)

//go:embed openapi.json
var OpenAPI []byte

type Handlers struct {
	Events   *EventHandler
	Bookings *BookingHandler
	Webhooks *WebhookHandler
}

// NewRouter mounts the public API under /api/v1. Booking routes require a
// bearer token signed with jwtSecret.
func NewRouter(logger *slog.Logger, jwtSecret []byte, h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	v1 := router.Group("/api/v1")
	h.Events.Register(v1.Group("/events"))
	h.Bookings.Register(v1.Group("/bookings", Authenticate(jwtSecret)))
	h.Webhooks.Register(v1.Group("/payments"))
	return router
}
