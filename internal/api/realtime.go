package api

import (
	"github.com/gofiber/contrib/v3/websocket"
	"github.com/gofiber/fiber/v3"

	"github.com/selfdb-io/selfdb/internal/realtime"
)

// RealtimeHandler serves the WebSocket upgrade endpoint for the Subscription Router.
type RealtimeHandler struct {
	hub *realtime.Hub
}

// NewRealtimeHandler creates a new realtime handler.
func NewRealtimeHandler(hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{hub: hub}
}

// Upgrade handles GET /realtime/ws. It upgrades the HTTP connection to a WebSocket and hands it to the Hub, which
// owns authentication (the first frame must be {"type":"authenticate",...}, per spec §4.5) and subscription
// dispatch from there on.
func (h *RealtimeHandler) Upgrade(c fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return websocket.New(func(conn *websocket.Conn) {
		h.hub.ServeWebSocket(conn.Conn)
	})(c)
}
