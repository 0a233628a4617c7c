package realtime

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"sync"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/selfdb-io/selfdb/internal/auth"
	"github.com/selfdb-io/selfdb/internal/notify"
)

// activeSuperuserChecker is the narrow slice of the user repository the Hub needs to validate a bearer ticket's
// subject is still an active user.
type activeSuperuserChecker interface {
	IsActiveSuperuser(ctx context.Context, id uuid.UUID) (active, superuser bool, err error)
}

// Hub is the Subscription Router: it tracks every authenticated session and fans out Change Events delivered by the
// Notification Bridge to the sessions whose subscriptions match.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client

	secret  string
	issuer  string
	anonKey string
	users   activeSuperuserChecker

	log zerolog.Logger
}

// NewHub builds a Subscription Router. secret/issuer validate bearer tickets exactly as the HTTP Auth Gate does;
// anonKey is the same shared secret accepted for anonymous principals.
func NewHub(secret, issuer, anonKey string, users activeSuperuserChecker, logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]*Client),
		secret:  secret,
		issuer:  issuer,
		anonKey: anonKey,
		users:   users,
		log:     logger.With().Str("component", "realtime").Logger(),
	}
}

// ServeWebSocket runs a single upgraded connection until it closes. The connection enters the `opened` state; it
// must authenticate within authTimeout or it is dropped.
func (h *Hub) ServeWebSocket(conn *websocket.Conn) {
	client := newClient(h, conn, h.log)
	go client.writePump()
	client.readPump()
}

// resolvePrincipal mirrors the HTTP Auth Gate's precedence: a valid ticket for an active user wins; otherwise a
// matching anon key grants the anonymous principal; otherwise authentication fails.
func (h *Hub) resolvePrincipal(token, apiKey string) (principal string, ok bool) {
	if token != "" {
		claims, err := auth.ValidateAccessToken(token, h.secret, h.issuer)
		if err == nil {
			userID, err := uuid.Parse(claims.Subject)
			if err == nil {
				active, _, err := h.users.IsActiveSuperuser(context.Background(), userID)
				if err == nil && active {
					return claims.Subject, true
				}
			}
		}
	}
	if h.anonKey != "" && apiKey != "" && subtle.ConstantTimeCompare([]byte(apiKey), []byte(h.anonKey)) == 1 {
		return "", true
	}
	return "", false
}

// register admits an authenticated client to the Hub's fan-out set.
func (h *Hub) register(client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.id] = client
	return nil
}

// unregister removes a client, e.g. on disconnect. It is idempotent and safe to call from the client's own cleanup.
func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client.id)
	client.closeSend()
}

// Dispatch implements notify.Sink. It is called once per Change Event delivered by the Bridge and fans the event out
// to every session with a matching subscription. One slow session's closure never blocks delivery to the others.
func (h *Hub) Dispatch(e notify.Event) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	data, err := json.Marshal(e)
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to marshal change event")
		return
	}

	for _, c := range targets {
		matches := c.matchingSubscriptions(e.Table, e.Channel)
		for _, sid := range matches {
			frame, err := encodeFrame(Frame{
				Type:           OpDatabaseChange,
				SubscriptionID: sid,
				Data:           data,
			})
			if err != nil {
				h.log.Warn().Err(err).Msg("failed to encode database_change frame")
				continue
			}
			c.enqueue(frame)
		}
	}
}

// ClientCount returns the number of currently tracked sessions. Only authenticated sessions are tracked; a socket is
// registered when it authenticates.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every tracked session with a going-away close code.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.closeWithCode(websocket.CloseGoingAway, "server shutting down")
		delete(h.clients, id)
	}
}
