package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	maxMessageSize = 4096
	writeWait      = 2 * time.Second
	authTimeout    = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
)

// sessionState is the Subscription Router's per-socket state machine (opened/authenticated/closed).
type sessionState int

const (
	stateOpened sessionState = iota
	stateAuthenticated
	stateClosed
)

// Client is one WebSocket connection managed by the Hub. It owns two goroutines (readPump/writePump) and a bounded
// send buffer; a slow reader is disconnected rather than allowed to stall the fan-out of other sessions.
type Client struct {
	id   uuid.UUID
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	log  zerolog.Logger

	done      chan struct{}
	closeOnce sync.Once

	mu            sync.RWMutex
	state         sessionState
	principal     string // the authenticated user id, or "" for the anonymous principal
	subscriptions map[string]string // subscription id -> optional table filter
}

func newClient(hub *Hub, conn *websocket.Conn, logger zerolog.Logger) *Client {
	return &Client{
		id:            uuid.New(),
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, 64),
		done:          make(chan struct{}),
		log:           logger,
		subscriptions: make(map[string]string),
	}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) isAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == stateAuthenticated
}

// readPump decodes inbound frames and dispatches them by opcode. It enforces the auth timeout and terminates the
// session (and releases it from the Hub) when the connection drops.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	authTimer := time.AfterFunc(authTimeout, func() {
		if !c.isAuthenticated() {
			c.closeWithCode(websocket.CloseNormalClosure, "auth timeout")
		}
	})
	defer authTimer.Stop()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.sendError("invalid frame")
			continue
		}

		switch frame.Type {
		case OpAuthenticate:
			authTimer.Stop()
			c.handleAuth(frame)
		case OpSubscribe:
			c.handleSubscribe(frame)
		case OpUnsubscribe:
			c.handleUnsubscribe(frame)
		default:
			c.sendError("unknown op")
		}
	}
}

// writePump flushes queued frames and periodic pings to the connection until done is closed.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			for {
				select {
				case msg := <-c.send:
					_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// handleAuth resolves the supplied credential into a principal. Either a valid ticket for an active user or a
// matching anon key is sufficient to enter the authenticated state; the router performs no further per-row
// authorization (a documented limitation, not an oversight).
func (c *Client) handleAuth(f Frame) {
	if c.isAuthenticated() {
		c.sendError("already authenticated")
		return
	}

	principal, ok := c.hub.resolvePrincipal(f.Token, f.APIKey)
	if !ok {
		c.closeWithCode(websocket.CloseNormalClosure, "authentication failed")
		return
	}

	c.mu.Lock()
	c.principal = principal
	c.state = stateAuthenticated
	c.mu.Unlock()

	if err := c.hub.register(c); err != nil {
		c.closeWithCode(websocket.CloseNormalClosure, err.Error())
		return
	}

	if frame, err := authOKFrame(); err == nil {
		c.enqueue(frame)
	}
}

func (c *Client) handleSubscribe(f Frame) {
	if !c.isAuthenticated() {
		c.sendError("not authenticated")
		return
	}
	if f.SubscriptionID == "" {
		c.sendError("subscription_id required")
		return
	}
	var d subscribeData
	if len(f.Data) > 0 {
		if err := json.Unmarshal(f.Data, &d); err != nil {
			c.sendError("invalid subscribe payload")
			return
		}
	}
	c.mu.Lock()
	c.subscriptions[f.SubscriptionID] = d.Table
	c.mu.Unlock()
}

func (c *Client) handleUnsubscribe(f Frame) {
	if !c.isAuthenticated() {
		c.sendError("not authenticated")
		return
	}
	c.mu.Lock()
	delete(c.subscriptions, f.SubscriptionID)
	c.mu.Unlock()
}

func (c *Client) sendError(msg string) {
	if frame, err := errorFrame(msg); err == nil {
		c.enqueue(frame)
	}
}

// matchingSubscriptions returns the subscription ids whose filter matches the given table/channel pair, per the
// Router's matching rule.
func (c *Client) matchingSubscriptions(table, channel string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var matches []string
	for sid, filter := range c.subscriptions {
		if filter == table || sid == channel || sid == "tables_changes" {
			matches = append(matches, sid)
		}
	}
	return matches
}

// enqueue hands a frame to the write loop. If the buffer is full the connection is closed rather than allowed to
// block the fan-out of other sessions; a bounded write timeout is enforced by writePump's deadline, not here.
func (c *Client) enqueue(msg []byte) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- msg:
	case <-c.done:
	default:
		c.log.Warn().Str("client_id", c.id.String()).Msg("send buffer full, closing slow subscriber")
		c.closeWithCode(websocket.CloseMessageTooBig, "backpressure")
	}
}

func (c *Client) closeWithCode(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.closeSend()
	_ = c.conn.Close()
}
