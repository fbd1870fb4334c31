// Package transport owns the duplex connection to the message service. It
// exposes connect/disconnect, per-channel subscriptions, and fire-and-forget
// publishes, and reconnects on abnormal closes using a fixed backoff table.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/davrbek/chatline/internal/bus"
	"github.com/davrbek/chatline/internal/status"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// ErrAuthRejected is returned when the service refuses the credentials.
// It is terminal: no reconnect is scheduled, the caller must re-authenticate.
var ErrAuthRejected = errors.New("transport: authentication rejected")

// ErrNotConnected is returned by Publish when no connection is established.
var ErrNotConnected = errors.New("transport: not connected")

// handshakeTimeout bounds the wait for the authenticated greeting after the
// dial. A server that accepts the socket but never greets is treated as a
// transient failure. Variable so tests can shorten it.
var handshakeTimeout = 10 * time.Second

// Handler receives the payload of one inbound frame on a subscribed channel.
// Handlers are invoked synchronously in frame arrival order, at most once per
// frame.
type Handler func(payload []byte)

// envelope is the wire shape of every inbound frame.
type envelope struct {
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

// command is the wire shape of every outbound frame.
type command struct {
	Destination string `json:"destination"`
	Payload     any    `json:"payload"`
}

// Client is the WebSocket transport client. The connection handle is owned
// exclusively here; no other component touches it.
type Client struct {
	socketURL string
	token     string
	machine   *status.Machine
	bus       *bus.Bus
	logger    *zap.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	subs       map[string]Handler
	reconnect  *time.Timer
	cancelRead context.CancelFunc
	closed     bool
}

// New creates a transport client for the given WebSocket endpoint.
func New(socketURL, token string, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *Client {
	return &Client{
		socketURL: socketURL,
		token:     token,
		machine:   machine,
		bus:       b,
		logger:    logger,
		subs:      make(map[string]Handler),
	}
}

// Subscribe registers the handler for a named channel. One handler per
// channel; a second Subscribe on the same channel replaces the first.
func (c *Client) Subscribe(channel string, h Handler) {
	c.mu.Lock()
	c.subs[channel] = h
	c.mu.Unlock()
}

// Connect establishes the connection. Idempotent: calling while already
// connecting or connected is a no-op. On transient failure a reconnect is
// scheduled; on credential rejection ErrAuthRejected is returned and no
// reconnect happens.
func (c *Client) Connect(ctx context.Context) error {
	if c.machine.Current() != status.Disconnected {
		return nil
	}
	if err := c.machine.Transition(status.Connecting); err != nil {
		return nil
	}

	c.mu.Lock()
	c.closed = false
	c.mu.Unlock()

	dialURL, err := c.dialURL()
	if err != nil {
		_ = c.machine.Transition(status.Disconnected)
		return err
	}

	conn, resp, err := websocket.Dial(ctx, dialURL, nil)
	if err != nil {
		_ = c.machine.Transition(status.Disconnected)
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			c.logger.Error("handshake rejected", zap.Int("status", resp.StatusCode))
			return ErrAuthRejected
		}
		c.logger.Warn("dial failed", zap.Error(err))
		c.scheduleReconnect()
		return fmt.Errorf("dial: %w", err)
	}

	// The service greets with an authenticated frame before any events.
	greetCtx, cancelGreet := context.WithTimeout(ctx, handshakeTimeout)
	_, greeting, err := conn.Read(greetCtx)
	cancelGreet()
	if err != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		_ = c.machine.Transition(status.Disconnected)
		c.logger.Warn("handshake read failed", zap.Error(err))
		c.scheduleReconnect()
		return fmt.Errorf("handshake read: %w", err)
	}
	var env envelope
	if json.Unmarshal(greeting, &env) != nil || env.Channel != "authenticated" {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		_ = c.machine.Transition(status.Disconnected)
		c.logger.Error("handshake not authenticated", zap.String("channel", env.Channel))
		return ErrAuthRejected
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.conn = conn
	c.cancelRead = cancel
	c.mu.Unlock()

	_ = c.machine.Transition(status.Connected)
	c.logger.Info("connected", zap.String("url", c.socketURL))

	go c.readLoop(readCtx, conn)
	return nil
}

// Disconnect tears down the connection, cancels any pending reconnect timer,
// and unsubscribes all channel handlers.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.closed = true
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	if c.cancelRead != nil {
		c.cancelRead()
		c.cancelRead = nil
	}
	conn := c.conn
	c.conn = nil
	c.subs = make(map[string]Handler)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	if c.machine.Current() != status.Disconnected {
		_ = c.machine.Transition(status.Disconnected)
	}
	c.logger.Info("disconnected")
}

// Publish sends a fire-and-forget frame to the given destination. Only
// meaningful while connected.
func (c *Client) Publish(ctx context.Context, destination string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(command{Destination: destination, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			if closed {
				return
			}
			if c.machine.Current() != status.Disconnected {
				_ = c.machine.Transition(status.Disconnected)
			}
			c.logger.Warn("connection lost", zap.Error(err))
			c.scheduleReconnect()
			return
		}

		var env envelope
		if json.Unmarshal(data, &env) != nil || env.Channel == "" {
			c.logger.Warn("dropping malformed frame", zap.ByteString("data", data))
			continue
		}

		c.mu.Lock()
		h := c.subs[env.Channel]
		c.mu.Unlock()
		if h != nil {
			h(env.Payload)
		}
	}
}

// scheduleReconnect arms the reconnect timer. At most one timer is pending
// at a time.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.closed || c.reconnect != nil {
		c.mu.Unlock()
		return
	}
	attempt := c.machine.NextAttempt()
	delay := DelayFor(attempt)
	c.reconnect = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.reconnect = nil
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		_ = c.Connect(context.Background())
	})
	c.mu.Unlock()

	c.logger.Info("reconnect scheduled",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay))
	if c.bus != nil {
		c.bus.Publish(bus.Event{
			Kind:      bus.KindTransportReconnect,
			Timestamp: time.Now(),
			Payload:   map[string]any{"attempt": attempt, "delay": delay},
		})
	}
}

func (c *Client) dialURL() (string, error) {
	u, err := url.Parse(c.socketURL)
	if err != nil {
		return "", fmt.Errorf("parse socket url: %w", err)
	}
	q := u.Query()
	q.Set("token", c.token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
