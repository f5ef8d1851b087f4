// Copyright 2025 Leandro Veron
// SPDX-License-Identifier: Apache-2.0

// Package locusrt maintains the per-business realtime channel: one
// persistent websocket connection per tenant, a join handshake binding the
// server-side room, and named event listeners feeding the local stores.
package locusrt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// RoleBusiness identifies the business side of the channel in the join
// handshake.
const RoleBusiness = "business"

// EventNewOrder is pushed by the server when a customer places an order.
const EventNewOrder = "new_order_notification"

// Envelope is the wire frame for every realtime event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type joinMessage struct {
	Role string `json:"role"`
	ID   string `json:"id"`
}

// Handler receives the payload of one event occurrence. Handlers run on the
// connection's read goroutine and must not block.
type Handler func(data json.RawMessage)

// Conn is the realtime channel for one tenant. The Conn value persists
// across reconnects: listeners registered with On survive a dropped and
// re-dialed websocket. Consumers never close a Conn directly; lifetime is
// managed by the Bridge.
type Conn struct {
	tenantID  string
	logger    *slog.Logger
	validator *Validator

	mu           sync.Mutex
	ws           *websocket.Conn
	alive        bool
	listeners    map[string]map[int]Handler
	nextListener int
}

func newConn(tenantID string, logger *slog.Logger, validator *Validator) *Conn {
	return &Conn{
		tenantID:  tenantID,
		logger:    logger,
		validator: validator,
		listeners: make(map[string]map[int]Handler),
	}
}

// TenantID returns the tenant this connection is bound to.
func (c *Conn) TenantID() string { return c.tenantID }

// Connected reports whether the underlying websocket is currently open.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

// ensureConnected dials and joins the tenant's room if the websocket is not
// open. Idempotent: an open connection is reused as-is.
func (c *Conn) ensureConnected(ctx context.Context, wsURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.alive {
		return nil
	}

	ws, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial realtime channel for %s: %w", c.tenantID, err)
	}
	if err := wsjson.Write(ctx, ws, joinMessage{Role: RoleBusiness, ID: c.tenantID}); err != nil {
		_ = ws.Close(websocket.StatusInternalError, "join failed")
		return fmt.Errorf("failed to join room for %s: %w", c.tenantID, err)
	}

	c.ws = ws
	c.alive = true
	go c.readLoop(ws)
	c.logger.Debug("realtime channel connected", "tenant", c.tenantID)
	return nil
}

// On registers a handler for a named event and returns a detach function.
// Listener lifetime is the caller's concern (detach on unmount); the
// connection itself persists.
func (c *Conn) On(event string, h Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.listeners[event] == nil {
		c.listeners[event] = make(map[int]Handler)
	}
	id := c.nextListener
	c.nextListener++
	c.listeners[event][id] = h

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners[event], id)
	}
}

// Emit sends a named event to the server.
func (c *Conn) Emit(ctx context.Context, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}

	c.mu.Lock()
	ws := c.ws
	alive := c.alive
	c.mu.Unlock()
	if !alive || ws == nil {
		return fmt.Errorf("realtime channel for %s is not connected", c.tenantID)
	}
	if err := wsjson.Write(ctx, ws, Envelope{Event: event, Data: data}); err != nil {
		return fmt.Errorf("failed to emit %s: %w", event, err)
	}
	return nil
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		if c.ws == ws {
			c.alive = false
		}
		c.mu.Unlock()
	}()

	for {
		var env Envelope
		if err := wsjson.Read(context.Background(), ws, &env); err != nil {
			c.logger.Debug("realtime read loop ended", "tenant", c.tenantID, "error", err)
			return
		}
		c.dispatch(env)
	}
}

// dispatch routes one inbound envelope to the registered listeners. A
// malformed envelope is dropped, never allowed to kill the read loop.
func (c *Conn) dispatch(env Envelope) {
	if env.Event == "" {
		c.logger.Warn("dropping event without name", "tenant", c.tenantID)
		return
	}
	if c.validator != nil {
		if err := c.validator.Validate(env); err != nil {
			c.logger.Warn("dropping invalid event", "tenant", c.tenantID,
				"event", env.Event, "error", err)
			return
		}
	}

	c.mu.Lock()
	handlers := make([]Handler, 0, len(c.listeners[env.Event]))
	for _, h := range c.listeners[env.Event] {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(env.Data)
	}
}

// close tears down the websocket. Registered listeners are kept so a later
// reconnect resumes delivery.
func (c *Conn) close() {
	c.mu.Lock()
	ws := c.ws
	c.ws = nil
	c.alive = false
	c.mu.Unlock()

	if ws != nil {
		_ = ws.Close(websocket.StatusNormalClosure, "disconnect")
	}
}
