// Copyright 2025 Leandro Veron
// SPDX-License-Identifier: Apache-2.0

package locusrt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrBridgeClosed is returned by Acquire after Shutdown.
var ErrBridgeClosed = errors.New("bridge is closed")

// BridgeConfig holds configuration for a Bridge.
type BridgeConfig struct {
	// URL is the websocket endpoint, e.g. "wss://api.locus.app/rt".
	URL string
	// Validator optionally enforces event payload schemas before dispatch.
	// Nil trusts the backend contract (production default).
	Validator *Validator
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Bridge is the process-wide registry of realtime connections, keyed by
// tenant id. Acquisition is idempotent: one tenant never holds more than
// one connection, and a connection is never implicitly closed by a consumer
// going away. Only Disconnect (tenant removed) and Shutdown (logout) close
// connections.
type Bridge struct {
	config BridgeConfig

	mu     sync.Mutex
	conns  map[string]*Conn
	closed bool
}

// NewBridge creates a Bridge.
func NewBridge(config BridgeConfig) (*Bridge, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("config.URL must be provided")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Bridge{
		config: config,
		conns:  make(map[string]*Conn),
	}, nil
}

// Acquire returns the tenant's connection, dialing and joining the
// tenant's room on first use and re-dialing if a previous connection
// dropped. Concurrent Acquire calls for the same tenant share one Conn.
func (b *Bridge) Acquire(ctx context.Context, tenantID string) (*Conn, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID must be provided")
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBridgeClosed
	}
	c := b.conns[tenantID]
	if c == nil {
		c = newConn(tenantID, b.config.Logger, b.config.Validator)
		b.conns[tenantID] = c
	}
	b.mu.Unlock()

	// Dialing happens outside the registry lock; Conn serializes its own
	// connection attempts.
	if err := c.ensureConnected(ctx, b.config.URL); err != nil {
		return nil, err
	}
	return c, nil
}

// Disconnect closes and forgets the tenant's connection. Used when a
// business is removed from the user's access list. Unknown tenants are a
// no-op.
func (b *Bridge) Disconnect(tenantID string) {
	b.mu.Lock()
	c := b.conns[tenantID]
	delete(b.conns, tenantID)
	b.mu.Unlock()

	if c != nil {
		c.close()
		b.config.Logger.Debug("realtime channel disconnected", "tenant", tenantID)
	}
}

// Shutdown closes every connection and rejects further Acquire calls. Used
// on logout.
func (b *Bridge) Shutdown() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	conns := b.conns
	b.conns = make(map[string]*Conn)
	b.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}
