// Copyright 2025 Leandro Veron
// SPDX-License-Identifier: Apache-2.0

package locusrt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/leandroveron1110/locus-sync/locussync"
)

// NewOrderEvent is the payload of EventNewOrder.
type NewOrderEvent struct {
	OrderID      string    `json:"orderId"`
	CustomerName string    `json:"customerName"`
	Total        float64   `json:"total"`
	CreatedAt    time.Time `json:"createdAt"`
}

// OrderFeed routes pushed order events into the order store and the
// notification projection. Both writes are idempotent by id, so a duplicate
// delivery converges to the same state; ordering against a concurrently
// merging sync delta does not matter for the same reason.
type OrderFeed struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	orders        *locussync.Store[locussync.Order]
	notifications *locussync.NotificationStore
}

// NewOrderFeed creates an OrderFeed.
func NewOrderFeed(orders *locussync.Store[locussync.Order], notifications *locussync.NotificationStore) (*OrderFeed, error) {
	if orders == nil {
		return nil, fmt.Errorf("orders store cannot be nil")
	}
	if notifications == nil {
		return nil, fmt.Errorf("notification store cannot be nil")
	}
	return &OrderFeed{
		Logger:        slog.Default(),
		orders:        orders,
		notifications: notifications,
	}, nil
}

// Attach subscribes the feed to the connection's order events and returns a
// detach function scoped to the caller's lifetime. The connection itself
// stays up after detach.
func (f *OrderFeed) Attach(conn *Conn) func() {
	tenantID := conn.TenantID()
	return conn.On(EventNewOrder, func(data json.RawMessage) {
		var ev NewOrderEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			f.Logger.Warn("dropping malformed order event", "tenant", tenantID, "error", err)
			return
		}
		if ev.OrderID == "" {
			f.Logger.Warn("dropping order event without orderId", "tenant", tenantID)
			return
		}

		f.orders.AddOne(tenantID, locussync.Order{
			ID:           ev.OrderID,
			BusinessID:   tenantID,
			CustomerName: ev.CustomerName,
			Status:       locussync.OrderStatusPending,
			Total:        ev.Total,
			CreatedAt:    ev.CreatedAt,
		})
		f.notifications.Add(tenantID, locussync.Notification{
			ID:        ev.OrderID,
			Message:   fmt.Sprintf("Nuevo pedido de %s", ev.CustomerName),
			CreatedAt: ev.CreatedAt,
			Type:      locussync.NotificationNewOrder,
		})
	})
}
