// Copyright 2025 Leandro Veron
// SPDX-License-Identifier: Apache-2.0

package locussync

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// NotificationType classifies a user-facing notification.
type NotificationType string

const (
	NotificationNewOrder NotificationType = "NEW_ORDER"
	NotificationStockLow NotificationType = "STOCK_LOW"
	NotificationSystem   NotificationType = "SYSTEM"
)

// Notification is a user-facing alert derived from a realtime event. The id
// is typically the originating entity's id (e.g. the order id), so a
// duplicate push delivery cannot create a duplicate notification.
type Notification struct {
	ID        string           `json:"id"`
	Message   string           `json:"message"`
	CreatedAt time.Time        `json:"createdAt"`
	Type      NotificationType `json:"type"`
}

// NotificationStore holds per-tenant notification lists, newest first,
// deduplicated by id. Safe for concurrent use.
type NotificationStore struct {
	mu       sync.RWMutex
	byTenant map[string][]Notification
}

// NewNotificationStore creates an empty NotificationStore.
func NewNotificationStore() *NotificationStore {
	return &NotificationStore{byTenant: make(map[string][]Notification)}
}

// Add prepends a notification to the tenant's list. A notification whose id
// is already present is dropped; the return value reports whether the
// notification was added. An empty id gets a generated one (system
// messages that have no originating entity).
func (ns *NotificationStore) Add(tenantID string, n Notification) bool {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()

	for _, existing := range ns.byTenant[tenantID] {
		if existing.ID == n.ID {
			return false
		}
	}
	ns.byTenant[tenantID] = append([]Notification{n}, ns.byTenant[tenantID]...)
	return true
}

// Get returns the tenant's notifications, newest first. Unknown tenants
// yield an empty slice.
func (ns *NotificationStore) Get(tenantID string) []Notification {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	list := ns.byTenant[tenantID]
	out := make([]Notification, len(list))
	copy(out, list)
	return out
}

// Clear empties the tenant's list.
func (ns *NotificationStore) Clear(tenantID string) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	delete(ns.byTenant, tenantID)
}

// ClearByType removes only notifications of the given type. When nothing
// matches the list is unchanged.
func (ns *NotificationStore) ClearByType(tenantID string, t NotificationType) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	list := ns.byTenant[tenantID]
	kept := list[:0:0]
	for _, n := range list {
		if n.Type != t {
			kept = append(kept, n)
		}
	}
	if len(kept) == len(list) {
		return
	}
	if len(kept) == 0 {
		delete(ns.byTenant, tenantID)
		return
	}
	ns.byTenant[tenantID] = kept
}

// ClearAll empties every tenant's list. Used on logout.
func (ns *NotificationStore) ClearAll() {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.byTenant = make(map[string][]Notification)
}
