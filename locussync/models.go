// Copyright 2025 Leandro Veron
// SPDX-License-Identifier: Apache-2.0

package locussync

import (
	"context"
	"time"
)

// JSON models shared with the backend. The sync layer itself only requires
// an id on every entity and items/latestTimestamp on every delta; the
// concrete business records below are what the Locus backend serves today.

// Delta is one incremental fetch result: the entities changed since the
// requested cursor plus the new cursor value. LatestTimestamp is opaque to
// the client and must be present even when Items is empty.
type Delta[T Entity] struct {
	Items           []T
	LatestTimestamp string
}

// FetchRequest describes one delta fetch.
//
// Since is the cursor echoed back to the server; empty means "fetch
// everything". When Query is set, Since is deliberately left empty: deltas
// are defined relative to all items, not to items matching a query, so a
// query-scoped incremental fetch would undercount. The watermark returned
// by a query fetch is still merged so the next plain sync resumes
// incrementally from it.
type FetchRequest struct {
	Since string
	Query string
}

// FetchFunc produces a delta for one tenant. Implementations must return a
// latest timestamp even for empty results.
type FetchFunc[T Entity] func(ctx context.Context, req FetchRequest) (*Delta[T], error)

// DeltaResponse is the wire form of a delta fetch response.
type DeltaResponse[T Entity] struct {
	Items           []T    `json:"items"`
	LatestTimestamp string `json:"latestTimestamp"`
}

// Order statuses as reported by the backend.
const (
	OrderStatusPending   = "PENDING"
	OrderStatusConfirmed = "CONFIRMED"
	OrderStatusDelivered = "DELIVERED"
	OrderStatusCancelled = "CANCELLED"
)

// Order is a customer order belonging to one business.
type Order struct {
	ID           string    `json:"id"`
	BusinessID   string    `json:"businessId"`
	CustomerName string    `json:"customerName"`
	Status       string    `json:"status"`
	Total        float64   `json:"total"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty"`
}

// EntityID implements Entity.
func (o Order) EntityID() string { return o.ID }

// CatalogImage is an uploaded image referenced by catalog entries.
type CatalogImage struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"businessId"`
	URL        string    `json:"url"`
	UpdatedAt  time.Time `json:"updatedAt,omitempty"`
}

// EntityID implements Entity.
func (i CatalogImage) EntityID() string { return i.ID }
