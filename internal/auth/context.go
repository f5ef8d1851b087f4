// Copyright 2025 Leandro Veron
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
)

type contextKey string

const businessIDKey contextKey = "business_id"

// SetBusinessID records which business a request serves. The syncer stamps
// this onto the fetch context so token providers and fetch implementations
// can select per-tenant credentials.
func SetBusinessID(ctx context.Context, businessID string) context.Context {
	return context.WithValue(ctx, businessIDKey, businessID)
}

// GetBusinessID retrieves the business ID from the context
func GetBusinessID(ctx context.Context) (string, bool) {
	businessID, ok := ctx.Value(businessIDKey).(string)
	return businessID, ok
}
