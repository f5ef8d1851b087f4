// Copyright 2025 Leandro Veron
// SPDX-License-Identifier: Apache-2.0

package locussync

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/leandroveron1110/locus-sync/internal/auth"
)

// SyncerConfig holds configuration for a Syncer.
type SyncerConfig struct {
	BackoffMin time.Duration // 1s
	BackoffMax time.Duration // 60s
}

// DefaultSyncerConfig returns the default backoff configuration.
func DefaultSyncerConfig() *SyncerConfig {
	return &SyncerConfig{
		BackoffMin: 1 * time.Second,
		BackoffMax: 60 * time.Second,
	}
}

// Syncer pulls incremental deltas for one tenant and merges them into a
// Store. At most one sync is in flight at a time; overlapping invocations
// are no-ops, which prevents duplicate network calls and out-of-order
// merges from concurrent callers.
type Syncer[T Entity] struct {
	// Alerts receives user-facing messages for recoverable failures.
	// Defaults to a logging sink.
	Alerts Alerter
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	store    *Store[T]
	tenantID string
	fetch    FetchFunc[T]
	config   *SyncerConfig

	inFlight int32
}

// NewSyncer creates a Syncer for one tenant. A nil config selects
// DefaultSyncerConfig.
func NewSyncer[T Entity](store *Store[T], tenantID string, fetch FetchFunc[T], config *SyncerConfig) (*Syncer[T], error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID must be provided")
	}
	if fetch == nil {
		return nil, fmt.Errorf("fetch function cannot be nil")
	}
	if config == nil {
		config = DefaultSyncerConfig()
	}
	logger := slog.Default()
	return &Syncer[T]{
		Alerts:   LogAlerter(logger),
		Logger:   logger,
		store:    store,
		tenantID: tenantID,
		fetch:    fetch,
		config:   config,
	}, nil
}

// Sync fetches the delta since the tenant's current cursor and merges it.
// When a sync is already outstanding the call returns nil immediately. On
// fetch failure the store is left untouched, the error is surfaced on the
// alert channel, and the call is safe to retry.
func (s *Syncer[T]) Sync(ctx context.Context) error {
	since, _ := s.store.LastSyncTime(s.tenantID)
	return s.run(ctx, FetchRequest{Since: since})
}

// SyncQuery performs a full-text search fetch. The cursor is suppressed
// (see FetchRequest), forcing the server to return the full matching set;
// the returned watermark is still merged in.
func (s *Syncer[T]) SyncQuery(ctx context.Context, query string) error {
	return s.run(ctx, FetchRequest{Query: query})
}

func (s *Syncer[T]) run(ctx context.Context, req FetchRequest) error {
	if !atomic.CompareAndSwapInt32(&s.inFlight, 0, 1) {
		s.Logger.Debug("sync already in flight, skipping", "tenant", s.tenantID)
		return nil
	}
	defer atomic.StoreInt32(&s.inFlight, 0)

	// Token providers and fetch implementations can read the tenant this
	// fetch serves from the context.
	ctx = auth.SetBusinessID(ctx, s.tenantID)
	delta, err := s.fetch(ctx, req)
	if err == nil && delta == nil {
		err = fmt.Errorf("fetch returned no delta")
	}
	if err != nil {
		s.Logger.Warn("sync failed", "tenant", s.tenantID, "error", err)
		s.Alerts.AddAlert(Alert{
			Message: fmt.Sprintf("No pudimos actualizar los datos de %s: %v", s.tenantID, err),
			Type:    AlertError,
		})
		return fmt.Errorf("fetch delta for %s: %w", s.tenantID, err)
	}

	s.store.SetSynced(s.tenantID, delta.Items, delta.LatestTimestamp)
	s.Logger.Debug("sync merged", "tenant", s.tenantID,
		"items", len(delta.Items), "cursor", delta.LatestTimestamp)
	return nil
}

// Run syncs immediately and then keeps the partition fresh until the
// context is cancelled, waiting interval between successful rounds and
// backing off exponentially after failures.
func (s *Syncer[T]) Run(ctx context.Context, interval time.Duration) {
	backoff := s.config.BackoffMin
	for {
		err := s.Sync(ctx)
		wait := interval
		if err != nil {
			wait = backoff
			backoff *= 2
			if backoff > s.config.BackoffMax {
				backoff = s.config.BackoffMax
			}
		} else {
			backoff = s.config.BackoffMin
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
