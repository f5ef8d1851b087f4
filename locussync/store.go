// Copyright 2025 Leandro Veron
// SPDX-License-Identifier: Apache-2.0

package locussync

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Entity is any record that can be held in a Store. Every entity must carry
// a stable unique identifier; merges are keyed on it.
type Entity interface {
	EntityID() string
}

// Ordering controls where newly seen entities land inside a partition.
type Ordering int

const (
	// NewestFirst prepends entities not seen before (live collections
	// such as orders, rendered most-recent-first).
	NewestFirst Ordering = iota
	// InsertionOrder appends entities not seen before (catalog
	// collections such as images).
	InsertionOrder
)

// ErrUnknownEntity is returned by Update in strict mode when the target id
// is not present in the partition.
var ErrUnknownEntity = errors.New("unknown entity")

// StoreConfig holds configuration for a Store.
type StoreConfig struct {
	Ordering Ordering
	// StrictUnknownUpdates makes Update return ErrUnknownEntity instead of
	// silently dropping an update for an id that is not in the partition.
	// The forgiving default matches production behavior, where a field
	// update can race ahead of the sync that owns the entity.
	StrictUnknownUpdates bool
}

// DefaultStoreConfig returns the configuration used for live collections.
func DefaultStoreConfig() *StoreConfig {
	return &StoreConfig{Ordering: NewestFirst}
}

// Store holds, per tenant (business id), an ordered unique-by-id collection
// of entities plus the sync cursor last reported by the server. Partitions
// are created lazily on first write and live until Reset.
//
// All operations are safe for concurrent use; each mutation is atomic with
// respect to a single partition.
type Store[T Entity] struct {
	mu         sync.RWMutex
	config     StoreConfig
	partitions map[string]*partition[T]
}

// partition is an insertion-ordered map: order tracks ids, byID the current
// value per id. An id appears in order exactly once.
type partition[T Entity] struct {
	order        []string
	byID         map[string]T
	lastSyncTime string
	hasCursor    bool
}

// NewStore creates a Store. A nil config selects DefaultStoreConfig.
func NewStore[T Entity](config *StoreConfig) *Store[T] {
	if config == nil {
		config = DefaultStoreConfig()
	}
	return &Store[T]{
		config:     *config,
		partitions: make(map[string]*partition[T]),
	}
}

func (s *Store[T]) partitionFor(tenantID string) *partition[T] {
	p := s.partitions[tenantID]
	if p == nil {
		p = &partition[T]{byID: make(map[string]T)}
		s.partitions[tenantID] = p
	}
	return p
}

// Items returns the partition's entities in collection order. Unknown
// tenants yield an empty slice, never an error.
func (s *Store[T]) Items(tenantID string) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := s.partitions[tenantID]
	if p == nil {
		return nil
	}
	items := make([]T, 0, len(p.order))
	for _, id := range p.order {
		items = append(items, p.byID[id])
	}
	return items
}

// Get returns a single entity by id.
func (s *Store[T]) Get(tenantID, id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var zero T
	p := s.partitions[tenantID]
	if p == nil {
		return zero, false
	}
	e, ok := p.byID[id]
	if !ok {
		return zero, false
	}
	return e, true
}

// Len returns the number of entities held for a tenant.
func (s *Store[T]) Len(tenantID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := s.partitions[tenantID]
	if p == nil {
		return 0
	}
	return len(p.order)
}

// Tenants returns the ids of all known partitions, sorted.
func (s *Store[T]) Tenants() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.partitions))
	for id := range s.partitions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LastSyncTime returns the tenant's sync cursor. ok is false when no sync
// has completed for the tenant yet.
func (s *Store[T]) LastSyncTime(tenantID string) (cursor string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := s.partitions[tenantID]
	if p == nil || !p.hasCursor {
		return "", false
	}
	return p.lastSyncTime, true
}

// SetSynced merges a server delta into the partition and replaces the sync
// cursor with the server-reported latestTimestamp. The cursor is replaced
// even when items is empty, so an empty delta still advances the window.
//
// Merge semantics: an id already present is overwritten in place and keeps
// its position; ids not seen before are placed per the store's Ordering,
// preserving their relative order within the delta. Applying the same delta
// twice yields the same partition state.
func (s *Store[T]) SetSynced(tenantID string, items []T, latestTimestamp string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.partitionFor(tenantID)
	var fresh []string
	for _, item := range items {
		id := item.EntityID()
		// Covers duplicate ids within one delta too: the second
		// occurrence finds the first already present and overwrites it.
		if _, exists := p.byID[id]; exists {
			p.byID[id] = item
			continue
		}
		p.byID[id] = item
		fresh = append(fresh, id)
	}
	if len(fresh) > 0 {
		if s.config.Ordering == NewestFirst {
			p.order = append(fresh, p.order...)
		} else {
			p.order = append(p.order, fresh...)
		}
	}
	p.lastSyncTime = latestTimestamp
	p.hasCursor = true
}

// AddOne inserts or overwrites a single entity, used by the realtime push
// path. An existing id is overwritten in place; a new id is placed per the
// store's Ordering. The sync cursor is not touched.
func (s *Store[T]) AddOne(tenantID string, entity T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.partitionFor(tenantID)
	id := entity.EntityID()
	if _, exists := p.byID[id]; exists {
		p.byID[id] = entity
		return
	}
	p.byID[id] = entity
	if s.config.Ordering == NewestFirst {
		p.order = append([]string{id}, p.order...)
	} else {
		p.order = append(p.order, id)
	}
}

// Update applies mutate to the entity with the given id. A missing id is a
// no-op returning nil (a late event referencing an entity the owning sync
// has not delivered yet), unless StrictUnknownUpdates is set.
func (s *Store[T]) Update(tenantID, id string, mutate func(T) T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.partitions[tenantID]
	if p == nil {
		return s.unknownEntity(tenantID, id)
	}
	current, ok := p.byID[id]
	if !ok {
		return s.unknownEntity(tenantID, id)
	}
	p.byID[id] = mutate(current)
	return nil
}

func (s *Store[T]) unknownEntity(tenantID, id string) error {
	if s.config.StrictUnknownUpdates {
		return fmt.Errorf("update %s in tenant %s: %w", id, tenantID, ErrUnknownEntity)
	}
	return nil
}

// Snapshot returns a copy of the partition's items and cursor for
// persistence. ok is false when the tenant is unknown.
func (s *Store[T]) Snapshot(tenantID string) (items []T, cursor string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := s.partitions[tenantID]
	if p == nil {
		return nil, "", false
	}
	items = make([]T, 0, len(p.order))
	for _, id := range p.order {
		items = append(items, p.byID[id])
	}
	return items, p.lastSyncTime, true
}

// Restore replaces a partition wholesale with previously snapshotted state.
// Duplicate ids keep their first occurrence.
func (s *Store[T]) Restore(tenantID string, items []T, cursor string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := &partition[T]{byID: make(map[string]T, len(items))}
	for _, item := range items {
		id := item.EntityID()
		if _, exists := p.byID[id]; exists {
			continue
		}
		p.byID[id] = item
		p.order = append(p.order, id)
	}
	if cursor != "" {
		p.lastSyncTime = cursor
		p.hasCursor = true
	}
	s.partitions[tenantID] = p
}

// Reset clears every partition and cursor. Used on logout.
func (s *Store[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partitions = make(map[string]*partition[T])
}
