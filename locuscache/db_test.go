// Copyright 2025 Leandro Veron
// SPDX-License-Identifier: Apache-2.0

package locuscache

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/leandroveron1110/locus-sync/locussync"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	raw, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })

	db, err := New(raw)
	require.NoError(t, err)
	return db
}

func TestInitializeDatabaseCreatesTables(t *testing.T) {
	raw, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer raw.Close()

	_, err = New(raw)
	require.NoError(t, err)

	expectedTables := []string{"_locus_client_info", "_locus_partition", "_locus_push_subs"}
	for _, table := range expectedTables {
		var count int
		err := raw.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err)
		require.Equal(t, 1, count, "Table %s should exist", table)
	}
}

func TestEnsureClientID(t *testing.T) {
	db := newTestDB(t)

	id1, err := db.EnsureClientID("user-1")
	require.NoError(t, err)
	require.NotEmpty(t, id1)

	// Second call returns the same id
	id2, err := db.EnsureClientID("user-1")
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	// Different user gets a different id
	id3, err := db.EnsureClientID("user-2")
	require.NoError(t, err)
	require.NotEqual(t, id1, id3)
}

func TestPartitionRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	orders := []locussync.Order{
		{ID: "o2", Status: locussync.OrderStatusConfirmed, CreatedAt: time.Unix(20, 0).UTC()},
		{ID: "o1", Status: locussync.OrderStatusPending, CreatedAt: time.Unix(10, 0).UTC()},
	}
	require.NoError(t, SavePartition(ctx, db, "biz-1", "orders", orders, "T5"))

	loaded, cursor, ok, err := LoadPartition[locussync.Order](ctx, db, "biz-1", "orders")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "T5", cursor)
	require.Equal(t, orders, loaded)

	// Overwrite replaces the snapshot
	require.NoError(t, SavePartition(ctx, db, "biz-1", "orders", orders[:1], "T6"))
	loaded, cursor, ok, err = LoadPartition[locussync.Order](ctx, db, "biz-1", "orders")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "T6", cursor)
	require.Len(t, loaded, 1)
}

func TestLoadPartitionUnknownTenant(t *testing.T) {
	db := newTestDB(t)

	_, _, ok, err := LoadPartition[locussync.Order](context.Background(), db, "biz-9", "orders")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSaveRestoreStore(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	store := locussync.NewStore[locussync.Order](nil)
	store.SetSynced("biz-1", []locussync.Order{{ID: "o1", Status: locussync.OrderStatusPending}}, "T1")
	store.SetSynced("biz-2", []locussync.Order{{ID: "o2", Status: locussync.OrderStatusConfirmed}}, "T2")
	require.NoError(t, SaveStore(ctx, db, "orders", store))

	restored := locussync.NewStore[locussync.Order](nil)
	require.NoError(t, RestoreStore(ctx, db, "orders", restored))

	require.Equal(t, store.Tenants(), restored.Tenants())
	require.Equal(t, store.Items("biz-1"), restored.Items("biz-1"))
	require.Equal(t, store.Items("biz-2"), restored.Items("biz-2"))
	cursor, ok := restored.LastSyncTime("biz-2")
	require.True(t, ok)
	require.Equal(t, "T2", cursor)
}

func TestSubscriptionMarker(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Nothing recorded yet: only the empty set matches
	match, err := db.SubscriptionsMatch(ctx, nil)
	require.NoError(t, err)
	require.True(t, match)
	match, err = db.SubscriptionsMatch(ctx, []string{"biz-1"})
	require.NoError(t, err)
	require.False(t, match)

	require.NoError(t, db.ReplaceSubscribedTenants(ctx, []string{"biz-2", "biz-1"}))

	recorded, err := db.SubscribedTenants(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"biz-1", "biz-2"}, recorded)

	// Order and duplicates do not matter for equality
	match, err = db.SubscriptionsMatch(ctx, []string{"biz-1", "biz-2", "biz-1"})
	require.NoError(t, err)
	require.True(t, match)

	// Any mismatch invalidates wholesale
	match, err = db.SubscriptionsMatch(ctx, []string{"biz-1", "biz-3"})
	require.NoError(t, err)
	require.False(t, match)

	require.NoError(t, db.ReplaceSubscribedTenants(ctx, []string{"biz-3"}))
	recorded, err = db.SubscribedTenants(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"biz-3"}, recorded)
}

func TestResetWipesPartitionsAndSubscriptionsButKeepsClientID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	clientID, err := db.EnsureClientID("user-1")
	require.NoError(t, err)
	require.NoError(t, SavePartition(ctx, db, "biz-1", "orders", []locussync.Order{{ID: "o1"}}, "T1"))
	require.NoError(t, db.ReplaceSubscribedTenants(ctx, []string{"biz-1"}))

	require.NoError(t, db.Reset(ctx))

	_, _, ok, err := LoadPartition[locussync.Order](ctx, db, "biz-1", "orders")
	require.NoError(t, err)
	require.False(t, ok)
	recorded, err := db.SubscribedTenants(ctx)
	require.NoError(t, err)
	require.Empty(t, recorded)

	again, err := db.EnsureClientID("user-1")
	require.NoError(t, err)
	require.Equal(t, clientID, again)
}
