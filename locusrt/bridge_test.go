// Copyright 2025 Leandro Veron
// SPDX-License-Identifier: Apache-2.0

package locusrt

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/leandroveron1110/locus-sync/locussync"
)

// rtServer is a minimal stand-in for the backend's realtime endpoint: it
// records join handshakes and lets tests push events to connected clients.
type rtServer struct {
	URL   string
	joins chan joinMessage

	mu    sync.Mutex
	conns []*websocket.Conn
	dials int32
}

func newRTServer(t *testing.T) *rtServer {
	t.Helper()
	rt := &rtServer{joins: make(chan joinMessage, 8)}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		atomic.AddInt32(&rt.dials, 1)

		var join joinMessage
		if err := wsjson.Read(r.Context(), ws, &join); err != nil {
			return
		}
		rt.joins <- join
		rt.mu.Lock()
		rt.conns = append(rt.conns, ws)
		rt.mu.Unlock()

		// Hold the connection until the client closes it
		for {
			var discard any
			if err := wsjson.Read(r.Context(), ws, &discard); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	rt.URL = "ws" + strings.TrimPrefix(server.URL, "http")
	return rt
}

func (rt *rtServer) push(t *testing.T, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	rt.mu.Lock()
	defer rt.mu.Unlock()
	require.NotEmpty(t, rt.conns, "no client connected")
	ws := rt.conns[len(rt.conns)-1]
	require.NoError(t, wsjson.Write(context.Background(), ws, Envelope{Event: event, Data: data}))
}

func (rt *rtServer) closeClients() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, ws := range rt.conns {
		_ = ws.Close(websocket.StatusGoingAway, "server restart")
	}
	rt.conns = nil
}

func newTestBridge(t *testing.T, rt *rtServer, validator *Validator) *Bridge {
	t.Helper()
	bridge, err := NewBridge(BridgeConfig{URL: rt.URL, Validator: validator, Logger: slog.Default()})
	require.NoError(t, err)
	t.Cleanup(bridge.Shutdown)
	return bridge
}

func TestBridgeJoinsTenantRoomOnConnect(t *testing.T) {
	rt := newRTServer(t)
	bridge := newTestBridge(t, rt, nil)

	conn, err := bridge.Acquire(context.Background(), "biz-1")
	require.NoError(t, err)
	require.True(t, conn.Connected())

	select {
	case join := <-rt.joins:
		require.Equal(t, joinMessage{Role: RoleBusiness, ID: "biz-1"}, join)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive join message")
	}
}

func TestBridgeAcquireIsIdempotent(t *testing.T) {
	rt := newRTServer(t)
	bridge := newTestBridge(t, rt, nil)

	first, err := bridge.Acquire(context.Background(), "biz-1")
	require.NoError(t, err)
	second, err := bridge.Acquire(context.Background(), "biz-1")
	require.NoError(t, err)

	require.Same(t, first, second)
	require.Equal(t, int32(1), atomic.LoadInt32(&rt.dials))
}

func TestBridgeReconnectsDroppedConnection(t *testing.T) {
	rt := newRTServer(t)
	bridge := newTestBridge(t, rt, nil)

	conn, err := bridge.Acquire(context.Background(), "biz-1")
	require.NoError(t, err)
	<-rt.joins

	rt.closeClients()
	require.Eventually(t, func() bool { return !conn.Connected() },
		2*time.Second, 10*time.Millisecond)

	again, err := bridge.Acquire(context.Background(), "biz-1")
	require.NoError(t, err)
	require.Same(t, conn, again, "reconnect must reuse the Conn and its listeners")
	require.True(t, again.Connected())
	require.Equal(t, int32(2), atomic.LoadInt32(&rt.dials))
}

func TestOrderFeedRoutesEventsIntoStores(t *testing.T) {
	rt := newRTServer(t)
	bridge := newTestBridge(t, rt, nil)

	orders := locussync.NewStore[locussync.Order](nil)
	notifications := locussync.NewNotificationStore()
	feed, err := NewOrderFeed(orders, notifications)
	require.NoError(t, err)

	conn, err := bridge.Acquire(context.Background(), "biz-1")
	require.NoError(t, err)
	<-rt.joins
	detach := feed.Attach(conn)
	defer detach()

	ev := NewOrderEvent{
		OrderID:      "o1",
		CustomerName: "Marta",
		Total:        1250.50,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	rt.push(t, EventNewOrder, ev)

	require.Eventually(t, func() bool { return orders.Len("biz-1") == 1 },
		2*time.Second, 10*time.Millisecond)

	got, ok := orders.Get("biz-1", "o1")
	require.True(t, ok)
	require.Equal(t, "Marta", got.CustomerName)
	require.Equal(t, locussync.OrderStatusPending, got.Status)
	require.Equal(t, "biz-1", got.BusinessID)

	list := notifications.Get("biz-1")
	require.Len(t, list, 1)
	require.Equal(t, "o1", list[0].ID)
	require.Equal(t, locussync.NotificationNewOrder, list[0].Type)

	// Duplicate delivery is absorbed by both stores
	rt.push(t, EventNewOrder, ev)
	rt.push(t, EventNewOrder, NewOrderEvent{OrderID: "o2", CustomerName: "Luis", CreatedAt: ev.CreatedAt})

	require.Eventually(t, func() bool { return orders.Len("biz-1") == 2 },
		2*time.Second, 10*time.Millisecond)
	require.Len(t, notifications.Get("biz-1"), 2)
}

func TestConnListenerDetach(t *testing.T) {
	rt := newRTServer(t)
	bridge := newTestBridge(t, rt, nil)

	conn, err := bridge.Acquire(context.Background(), "biz-1")
	require.NoError(t, err)
	<-rt.joins

	var detached, kept int32
	off := conn.On(EventNewOrder, func(json.RawMessage) { atomic.AddInt32(&detached, 1) })
	conn.On(EventNewOrder, func(json.RawMessage) { atomic.AddInt32(&kept, 1) })
	off()

	rt.push(t, EventNewOrder, NewOrderEvent{OrderID: "o1"})

	require.Eventually(t, func() bool { return atomic.LoadInt32(&kept) == 1 },
		2*time.Second, 10*time.Millisecond)
	require.Equal(t, int32(0), atomic.LoadInt32(&detached))
}

func TestBridgeDisconnectAndShutdown(t *testing.T) {
	rt := newRTServer(t)
	bridge := newTestBridge(t, rt, nil)

	conn1, err := bridge.Acquire(context.Background(), "biz-1")
	require.NoError(t, err)
	conn2, err := bridge.Acquire(context.Background(), "biz-2")
	require.NoError(t, err)

	bridge.Disconnect("biz-1")
	require.Eventually(t, func() bool { return !conn1.Connected() },
		2*time.Second, 10*time.Millisecond)
	require.True(t, conn2.Connected())

	// Unknown tenant: no-op
	bridge.Disconnect("biz-9")

	bridge.Shutdown()
	require.Eventually(t, func() bool { return !conn2.Connected() },
		2*time.Second, 10*time.Millisecond)

	_, err = bridge.Acquire(context.Background(), "biz-3")
	require.ErrorIs(t, err, ErrBridgeClosed)
}

func TestConnEmit(t *testing.T) {
	rt := newRTServer(t)
	bridge := newTestBridge(t, rt, nil)

	conn, err := bridge.Acquire(context.Background(), "biz-1")
	require.NoError(t, err)
	<-rt.joins

	require.NoError(t, conn.Emit(context.Background(), "order_seen", map[string]string{"orderId": "o1"}))
}

func TestStrictModeDropsInvalidPayloads(t *testing.T) {
	rt := newRTServer(t)
	validator, err := NewValidator()
	require.NoError(t, err)
	bridge := newTestBridge(t, rt, validator)

	orders := locussync.NewStore[locussync.Order](nil)
	notifications := locussync.NewNotificationStore()
	feed, err := NewOrderFeed(orders, notifications)
	require.NoError(t, err)

	conn, err := bridge.Acquire(context.Background(), "biz-1")
	require.NoError(t, err)
	<-rt.joins
	defer feed.Attach(conn)()

	// Missing required fields: dropped before dispatch
	rt.push(t, EventNewOrder, map[string]any{"customerName": "Marta"})
	// Valid event still flows
	rt.push(t, EventNewOrder, NewOrderEvent{OrderID: "o1", CustomerName: "Marta", CreatedAt: time.Now()})

	require.Eventually(t, func() bool { return orders.Len("biz-1") == 1 },
		2*time.Second, 10*time.Millisecond)
	_, ok := orders.Get("biz-1", "o1")
	require.True(t, ok)
}
