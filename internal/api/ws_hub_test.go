package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atmx/synthetic-ledger/internal/api"
	"github.com/atmx/synthetic-ledger/internal/custody"
	"github.com/atmx/synthetic-ledger/internal/position"
	"github.com/atmx/synthetic-ledger/internal/store"
)

func dialHub(t *testing.T, hub *api.WSHub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func TestWSHub_StreamsLedgerEvents(t *testing.T) {
	hub := api.NewWSHub()
	go hub.Run()
	conn := dialHub(t, hub)

	mc := custody.NewMemoryCustodian("ledger")
	ctx := context.Background()
	mc.Mint(ctx, "alice", n(1000))
	mc.Approve(ctx, "alice", n(1000))
	ledger := position.NewLedger(store.NewMemoryStore(), mc, position.Options{
		Authorizer: position.AllowCallers("admin"),
		Publisher:  hub,
	})

	if _, err := ledger.Deposit(ctx, "alice", n(1000), n(500), true); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := ledger.SetSyntheticAssetPrice(ctx, "admin", n(1200)); err != nil {
		t.Fatalf("set price: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg api.WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "position_updated" || msg.Op != "deposit" || msg.Owner != "alice" {
		t.Errorf("unexpected first message %+v", msg)
	}
	if msg.CollateralAmount != "1000" || msg.PositionSize != "500" || !msg.IsLong {
		t.Errorf("unexpected position in message %+v", msg)
	}

	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "price_updated" || msg.Price != "1200" {
		t.Errorf("unexpected price message %+v", msg)
	}
}

func TestWSHub_PublishWithoutClientsDoesNotBlock(t *testing.T) {
	hub := api.NewWSHub()

	// No Run loop: the broadcast buffer fills and further messages drop.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Broadcast(api.WSMessage{Type: "price_updated", Op: "set_price"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked with a full buffer")
	}
}
