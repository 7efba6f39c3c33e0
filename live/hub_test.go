package live

import (
	"encoding/json"
	"testing"
	"time"
)

func TestHubRegisterBroadcastUnregister(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	client := &Client{
		Product: "p1",
		Send:    make(chan []byte, 10),
	}

	hub.register <- client

	hub.StockChanged("p1", 7)

	select {
	case got := <-client.Send:
		var update stockUpdate
		if err := json.Unmarshal(got, &update); err != nil {
			t.Fatalf("unmarshal broadcast: %v", err)
		}
		if update.ProductID != "p1" || update.Remaining != 7 {
			t.Fatalf("unexpected update: %+v", update)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for stock update")
	}

	hub.unregister <- client
}

func TestDropAfterStopDoesNotBlock(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := &Client{Product: "p1", Send: make(chan []byte, 10)}
	hub.register <- client

	hub.Stop()

	// a client disconnecting during shutdown must not hang on unregister
	done := make(chan struct{})
	go func() {
		hub.drop(client)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("drop blocked after hub stop")
	}
}

func TestHubRoomsAreIsolated(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	c1 := &Client{Product: "p1", Send: make(chan []byte, 10)}
	c2 := &Client{Product: "p2", Send: make(chan []byte, 10)}
	hub.register <- c1
	hub.register <- c2

	hub.StockChanged("p1", 3)

	select {
	case <-c1.Send:
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for p1 update")
	}

	select {
	case msg := <-c2.Send:
		t.Fatalf("p2 subscriber received %s", msg)
	case <-time.After(100 * time.Millisecond):
	}
}
