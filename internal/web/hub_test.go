package web

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	// Mock client 1
	client1 := &Client{
		hub:  hub,
		send: make(chan []byte, 256),
	}
	hub.register <- client1

	// Mock client 2
	client2 := &Client{
		hub:  hub,
		send: make(chan []byte, 256),
	}
	hub.register <- client2

	// Wait for registration
	time.Sleep(10 * time.Millisecond)

	// Broadcast message
	msg := WSEvent{Type: EventArchiveProgress, Payload: map[string]int{"progress": 10}}
	msgBytes, _ := json.Marshal(msg)
	hub.broadcast <- msgBytes

	// Verify clients received message
	select {
	case received := <-client1.send:
		assert.Equal(t, msgBytes, received)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Client 1 did not receive message")
	}

	select {
	case received := <-client2.send:
		assert.Equal(t, msgBytes, received)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Client 2 did not receive message")
	}

	// Unregister client 1
	hub.unregister <- client1
	time.Sleep(10 * time.Millisecond)

	// Broadcast another message
	msg2 := []byte("second message")
	hub.broadcast <- msg2

	// Client 1 should NOT receive it (channel closed or nothing sent)
	select {
	case msg, ok := <-client1.send:
		if ok {
			t.Fatalf("Client 1 received message after unregister: %s", msg)
		}
		// if !ok, channel is closed, which is correct behavior for unregistered client
	case <-time.After(50 * time.Millisecond):
		// Success
	}

	// Client 2 SHOULD receive it
	select {
	case received := <-client2.send:
		assert.Equal(t, msg2, received)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Client 2 did not receive second message")
	}
}

func TestHub_BroadcastEvent(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := &Client{hub: hub, send: make(chan []byte, 1)}
	hub.register <- client

	hub.BroadcastEvent(EventQRCode, QRCodePayload{URL: "tg://login?token=abc"})

	select {
	case received := <-client.send:
		assert.JSONEq(t, `{"type":"tg_qr","payload":{"url":"tg://login?token=abc"}}`, string(received))
	case <-time.After(time.Second):
		t.Fatal("client did not receive event")
	}
}

func TestHub_BroadcastEvent_Unmarshalable(t *testing.T) {
	hub := NewHub()

	hub.BroadcastEvent(EventError, make(chan int))

	assert.Empty(t, hub.broadcast)
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	slow := &Client{hub: hub, send: make(chan []byte, 1)}
	slow.send <- []byte("pending") // buffer full
	hub.register <- slow
	fast := &Client{hub: hub, send: make(chan []byte, 2)}
	hub.register <- fast

	hub.Broadcast([]byte("one"))
	hub.Broadcast([]byte("two"))
	// fast sees "two" only after the hub is done with "one"
	assert.Equal(t, []byte("one"), <-fast.send)
	assert.Equal(t, []byte("two"), <-fast.send)

	assert.Equal(t, []byte("pending"), <-slow.send)
	select {
	case _, ok := <-slow.send:
		assert.False(t, ok, "slow client channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("slow client was not dropped")
	}
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	hub := NewHub() // Run not started, queue fills up

	done := make(chan struct{})
	go func() {
		for i := 0; i < sendBuffer+10; i++ {
			hub.Broadcast([]byte("x"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a full queue")
	}
	assert.Len(t, hub.broadcast, sendBuffer)
}
