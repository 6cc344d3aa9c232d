package ws

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEvent(t *testing.T, eventType string) *Event {
	t.Helper()
	evt, err := NewEvent(eventType, nil, map[string]string{"reason": "test"})
	require.NoError(t, err)
	return evt
}

// waitConnected blocks until the hub loop has picked up the registration.
func waitConnected(t *testing.T, hub *Hub, userID uuid.UUID) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		hub.mu.RLock()
		_, ok := hub.clients[userID]
		hub.mu.RUnlock()
		if ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("client never registered")
}

func TestBroadcastToUser(t *testing.T) {
	hub := NewHub(nil, nil)
	go hub.Run()

	userID := uuid.New()
	client := NewClient(hub, nil, userID)
	hub.register <- client
	waitConnected(t, hub, userID)

	hub.BroadcastToUser(userID, mustEvent(t, EventTypeForceLogout))

	select {
	case data := <-client.send:
		assert.Contains(t, string(data), EventTypeForceLogout)
	case <-time.After(time.Second):
		t.Fatal("no event delivered to registered client")
	}

	// Unknown users are silently skipped.
	hub.BroadcastToUser(uuid.New(), mustEvent(t, EventTypeForceLogout))
}

// Connects and user-directed sends race against each other in production:
// registration runs on the hub loop while notifications arrive from request
// goroutines. Run with -race.
func TestBroadcastToUserConcurrentWithConnects(t *testing.T) {
	hub := NewHub(nil, nil)
	go hub.Run()

	const n = 200
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	evt := mustEvent(t, EventTypeFriendsChanged)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, id := range ids {
			hub.register <- NewClient(hub, nil, id)
		}
	}()
	go func() {
		defer wg.Done()
		for _, id := range ids {
			hub.BroadcastToUser(id, evt)
		}
	}()
	wg.Wait()
}

// A user reconnecting displaces the old client, which closes its send
// channel; a send racing the displacement must not panic.
func TestBroadcastToUserConcurrentWithReconnect(t *testing.T) {
	hub := NewHub(nil, nil)
	go hub.Run()

	userID := uuid.New()
	hub.register <- NewClient(hub, nil, userID)
	evt := mustEvent(t, EventTypeInvitesChanged)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			hub.register <- NewClient(hub, nil, userID)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			hub.BroadcastToUser(userID, evt)
		}
	}()
	wg.Wait()
}

func TestDisconnectKicksClient(t *testing.T) {
	hub := NewHub(nil, nil)
	go hub.Run()

	userID := uuid.New()
	client := NewClient(hub, nil, userID)
	hub.register <- client
	waitConnected(t, hub, userID)

	hub.Disconnect(userID)

	select {
	case <-client.done:
	case <-time.After(time.Second):
		t.Fatal("kicked client was not dropped")
	}
}
