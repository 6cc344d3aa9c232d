package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/repository"
)

// Hub manages all active WebSocket clients and routes messages. It is
// injected wherever fan-out is needed; nothing reaches it through globals.
type Hub struct {
	// clients maps userID → client. One connection per user; a new
	// connection replaces the old one. Guarded by mu: the Run loop
	// mutates it while BroadcastToUser reads from request goroutines.
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMsg
	kick       chan uuid.UUID

	convRepo repository.ConversationRepository
	relRepo  repository.RelationshipRepository
	calls    *callRegistry
	pusher   CallPusher
}

// CallPusher is the push hook for ring events, satisfied by the push service.
type CallPusher interface {
	IncomingCall(ctx context.Context, conversationID, callerID uuid.UUID, kind string)
}

type broadcastMsg struct {
	conversationID uuid.UUID
	data           []byte
	excludeID      *uuid.UUID // optional: skip this user (e.g. sender)
}

func NewHub(convRepo repository.ConversationRepository, relRepo repository.RelationshipRepository) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMsg, 256),
		kick:       make(chan uuid.UUID),
		convRepo:   convRepo,
		relRepo:    relRepo,
		calls:      newCallRegistry(),
	}
}

// SetPusher wires the push hook used when ringing offline members.
func (h *Hub) SetPusher(p CallPusher) {
	h.pusher = p
}

// Run starts the Hub's main event loop. Call this in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[client.userID]; ok {
				h.drop(old)
			}
			h.clients[client.userID] = client
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("ws hub: user %s connected (%d total)", client.userID, total)

		case client := <-h.unregister:
			h.mu.Lock()
			if cur, ok := h.clients[client.userID]; ok && cur == client {
				delete(h.clients, client.userID)
				h.drop(client)
				log.Printf("ws hub: user %s disconnected (%d total)", client.userID, len(h.clients))
			}
			h.mu.Unlock()

		case userID := <-h.kick:
			h.mu.Lock()
			if client, ok := h.clients[userID]; ok {
				delete(h.clients, userID)
				h.drop(client)
				log.Printf("ws hub: user %s kicked", userID)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for _, client := range h.clients {
				if msg.excludeID != nil && client.userID == *msg.excludeID {
					continue
				}
				if !client.InRoom(msg.conversationID) {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					// Client buffer full - disconnect
					delete(h.clients, client.userID)
					h.drop(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop closes the client's channels. Callers must hold mu for writing so a
// concurrent BroadcastToUser cannot send on the closed channel.
func (h *Hub) drop(client *Client) {
	close(client.send)
	close(client.done)
}

// BroadcastToRoom sends an event to every client joined to the conversation.
func (h *Hub) BroadcastToRoom(conversationID uuid.UUID, event *Event, excludeUserID *uuid.UUID) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("ws hub: marshal error: %v", err)
		return
	}
	h.broadcast <- &broadcastMsg{
		conversationID: conversationID,
		data:           data,
		excludeID:      excludeUserID,
	}
}

// BroadcastToUser sends an event directly to a specific user, joined or not.
func (h *Hub) BroadcastToUser(userID uuid.UUID, event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if client, ok := h.clients[userID]; ok {
		select {
		case client.send <- data:
		default:
		}
	}
}

// Disconnect kicks the user's connection, if any.
func (h *Hub) Disconnect(userID uuid.UUID) {
	h.kick <- userID
}
