package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	sendBufSize  = 256
)

// Client represents a single WebSocket connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID uuid.UUID

	// joinedRooms tracks which conversations this client listens to.
	joinedRooms map[uuid.UUID]struct{}
	mu          sync.RWMutex

	send chan []byte
	done chan struct{}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		userID:      userID,
		joinedRooms: make(map[uuid.UUID]struct{}),
		send:        make(chan []byte, sendBufSize),
		done:        make(chan struct{}),
	}
}

// InRoom checks if this client has joined the conversation.
func (c *Client) InRoom(conversationID uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.joinedRooms[conversationID]
	return ok
}

func (c *Client) join(conversationID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joinedRooms[conversationID] = struct{}{}
}

func (c *Client) leave(conversationID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.joinedRooms, conversationID)
}

// ReadPump reads messages from the WebSocket and routes them to the Hub.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		var event Event
		err := wsjson.Read(context.Background(), c.conn, &event)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				log.Printf("ws: client %s disconnected", c.userID)
			} else {
				log.Printf("ws: read error from %s: %v", c.userID, err)
			}
			return
		}

		c.handleEvent(&event)
	}
}

// WritePump writes messages from the send channel to the WebSocket.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				log.Printf("ws: write error to %s: %v", c.userID, err)
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				log.Printf("ws: ping error to %s: %v", c.userID, err)
				return
			}

		case <-c.done:
			return
		}
	}
}

// handleEvent routes an incoming client event.
func (c *Client) handleEvent(event *Event) {
	switch event.Type {
	case EventTypeRoomJoin:
		var p RoomPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid room:join payload")
			return
		}
		member, err := c.hub.convRepo.GetMember(context.Background(), p.ConversationID, c.userID)
		if err != nil || member == nil {
			c.sendError("NOT_IN_CONVERSATION", "you are not a member of this conversation")
			return
		}
		c.join(p.ConversationID)
		c.hub.replayOffers(c, p.ConversationID)

	case EventTypeRoomLeave:
		var p RoomPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid room:leave payload")
			return
		}
		c.leave(p.ConversationID)

	case EventTypeCallRing:
		if event.ConversationID == nil {
			c.sendError("INVALID_PAYLOAD", "conversation_id required for call events")
			return
		}
		var p CallRingPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid call:ring payload")
			return
		}
		c.hub.handleRing(c, *event.ConversationID, p)

	case EventTypeCallOffer, EventTypeCallAnswer, EventTypeCallICECandidate:
		if event.ConversationID == nil {
			c.sendError("INVALID_PAYLOAD", "conversation_id required for call events")
			return
		}
		var p CallSignalPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid call signal payload")
			return
		}
		c.hub.handleSignal(c, event.Type, *event.ConversationID, p)

	case EventTypeCallHangup:
		if event.ConversationID == nil {
			c.sendError("INVALID_PAYLOAD", "conversation_id required for call events")
			return
		}
		c.hub.handleHangup(c, *event.ConversationID)

	case EventTypePing:
		c.sendPong()

	default:
		c.sendError("UNKNOWN_EVENT", "unknown event type: "+event.Type)
	}
}

func (c *Client) sendPong() {
	data, _ := json.Marshal(Event{Type: EventTypePong})
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) sendError(code, message string) {
	evt, err := NewEvent(EventTypeError, nil, ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
