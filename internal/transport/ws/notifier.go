package ws

import (
	"log"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
)

// HubNotifier implements service.Notifier using the WebSocket Hub.
type HubNotifier struct {
	hub *Hub
}

func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) MessageNew(msg *domain.Message) {
	evt, err := NewEvent(EventTypeMessageNew, &msg.ConversationID, MessagePayload{Message: *msg})
	if err != nil {
		log.Printf("ws notifier: marshal error: %v", err)
		return
	}
	n.hub.BroadcastToRoom(msg.ConversationID, evt, nil)
}

func (n *HubNotifier) MessageUpdated(msg *domain.Message) {
	evt, err := NewEvent(EventTypeMessageUpdated, &msg.ConversationID, MessagePayload{Message: *msg})
	if err != nil {
		log.Printf("ws notifier: marshal error: %v", err)
		return
	}
	n.hub.BroadcastToRoom(msg.ConversationID, evt, nil)
}

func (n *HubNotifier) MessageDeleted(conversationID, messageID uuid.UUID) {
	evt, err := NewEvent(EventTypeMessageDeleted, &conversationID, MessageDeletedPayload{ID: messageID})
	if err != nil {
		log.Printf("ws notifier: marshal error: %v", err)
		return
	}
	n.hub.BroadcastToRoom(conversationID, evt, nil)
}

func (n *HubNotifier) ConversationDeleted(conversationID uuid.UUID) {
	evt, err := NewEvent(EventTypeConversationDeleted, &conversationID, nil)
	if err != nil {
		return
	}
	n.hub.BroadcastToRoom(conversationID, evt, nil)
}

func (n *HubNotifier) InvitesChanged(userID uuid.UUID, kind string) {
	evt, err := NewEvent(EventTypeInvitesChanged, nil, InvitesChangedPayload{Kind: kind})
	if err != nil {
		return
	}
	n.hub.BroadcastToUser(userID, evt)
}

func (n *HubNotifier) FriendsChanged(userID uuid.UUID) {
	evt, err := NewEvent(EventTypeFriendsChanged, nil, nil)
	if err != nil {
		return
	}
	n.hub.BroadcastToUser(userID, evt)
}

// ForceLogout tells the client to drop its session, then severs the socket
// so a sanctioned account goes silent immediately.
func (n *HubNotifier) ForceLogout(userID uuid.UUID, reason, message string) {
	evt, err := NewEvent(EventTypeForceLogout, nil, ForceLogoutPayload{Reason: reason, Message: message})
	if err == nil {
		n.hub.BroadcastToUser(userID, evt)
	}
	n.hub.Disconnect(userID)
}
