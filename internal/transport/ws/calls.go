package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
)

// cachedOffer is an SDP offer held for a member who was not connected when
// it was sent. Joining the room replays it so the callee can still answer.
type cachedOffer struct {
	from uuid.UUID
	to   uuid.UUID
	kind string
	sdp  json.RawMessage
}

// callRegistry tracks at most one active call per conversation.
type callRegistry struct {
	mu     sync.Mutex
	active map[uuid.UUID][]cachedOffer
}

func newCallRegistry() *callRegistry {
	return &callRegistry{active: make(map[uuid.UUID][]cachedOffer)}
}

func (r *callRegistry) cache(conversationID uuid.UUID, offer cachedOffer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Replace any earlier offer for the same pair.
	offers := r.active[conversationID]
	for i, o := range offers {
		if o.from == offer.from && o.to == offer.to {
			offers[i] = offer
			return
		}
	}
	r.active[conversationID] = append(offers, offer)
}

func (r *callRegistry) pendingFor(conversationID, userID uuid.UUID) []cachedOffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []cachedOffer
	for _, o := range r.active[conversationID] {
		if o.to == userID {
			out = append(out, o)
		}
	}
	return out
}

func (r *callRegistry) clear(conversationID uuid.UUID, userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	offers := r.active[conversationID]
	kept := offers[:0]
	for _, o := range offers {
		if o.from != userID && o.to != userID {
			kept = append(kept, o)
		}
	}
	if len(kept) == 0 {
		delete(r.active, conversationID)
		return
	}
	r.active[conversationID] = kept
}

// handleRing announces a new call to every member except the caller and
// anyone in a block relation with them. Offline members get a push.
func (h *Hub) handleRing(c *Client, conversationID uuid.UUID, p CallRingPayload) {
	ctx := context.Background()

	member, err := h.convRepo.GetMember(ctx, conversationID, c.userID)
	if err != nil || member == nil {
		c.sendError("NOT_IN_CONVERSATION", "you are not a member of this conversation")
		return
	}

	memberIDs, err := h.convRepo.ListMemberIDs(ctx, conversationID)
	if err != nil {
		log.Printf("ws calls: list members: %v", err)
		return
	}

	evt, err := NewEvent(EventTypeCallIncoming, &conversationID, CallIncomingPayload{
		CallerID: c.userID,
		Kind:     p.Kind,
	})
	if err != nil {
		return
	}

	for _, id := range memberIDs {
		if id == c.userID {
			continue
		}
		blocked, blockedBy, err := h.relRepo.Blocks(ctx, c.userID, id)
		if err != nil || blocked || blockedBy {
			continue
		}
		h.BroadcastToUser(id, evt)
	}

	if h.pusher != nil {
		h.pusher.IncomingCall(ctx, conversationID, c.userID, p.Kind)
	}
}

// handleSignal relays an offer, answer or ICE candidate to its addressee.
// Offers are additionally cached so a member who joins the room mid-ring
// still receives one.
func (h *Hub) handleSignal(c *Client, eventType string, conversationID uuid.UUID, p CallSignalPayload) {
	ctx := context.Background()

	member, err := h.convRepo.GetMember(ctx, conversationID, c.userID)
	if err != nil || member == nil {
		c.sendError("NOT_IN_CONVERSATION", "you are not a member of this conversation")
		return
	}

	blocked, blockedBy, err := h.relRepo.Blocks(ctx, c.userID, p.To)
	if err != nil {
		log.Printf("ws calls: block check: %v", err)
		return
	}
	if blocked || blockedBy {
		c.sendError("BLOCKED", "you cannot call this user")
		return
	}

	p.From = c.userID
	if eventType == EventTypeCallOffer {
		h.calls.cache(conversationID, cachedOffer{
			from: c.userID,
			to:   p.To,
			sdp:  p.SDP,
		})
	}

	evt, err := NewEvent(eventType, &conversationID, p)
	if err != nil {
		return
	}
	h.BroadcastToUser(p.To, evt)
}

// handleHangup drops the caller's cached offers and tells the room.
func (h *Hub) handleHangup(c *Client, conversationID uuid.UUID) {
	h.calls.clear(conversationID, c.userID)

	evt, err := NewEvent(EventTypeCallHangup, &conversationID, CallSignalPayload{From: c.userID})
	if err != nil {
		return
	}
	h.BroadcastToRoom(conversationID, evt, &c.userID)
}

// replayOffers delivers any offers addressed to the user that arrived
// before they joined the room.
func (h *Hub) replayOffers(c *Client, conversationID uuid.UUID) {
	for _, o := range h.calls.pendingFor(conversationID, c.userID) {
		evt, err := NewEvent(EventTypeCallOffer, &conversationID, CallSignalPayload{
			To:   o.to,
			From: o.from,
			SDP:  o.sdp,
		})
		if err != nil {
			continue
		}
		h.BroadcastToUser(c.userID, evt)
	}
}
