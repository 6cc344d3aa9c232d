// Package push delivers best-effort push notifications to registered
// devices. Delivery failures are logged and never surfaced to callers.
package push

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/repository"
	"go.uber.org/zap"
)

// Notification is one rendered push payload addressed to device tokens.
type Notification struct {
	Tokens []string          `json:"tokens"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

// Sender is the delivery backend. Production wires a provider gateway;
// tests and local runs use LogSender.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// LogSender writes notifications to the log instead of delivering them.
type LogSender struct {
	Log *zap.SugaredLogger
}

func (s *LogSender) Send(_ context.Context, n Notification) error {
	s.Log.Infow("push notification",
		"tokens", len(n.Tokens), "title", n.Title, "body", n.Body, "data", n.Data)
	return nil
}

// Service resolves recipients and per-user toggles, then hands payloads to
// the Sender. It implements the pusher the services expect.
type Service struct {
	sender     Sender
	deviceRepo repository.DeviceRepository
	convRepo   repository.ConversationRepository
	userRepo   repository.UserRepository
	log        *zap.SugaredLogger
}

func NewService(
	sender Sender,
	deviceRepo repository.DeviceRepository,
	convRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
	log *zap.SugaredLogger,
) *Service {
	return &Service{
		sender:     sender,
		deviceRepo: deviceRepo,
		convRepo:   convRepo,
		userRepo:   userRepo,
		log:        log,
	}
}

// ChatMessage pushes a new-message preview to every member of the
// conversation except the sender, honoring each recipient's dm or group
// toggle.
func (s *Service) ChatMessage(ctx context.Context, conversationID, senderID uuid.UUID, preview string) {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil || conv == nil {
		s.logErr("resolving conversation", err, "conversation_id", conversationID)
		return
	}

	memberIDs, err := s.convRepo.ListMemberIDs(ctx, conversationID)
	if err != nil {
		s.logErr("listing members", err, "conversation_id", conversationID)
		return
	}
	recipients := exclude(memberIDs, senderID)
	if len(recipients) == 0 {
		return
	}

	kind := "dm"
	if conv.IsGroup() {
		kind = "group"
	}
	tokens, err := s.deviceRepo.ActiveTokens(ctx, recipients, kind)
	if err != nil {
		s.logErr("resolving push tokens", err, "conversation_id", conversationID)
		return
	}
	if len(tokens) == 0 {
		return
	}

	title, err := s.conversationTitle(ctx, conv, senderID)
	if err != nil {
		s.logErr("resolving conversation title", err, "conversation_id", conversationID)
		return
	}

	s.deliver(ctx, Notification{
		Tokens: tokens,
		Title:  title,
		Body:   preview,
		Data: map[string]string{
			"type":            "chat_message",
			"conversation_id": conversationID.String(),
		},
	})
}

// IncomingCall pushes a ringing notice to every member except the caller.
func (s *Service) IncomingCall(ctx context.Context, conversationID, callerID uuid.UUID, kind string) {
	memberIDs, err := s.convRepo.ListMemberIDs(ctx, conversationID)
	if err != nil {
		s.logErr("listing members", err, "conversation_id", conversationID)
		return
	}
	recipients := exclude(memberIDs, callerID)
	if len(recipients) == 0 {
		return
	}

	tokens, err := s.deviceRepo.ActiveTokens(ctx, recipients, "call")
	if err != nil {
		s.logErr("resolving push tokens", err, "conversation_id", conversationID)
		return
	}
	if len(tokens) == 0 {
		return
	}

	caller, err := s.userRepo.GetByID(ctx, callerID)
	if err != nil || caller == nil {
		s.logErr("resolving caller", err, "caller_id", callerID)
		return
	}

	body := fmt.Sprintf("%s is calling you", caller.DisplayName)
	if kind == "video" {
		body = fmt.Sprintf("%s is video calling you", caller.DisplayName)
	}
	s.deliver(ctx, Notification{
		Tokens: tokens,
		Title:  "Incoming call",
		Body:   body,
		Data: map[string]string{
			"type":            "incoming_call",
			"conversation_id": conversationID.String(),
			"call_kind":       kind,
		},
	})
}

// ForceLogout pushes a sign-out command to the user's active device. The
// call toggle is ignored on purpose: a forced logout must always arrive.
func (s *Service) ForceLogout(ctx context.Context, userID uuid.UUID, reason, message string) {
	tokens, err := s.deviceRepo.ActiveTokens(ctx, []uuid.UUID{userID}, "")
	if err != nil {
		s.logErr("resolving push tokens", err, "user_id", userID)
		return
	}
	if len(tokens) == 0 {
		return
	}
	s.deliver(ctx, forceLogoutNotification(tokens, reason, message))
}

// ForceLogoutToken signs out a raw token that no longer maps to a user.
func (s *Service) ForceLogoutToken(ctx context.Context, token, reason, message string) {
	s.deliver(ctx, forceLogoutNotification([]string{token}, reason, message))
}

func forceLogoutNotification(tokens []string, reason, message string) Notification {
	return Notification{
		Tokens: tokens,
		Title:  "Signed out",
		Body:   message,
		Data: map[string]string{
			"type":   "force_logout",
			"reason": reason,
		},
	}
}

// conversationTitle is the push headline: the group title, or the sender's
// display name in a direct conversation.
func (s *Service) conversationTitle(ctx context.Context, conv *domain.Conversation, senderID uuid.UUID) (string, error) {
	if conv.IsGroup() {
		if conv.Title != nil && *conv.Title != "" {
			return *conv.Title, nil
		}
		return "Group chat", nil
	}
	sender, err := s.userRepo.GetByID(ctx, senderID)
	if err != nil {
		return "", err
	}
	if sender == nil {
		return "New message", nil
	}
	return sender.DisplayName, nil
}

func exclude(ids []uuid.UUID, skip uuid.UUID) []uuid.UUID {
	out := ids[:0:0]
	for _, id := range ids {
		if id != skip {
			out = append(out, id)
		}
	}
	return out
}

func (s *Service) deliver(ctx context.Context, n Notification) {
	if err := s.sender.Send(ctx, n); err != nil {
		s.log.Errorw("push delivery failed", "tokens", len(n.Tokens), "error", err)
	}
}

func (s *Service) logErr(msg string, err error, kv ...any) {
	if err == nil {
		return
	}
	s.log.Errorw(msg, append(kv, "error", err)...)
}
