package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/repository"
	"go.uber.org/zap"
)

var (
	ErrMessageNotFound  = errors.New("message not found")
	ErrNotMessageSender = errors.New("only the message sender can perform this action")
	ErrBlocked          = errors.New("you have blocked this user")
	ErrBlockedByPeer    = errors.New("this user has blocked you")
	ErrPeerInactive     = errors.New("the other account is not active")
	ErrGroupLocked      = errors.New("the group is locked")
	ErrGroupBanned      = errors.New("the group is banned")
	ErrSenderMuted      = errors.New("you are muted in this group")
	ErrInvalidPayload   = errors.New("a message needs exactly one of text or asset")
	ErrReplyNotFound    = errors.New("reply target not found")
	ErrNoForwardSources = errors.New("no forwardable source messages")
	ErrNoForwardTargets = errors.New("no conversations available as forward targets")
)

type MessageService struct {
	msgRepo  repository.MessageRepository
	convRepo repository.ConversationRepository
	relRepo  repository.RelationshipRepository
	userRepo repository.UserRepository
	noteRepo repository.NoteRepository
	notifier Notifier
	pusher   Pusher
	log      *zap.SugaredLogger
}

func NewMessageService(
	msgRepo repository.MessageRepository,
	convRepo repository.ConversationRepository,
	relRepo repository.RelationshipRepository,
	userRepo repository.UserRepository,
	noteRepo repository.NoteRepository,
	log *zap.SugaredLogger,
) *MessageService {
	return &MessageService{
		msgRepo:  msgRepo,
		convRepo: convRepo,
		relRepo:  relRepo,
		userRepo: userRepo,
		noteRepo: noteRepo,
		log:      log,
	}
}

// SetNotifier sets the real-time notifier (optional dependency).
func (s *MessageService) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetPusher sets the push collaborator (optional dependency).
func (s *MessageService) SetPusher(p Pusher) {
	s.pusher = p
}

type SendMessageInput struct {
	Type          string     `json:"type"`
	Text          *string    `json:"text,omitempty"`
	AssetURL      *string    `json:"asset_url,omitempty"`
	ReplyToID     *uuid.UUID `json:"reply_to_id,omitempty"`
	ReplyToNoteID *uuid.UUID `json:"reply_to_note_id,omitempty"`
}

type MessageListResponse struct {
	Messages []domain.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
}

type ForwardInput struct {
	MessageIDs      []uuid.UUID `json:"message_ids"`
	ConversationIDs []uuid.UUID `json:"conversation_ids"`
}

type ForwardResponse struct {
	Forwarded int `json:"forwarded"`
	Sources   int `json:"sources"`
	Targets   int `json:"targets"`
}

func (s *MessageService) Send(ctx context.Context, senderID, conversationID uuid.UUID, input SendMessageInput) (*domain.Message, error) {
	conv, member, err := s.requireMembership(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}

	if conv.IsGroup() {
		switch conv.Status {
		case domain.ConversationStatusLocked:
			return nil, ErrGroupLocked
		case domain.ConversationStatusBanned:
			return nil, ErrGroupBanned
		}
		if member.IsMuted {
			return nil, ErrSenderMuted
		}
	} else {
		if err := s.ensureDirectPeerActive(ctx, conv, senderID); err != nil {
			return nil, err
		}
	}

	msg, err := s.buildMessage(ctx, senderID, conversationID, input)
	if err != nil {
		return nil, err
	}

	// The insert re-verifies membership and status in its own transaction;
	// the checks above only produce the precise error before any work.
	if err := s.msgRepo.CreateGuarded(ctx, msg); err != nil {
		return nil, mapGuardErr(err)
	}

	full, err := s.msgRepo.GetByID(ctx, msg.ID)
	if err != nil {
		return nil, err
	}

	s.fanOutNew(ctx, full)
	return full, nil
}

func (s *MessageService) buildMessage(ctx context.Context, senderID, conversationID uuid.UUID, input SendMessageInput) (*domain.Message, error) {
	hasText := input.Text != nil && strings.TrimSpace(*input.Text) != ""
	hasAsset := input.AssetURL != nil && *input.AssetURL != ""
	if hasText == hasAsset {
		return nil, ErrInvalidPayload
	}

	msgType := domain.MessageTypeText
	if hasAsset {
		msgType = domain.MessageTypeImage
		if input.Type == domain.MessageTypeVideo {
			msgType = domain.MessageTypeVideo
		}
	}

	msg := &domain.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Type:           msgType,
		Text:           input.Text,
		AssetURL:       input.AssetURL,
		CreatedAt:      time.Now(),
	}
	if !hasText {
		msg.Text = nil
	}

	switch {
	case input.ReplyToID != nil:
		parent, err := s.msgRepo.GetByID(ctx, *input.ReplyToID)
		if err != nil {
			return nil, err
		}
		if parent == nil || parent.ConversationID != conversationID {
			return nil, ErrReplyNotFound
		}
		msg.ReplyToID = input.ReplyToID
	case input.ReplyToNoteID != nil:
		// Notes expire, so the reply carries a point-in-time snapshot
		// instead of a reference.
		note, err := s.noteRepo.GetByID(ctx, *input.ReplyToNoteID)
		if err != nil {
			return nil, err
		}
		if note == nil {
			return nil, ErrReplyNotFound
		}
		msg.ReplyToNote = note.Snapshot()
	}

	return msg, nil
}

// ensureDirectPeerActive enforces direct-conversation send rules: no block
// in either direction, and the peer's account must be active.
func (s *MessageService) ensureDirectPeerActive(ctx context.Context, conv *domain.Conversation, senderID uuid.UUID) error {
	memberIDs, err := s.convRepo.ListMemberIDs(ctx, conv.ID)
	if err != nil {
		return err
	}
	var peerID uuid.UUID
	for _, id := range memberIDs {
		if id != senderID {
			peerID = id
			break
		}
	}
	if peerID == uuid.Nil {
		return nil
	}

	iBlock, blocksMe, err := s.relRepo.Blocks(ctx, senderID, peerID)
	if err != nil {
		return err
	}
	if iBlock {
		return ErrBlocked
	}
	if blocksMe {
		return ErrBlockedByPeer
	}

	peer, err := s.userRepo.GetByID(ctx, peerID)
	if err != nil {
		return err
	}
	if peer == nil || !peer.IsActive() {
		return ErrPeerInactive
	}
	return nil
}

func (s *MessageService) List(ctx context.Context, userID, conversationID uuid.UUID, before *uuid.UUID, limit int) (*MessageListResponse, error) {
	if _, _, err := s.requireMembership(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}

	messages, err := s.msgRepo.List(ctx, conversationID, userID, before, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[len(messages)-limit:]
	}
	if messages == nil {
		messages = []domain.Message{}
	}

	return &MessageListResponse{Messages: messages, HasMore: hasMore}, nil
}

// React applies single-slot semantics: no reaction inserts, the same emoji
// toggles off, a different emoji replaces. The full message state is
// re-fetched and re-broadcast after every mutation.
func (s *MessageService) React(ctx context.Context, userID, messageID uuid.UUID, emoji string) (*domain.Message, error) {
	msg, err := s.requireVisibleMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}

	if err := s.msgRepo.React(ctx, msg.ID, userID, emoji); err != nil {
		return nil, fmt.Errorf("storing reaction: %w", err)
	}

	return s.refreshAndBroadcast(ctx, msg.ID)
}

// Revoke tombstones the message: the row stays so replies and reactions
// remain valid, but clients render it as revoked.
func (s *MessageService) Revoke(ctx context.Context, userID, messageID uuid.UUID) (*domain.Message, error) {
	msg, err := s.requireOwnMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}

	if err := s.msgRepo.Tombstone(ctx, msg.ID); err != nil {
		return nil, err
	}

	return s.refreshAndBroadcast(ctx, msg.ID)
}

func (s *MessageService) HardDelete(ctx context.Context, userID, messageID uuid.UUID) error {
	msg, err := s.requireOwnMessage(ctx, userID, messageID)
	if err != nil {
		return err
	}

	if err := s.msgRepo.HardDelete(ctx, msg.ID); err != nil {
		return err
	}

	if s.notifier != nil {
		runHooks(s.log, func() { s.notifier.MessageDeleted(msg.ConversationID, msg.ID) })
	}
	return nil
}

// SetPinned toggles the pin flag. Any member with access may pin.
func (s *MessageService) SetPinned(ctx context.Context, userID, messageID uuid.UUID, pinned bool) (*domain.Message, error) {
	msg, err := s.requireVisibleMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}

	if err := s.msgRepo.SetPinned(ctx, msg.ID, pinned); err != nil {
		return nil, err
	}

	return s.refreshAndBroadcast(ctx, msg.ID)
}

// Forward copies visible source messages into every target the actor may
// still send to. Filtering is independent per source and per target;
// partial success is expected and correct.
func (s *MessageService) Forward(ctx context.Context, actorID uuid.UUID, input ForwardInput) (*ForwardResponse, error) {
	if len(input.MessageIDs) == 0 || len(input.ConversationIDs) == 0 {
		return nil, ErrInvalidPayload
	}

	newIDs, sources, targets, err := s.msgRepo.Forward(ctx, actorID, input.MessageIDs, input.ConversationIDs)
	if err != nil {
		return nil, fmt.Errorf("forwarding messages: %w", err)
	}
	if sources == 0 {
		return nil, ErrNoForwardSources
	}
	if targets == 0 {
		return nil, ErrNoForwardTargets
	}

	// Broadcast each copy individually, after the commit.
	for _, id := range newIDs {
		full, err := s.msgRepo.GetByID(ctx, id)
		if err != nil || full == nil {
			s.log.Errorw("fetching forwarded message", "message_id", id, "error", err)
			continue
		}
		s.fanOutNew(ctx, full)
	}

	return &ForwardResponse{Forwarded: len(newIDs), Sources: sources, Targets: targets}, nil
}

// fanOutNew runs the post-commit leg of the send pipeline: realtime event
// plus best-effort push. Failures are logged and swallowed.
func (s *MessageService) fanOutNew(ctx context.Context, msg *domain.Message) {
	var hooks []func()
	if s.notifier != nil {
		hooks = append(hooks, func() { s.notifier.MessageNew(msg) })
	}
	if s.pusher != nil {
		hooks = append(hooks, func() {
			s.pusher.ChatMessage(ctx, msg.ConversationID, msg.SenderID, preview(msg))
		})
	}
	runHooks(s.log, hooks...)
}

func preview(msg *domain.Message) string {
	if msg.Text != nil && *msg.Text != "" {
		// Truncate on rune boundaries so multi-byte text stays valid UTF-8.
		const max = 120
		if runes := []rune(*msg.Text); len(runes) > max {
			return string(runes[:max])
		}
		return *msg.Text
	}
	switch msg.Type {
	case domain.MessageTypeVideo:
		return "Sent a video"
	default:
		return "Sent a photo"
	}
}

func (s *MessageService) refreshAndBroadcast(ctx context.Context, messageID uuid.UUID) (*domain.Message, error) {
	full, err := s.msgRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if full == nil {
		return nil, ErrMessageNotFound
	}

	if s.notifier != nil {
		runHooks(s.log, func() { s.notifier.MessageUpdated(full) })
	}
	return full, nil
}

func (s *MessageService) requireMembership(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Conversation, *domain.Membership, error) {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	if conv == nil {
		return nil, nil, ErrConversationNotFound
	}

	member, err := s.convRepo.GetMember(ctx, conversationID, userID)
	if err != nil {
		return nil, nil, err
	}
	if member == nil {
		return nil, nil, ErrNotAMember
	}
	return conv, member, nil
}

func (s *MessageService) requireVisibleMessage(ctx context.Context, userID, messageID uuid.UUID) (*domain.Message, error) {
	msg, err := s.msgRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrMessageNotFound
	}

	member, err := s.convRepo.GetMember(ctx, msg.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		// Membership gates existence: outsiders see not-found, not
		// forbidden.
		return nil, ErrMessageNotFound
	}
	return msg, nil
}

func (s *MessageService) requireOwnMessage(ctx context.Context, userID, messageID uuid.UUID) (*domain.Message, error) {
	msg, err := s.requireVisibleMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, ErrNotMessageSender
	}
	return msg, nil
}

func mapGuardErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotMember):
		return ErrNotAMember
	case errors.Is(err, repository.ErrConversationLocked):
		return ErrGroupLocked
	case errors.Is(err, repository.ErrConversationBanned):
		return ErrGroupBanned
	case errors.Is(err, repository.ErrMemberMuted):
		return ErrSenderMuted
	default:
		return err
	}
}
