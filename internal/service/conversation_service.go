package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/repository"
	"go.uber.org/zap"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotAMember           = errors.New("caller is not a member of the conversation")
	ErrNoHiddenChats        = errors.New("no hidden conversations")
	ErrPINMismatch          = errors.New("hidden chat PIN does not match")
	ErrPINNotSet            = errors.New("hidden chat PIN is not set")
)

type ConversationService struct {
	convRepo repository.ConversationRepository
	msgRepo  repository.MessageRepository
	visRepo  repository.VisibilityRepository
	userRepo repository.UserRepository
	log      *zap.SugaredLogger
	notifier Notifier
}

func NewConversationService(
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	visRepo repository.VisibilityRepository,
	userRepo repository.UserRepository,
	log *zap.SugaredLogger,
) *ConversationService {
	return &ConversationService{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		visRepo:  visRepo,
		userRepo: userRepo,
		log:      log,
	}
}

// SetNotifier sets the real-time notifier (optional dependency).
func (s *ConversationService) SetNotifier(n Notifier) {
	s.notifier = n
}

// OpenDirect returns the direct conversation with the peer, creating it on
// first contact. Idempotent: the same pair always maps to the same
// conversation.
func (s *ConversationService) OpenDirect(ctx context.Context, userID, peerID uuid.UUID) (*domain.Conversation, error) {
	if userID == peerID {
		return nil, ErrSelfRelation
	}

	peer, err := s.userRepo.GetByID(ctx, peerID)
	if err != nil {
		return nil, err
	}
	if peer == nil {
		return nil, ErrUserNotFound
	}

	conv, err := s.convRepo.FindDirect(ctx, userID, peerID)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}

	conv, err = s.convRepo.CreateDirect(ctx, userID, peerID)
	if err != nil {
		return nil, fmt.Errorf("creating direct conversation: %w", err)
	}
	return conv, nil
}

func (s *ConversationService) List(ctx context.Context, userID uuid.UUID) ([]domain.ConversationSummary, error) {
	summaries, err := s.convRepo.ListSummaries(ctx, userID)
	if err != nil {
		return nil, err
	}
	if summaries == nil {
		summaries = []domain.ConversationSummary{}
	}
	return summaries, nil
}

func (s *ConversationService) ListMembers(ctx context.Context, userID, conversationID uuid.UUID) ([]domain.Membership, error) {
	if _, err := s.requireMember(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.convRepo.ListMembers(ctx, conversationID)
}

// MarkRead advances the caller's last-read pointer to the latest non-revoked
// message, or clears it when the conversation is empty.
func (s *ConversationService) MarkRead(ctx context.Context, userID, conversationID uuid.UUID) error {
	if _, err := s.requireMember(ctx, conversationID, userID); err != nil {
		return err
	}

	latest, err := s.msgRepo.LatestIDs(ctx, conversationID, 1)
	if err != nil {
		return err
	}
	var target *uuid.UUID
	if len(latest) > 0 {
		target = &latest[0]
	}
	return s.convRepo.SetLastRead(ctx, conversationID, userID, target)
}

// MarkUnread rewinds the last-read pointer by exactly one step so the
// conversation shows one unread item: back to the second-latest message, or
// to nothing when only one message exists. A conversation that already shows
// unread state is left alone; so is an empty one.
func (s *ConversationService) MarkUnread(ctx context.Context, userID, conversationID uuid.UUID) error {
	member, err := s.requireMember(ctx, conversationID, userID)
	if err != nil {
		return err
	}

	latest, err := s.msgRepo.LatestIDs(ctx, conversationID, 2)
	if err != nil {
		return err
	}
	if len(latest) == 0 {
		return nil
	}

	if member.LastReadMsgID == nil || *member.LastReadMsgID != latest[0] {
		// Already unread; never rewind further than one item.
		return nil
	}

	var target *uuid.UUID
	if len(latest) > 1 {
		target = &latest[1]
	}
	return s.convRepo.SetLastRead(ctx, conversationID, userID, target)
}

// ClearHistory hides everything at or before now from the caller only. The
// ledger itself is untouched.
func (s *ConversationService) ClearHistory(ctx context.Context, userID, conversationID uuid.UUID) error {
	if _, err := s.requireMember(ctx, conversationID, userID); err != nil {
		return err
	}
	return s.visRepo.SetClearedAt(ctx, userID, conversationID, time.Now())
}

func (s *ConversationService) Hide(ctx context.Context, userID, conversationID uuid.UUID) error {
	if _, err := s.requireMember(ctx, conversationID, userID); err != nil {
		return err
	}
	return s.visRepo.Hide(ctx, userID, conversationID)
}

func (s *ConversationService) Unhide(ctx context.Context, userID, conversationID uuid.UUID) error {
	if err := s.visRepo.Unhide(ctx, userID, conversationID); err != nil {
		return err
	}

	// The PIN guards the hidden list; once the list is empty it has no
	// purpose and is dropped.
	hidden, err := s.visRepo.ListHidden(ctx, userID)
	if err != nil {
		return err
	}
	if len(hidden) == 0 {
		return s.visRepo.ClearPIN(ctx, userID)
	}
	return nil
}

func (s *ConversationService) ListHidden(ctx context.Context, userID uuid.UUID, pin string) ([]domain.ConversationSummary, error) {
	if err := s.VerifyPIN(ctx, userID, pin); err != nil {
		return nil, err
	}

	hiddenIDs, err := s.visRepo.ListHidden(ctx, userID)
	if err != nil {
		return nil, err
	}
	hidden := make(map[uuid.UUID]struct{}, len(hiddenIDs))
	for _, id := range hiddenIDs {
		hidden[id] = struct{}{}
	}

	// ListSummaries excludes hidden conversations, so the hidden view is
	// built per conversation.
	summaries := []domain.ConversationSummary{}
	for id := range hidden {
		conv, err := s.convRepo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if conv == nil {
			continue
		}
		title := ""
		if conv.Title != nil {
			title = *conv.Title
		}
		summaries = append(summaries, domain.ConversationSummary{Conversation: *conv, DisplayTitle: title})
	}
	return summaries, nil
}

func (s *ConversationService) SetPIN(ctx context.Context, userID uuid.UUID, pin string) error {
	hash, err := hashSecret(pin)
	if err != nil {
		return fmt.Errorf("hashing PIN: %w", err)
	}
	return s.visRepo.SetPINHash(ctx, userID, hash)
}

func (s *ConversationService) VerifyPIN(ctx context.Context, userID uuid.UUID, pin string) error {
	hash, err := s.visRepo.GetPINHash(ctx, userID)
	if err != nil {
		return err
	}
	if hash == nil {
		return ErrPINNotSet
	}
	if !verifySecret(pin, *hash) {
		return ErrPINMismatch
	}
	return nil
}

// WipeHidden is the panic switch: clears history for every hidden
// conversation, unhides them all and drops the PIN, atomically.
func (s *ConversationService) WipeHidden(ctx context.Context, userID uuid.UUID) error {
	hidden, err := s.visRepo.ListHidden(ctx, userID)
	if err != nil {
		return err
	}
	if len(hidden) == 0 {
		return ErrNoHiddenChats
	}
	return s.visRepo.WipeHidden(ctx, userID, time.Now())
}

func (s *ConversationService) requireMember(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Membership, error) {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}

	member, err := s.convRepo.GetMember(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrNotAMember
	}
	return member, nil
}
