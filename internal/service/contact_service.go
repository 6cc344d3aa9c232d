package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/repository"
	"go.uber.org/zap"
)

var (
	ErrSelfRelation   = errors.New("cannot target yourself")
	ErrAlreadyFriends = errors.New("users are already friends")
	ErrInviteNotFound = errors.New("invite not found or not pending")
	ErrUserNotFound   = errors.New("user not found")
)

// Invite change kinds carried on contacts:invites:changed events.
const (
	InviteChangeReceived = "received_new"
	InviteChangeSent     = "sent_new"
	InviteChangeAccepted = "accepted"
	InviteChangeDeclined = "declined"
	InviteChangeCanceled = "canceled"
)

type ContactService struct {
	relRepo  repository.RelationshipRepository
	userRepo repository.UserRepository
	notifier Notifier
	log      *zap.SugaredLogger
}

func NewContactService(relRepo repository.RelationshipRepository, userRepo repository.UserRepository, log *zap.SugaredLogger) *ContactService {
	return &ContactService{relRepo: relRepo, userRepo: userRepo, log: log}
}

// SetNotifier sets the real-time notifier (optional dependency).
func (s *ContactService) SetNotifier(n Notifier) {
	s.notifier = n
}

// QueryRelation reports how a relates to b, with blocked taking precedence
// over friendship and friendship over pending invites.
func (s *ContactService) QueryRelation(ctx context.Context, a, b uuid.UUID) (*domain.Relation, error) {
	if a == b {
		return &domain.Relation{Kind: domain.RelationSelf}, nil
	}

	aBlocksB, bBlocksA, err := s.relRepo.Blocks(ctx, a, b)
	if err != nil {
		return nil, err
	}
	if aBlocksB || bBlocksA {
		return &domain.Relation{Kind: domain.RelationBlocked}, nil
	}

	friend, err := s.relRepo.IsFriend(ctx, a, b)
	if err != nil {
		return nil, err
	}
	if friend {
		return &domain.Relation{Kind: domain.RelationFriend}, nil
	}

	if inbound, err := s.relRepo.PendingInvite(ctx, b, a); err != nil {
		return nil, err
	} else if inbound != nil {
		return &domain.Relation{Kind: domain.RelationInvitedMe, InboundInviteID: &inbound.ID}, nil
	}

	if outbound, err := s.relRepo.PendingInvite(ctx, a, b); err != nil {
		return nil, err
	} else if outbound != nil {
		return &domain.Relation{Kind: domain.RelationInvitedByMe}, nil
	}

	return &domain.Relation{Kind: domain.RelationNone}, nil
}

func (s *ContactService) SendInvite(ctx context.Context, senderID, receiverID uuid.UUID) (*domain.Invite, error) {
	if senderID == receiverID {
		return nil, ErrSelfRelation
	}

	receiver, err := s.userRepo.GetByID(ctx, receiverID)
	if err != nil {
		return nil, err
	}
	if receiver == nil {
		return nil, ErrUserNotFound
	}

	blockedBySender, blockedByReceiver, err := s.relRepo.Blocks(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if blockedBySender {
		return nil, ErrBlocked
	}
	if blockedByReceiver {
		return nil, ErrBlockedByPeer
	}

	friend, err := s.relRepo.IsFriend(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if friend {
		return nil, ErrAlreadyFriends
	}

	invite, err := s.relRepo.UpsertInvite(ctx, senderID, receiverID)
	if err != nil {
		return nil, fmt.Errorf("upserting invite: %w", err)
	}

	if s.notifier != nil {
		runHooks(s.log,
			func() { s.notifier.InvitesChanged(receiverID, InviteChangeReceived) },
			func() { s.notifier.InvitesChanged(senderID, InviteChangeSent) },
		)
	}
	return invite, nil
}

func (s *ContactService) AcceptInvite(ctx context.Context, inviteID, receiverID uuid.UUID) (*domain.Invite, error) {
	invite, err := s.relRepo.Accept(ctx, inviteID, receiverID)
	if err != nil {
		return nil, err
	}
	if invite == nil {
		return nil, ErrInviteNotFound
	}

	if s.notifier != nil {
		runHooks(s.log,
			func() { s.notifier.InvitesChanged(invite.SenderID, InviteChangeAccepted) },
			func() { s.notifier.InvitesChanged(invite.ReceiverID, InviteChangeAccepted) },
			func() { s.notifier.FriendsChanged(invite.SenderID) },
			func() { s.notifier.FriendsChanged(invite.ReceiverID) },
		)
	}
	return invite, nil
}

func (s *ContactService) DeclineInvite(ctx context.Context, inviteID, receiverID uuid.UUID) error {
	ok, err := s.relRepo.Decline(ctx, inviteID, receiverID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInviteNotFound
	}

	if s.notifier != nil {
		runHooks(s.log, func() { s.notifier.InvitesChanged(receiverID, InviteChangeDeclined) })
	}
	return nil
}

func (s *ContactService) CancelInvite(ctx context.Context, inviteID, senderID uuid.UUID) error {
	receiverID, err := s.relRepo.CancelSent(ctx, inviteID, senderID)
	if err != nil {
		return err
	}
	if receiverID == nil {
		return ErrInviteNotFound
	}

	if s.notifier != nil {
		runHooks(s.log,
			func() { s.notifier.InvitesChanged(senderID, InviteChangeCanceled) },
			func() { s.notifier.InvitesChanged(*receiverID, InviteChangeCanceled) },
		)
	}
	return nil
}

// Block severs everything between the pair: the friendship in both
// directions and any pending invites, plus the block edge itself.
// Unblocking later restores none of it.
func (s *ContactService) Block(ctx context.Context, blockerID, targetID uuid.UUID) error {
	if blockerID == targetID {
		return ErrSelfRelation
	}

	target, err := s.userRepo.GetByID(ctx, targetID)
	if err != nil {
		return err
	}
	if target == nil {
		return ErrUserNotFound
	}

	if err := s.relRepo.Block(ctx, blockerID, targetID); err != nil {
		return fmt.Errorf("blocking user: %w", err)
	}

	if s.notifier != nil {
		runHooks(s.log,
			func() { s.notifier.FriendsChanged(blockerID) },
			func() { s.notifier.FriendsChanged(targetID) },
		)
	}
	return nil
}

func (s *ContactService) Unblock(ctx context.Context, blockerID, targetID uuid.UUID) error {
	if err := s.relRepo.Unblock(ctx, blockerID, targetID); err != nil {
		return err
	}

	if s.notifier != nil {
		runHooks(s.log, func() { s.notifier.FriendsChanged(blockerID) })
	}
	return nil
}

func (s *ContactService) RemoveFriend(ctx context.Context, userID, friendID uuid.UUID) error {
	if userID == friendID {
		return ErrSelfRelation
	}

	if err := s.relRepo.RemoveFriendship(ctx, userID, friendID); err != nil {
		return err
	}

	if s.notifier != nil {
		runHooks(s.log,
			func() { s.notifier.FriendsChanged(userID) },
			func() { s.notifier.FriendsChanged(friendID) },
		)
	}
	return nil
}

func (s *ContactService) ListFriends(ctx context.Context, userID uuid.UUID) ([]domain.Friend, error) {
	return s.relRepo.ListFriends(ctx, userID)
}

func (s *ContactService) ListInvites(ctx context.Context, userID uuid.UUID, received bool) ([]domain.Invite, error) {
	return s.relRepo.ListInvites(ctx, userID, received)
}

func (s *ContactService) Search(ctx context.Context, userID uuid.UUID, query string, limit int) ([]domain.UserSearchResult, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	return s.relRepo.SearchUsers(ctx, userID, query, limit)
}
