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
	ErrNotAGroup        = errors.New("conversation is not a group")
	ErrInsufficientRole = errors.New("caller's role does not allow this action")
	ErrOwnerImmutable   = errors.New("the owner cannot be removed, muted or demoted")
	ErrOwnerCannotLeave = errors.New("the owner must transfer ownership or dissolve the group")
	ErrRoleUnchanged    = errors.New("member already has that role")
	ErrMuteUnchanged    = errors.New("member already has that send permission")
	ErrMemberNotFound   = errors.New("user is not a member of the group")
	ErrTooFewMembers    = errors.New("a group needs at least two members")
	ErrInvalidRole      = errors.New("invalid role")
)

type GroupService struct {
	convRepo repository.ConversationRepository
	userRepo repository.UserRepository
	notifier Notifier
	log      *zap.SugaredLogger
}

func NewGroupService(convRepo repository.ConversationRepository, userRepo repository.UserRepository, log *zap.SugaredLogger) *GroupService {
	return &GroupService{convRepo: convRepo, userRepo: userRepo, log: log}
}

func (s *GroupService) SetNotifier(n Notifier) {
	s.notifier = n
}

type CreateGroupInput struct {
	Title     *string     `json:"title,omitempty"`
	MemberIDs []uuid.UUID `json:"member_ids"`
}

func (s *GroupService) Create(ctx context.Context, ownerID uuid.UUID, input CreateGroupInput) (*domain.Conversation, error) {
	// Dedupe and drop the creator; they join as owner regardless.
	seen := map[uuid.UUID]struct{}{ownerID: {}}
	var memberIDs []uuid.UUID
	for _, id := range input.MemberIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		memberIDs = append(memberIDs, id)
	}
	if len(memberIDs) < 1 {
		return nil, ErrTooFewMembers
	}

	title := input.Title
	if title == nil || strings.TrimSpace(*title) == "" {
		generated, err := s.defaultTitle(ctx, ownerID, memberIDs)
		if err != nil {
			return nil, err
		}
		title = &generated
	}

	conv := &domain.Conversation{
		ID:        uuid.New(),
		Type:      domain.ConversationTypeGroup,
		Status:    domain.ConversationStatusActive,
		Title:     title,
		CreatedAt: time.Now(),
	}
	if err := s.convRepo.CreateGroup(ctx, conv, ownerID, memberIDs); err != nil {
		return nil, fmt.Errorf("creating group: %w", err)
	}
	return conv, nil
}

func (s *GroupService) defaultTitle(ctx context.Context, ownerID uuid.UUID, memberIDs []uuid.UUID) (string, error) {
	names := []string{}
	for _, id := range append([]uuid.UUID{ownerID}, memberIDs...) {
		u, err := s.userRepo.GetByID(ctx, id)
		if err != nil {
			return "", err
		}
		if u != nil {
			names = append(names, u.DisplayName)
		}
		if len(names) == 3 {
			break
		}
	}
	return strings.Join(names, ", "), nil
}

func (s *GroupService) AddMembers(ctx context.Context, actorID, conversationID uuid.UUID, userIDs []uuid.UUID) error {
	if _, err := s.requireRole(ctx, conversationID, actorID, domain.RoleOwner, domain.RoleAdmin); err != nil {
		return err
	}
	if len(userIDs) == 0 {
		return nil
	}
	return s.convRepo.AddMembers(ctx, conversationID, userIDs)
}

func (s *GroupService) UpdateMemberRole(ctx context.Context, actorID, conversationID, targetID uuid.UUID, role string) error {
	if role != domain.RoleAdmin && role != domain.RoleMember && role != domain.RoleOwner {
		return ErrInvalidRole
	}

	actor, err := s.requireRole(ctx, conversationID, actorID, domain.RoleOwner, domain.RoleAdmin)
	if err != nil {
		return err
	}

	target, err := s.convRepo.GetMember(ctx, conversationID, targetID)
	if err != nil {
		return err
	}
	if target == nil {
		return ErrMemberNotFound
	}

	// The owner's role only changes through an explicit transfer, and the
	// owner role itself is only handed out that way.
	if target.Role == domain.RoleOwner {
		return ErrOwnerImmutable
	}
	if role == domain.RoleOwner {
		return ErrInsufficientRole
	}
	// Admins may not reshuffle other admins; that is the owner's call.
	if actor.Role == domain.RoleAdmin && target.Role == domain.RoleAdmin {
		return ErrInsufficientRole
	}
	if target.Role == role {
		return ErrRoleUnchanged
	}

	return s.convRepo.UpdateMemberRole(ctx, conversationID, targetID, role)
}

func (s *GroupService) SetMemberMuted(ctx context.Context, actorID, conversationID, targetID uuid.UUID, muted bool) error {
	if _, err := s.requireRole(ctx, conversationID, actorID, domain.RoleOwner, domain.RoleAdmin); err != nil {
		return err
	}

	target, err := s.convRepo.GetMember(ctx, conversationID, targetID)
	if err != nil {
		return err
	}
	if target == nil {
		return ErrMemberNotFound
	}
	if target.Role == domain.RoleOwner {
		return ErrOwnerImmutable
	}
	if target.IsMuted == muted {
		return ErrMuteUnchanged
	}

	return s.convRepo.SetMemberMuted(ctx, conversationID, targetID, muted)
}

func (s *GroupService) RemoveMember(ctx context.Context, actorID, conversationID, targetID uuid.UUID) error {
	if _, err := s.requireRole(ctx, conversationID, actorID, domain.RoleOwner, domain.RoleAdmin); err != nil {
		return err
	}

	target, err := s.convRepo.GetMember(ctx, conversationID, targetID)
	if err != nil {
		return err
	}
	if target == nil {
		return ErrMemberNotFound
	}
	if target.Role == domain.RoleOwner {
		return ErrOwnerImmutable
	}

	return s.convRepo.RemoveMember(ctx, conversationID, targetID)
}

// TransferOwnership atomically swaps roles: the old owner becomes admin, the
// target becomes owner and is unconditionally unmuted.
func (s *GroupService) TransferOwnership(ctx context.Context, actorID, conversationID, targetID uuid.UUID) error {
	if _, err := s.requireRole(ctx, conversationID, actorID, domain.RoleOwner); err != nil {
		return err
	}
	if targetID == actorID {
		return ErrSelfRelation
	}

	target, err := s.convRepo.GetMember(ctx, conversationID, targetID)
	if err != nil {
		return err
	}
	if target == nil {
		return ErrMemberNotFound
	}

	return s.convRepo.TransferOwnership(ctx, conversationID, actorID, targetID)
}

func (s *GroupService) Leave(ctx context.Context, userID, conversationID uuid.UUID) error {
	member, err := s.requireGroupMember(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if member.Role == domain.RoleOwner {
		return ErrOwnerCannotLeave
	}
	return s.convRepo.RemoveMember(ctx, conversationID, userID)
}

// Dissolve hard-deletes the group and everything in it. Owner only.
func (s *GroupService) Dissolve(ctx context.Context, actorID, conversationID uuid.UUID) error {
	if _, err := s.requireRole(ctx, conversationID, actorID, domain.RoleOwner); err != nil {
		return err
	}

	if err := s.convRepo.Delete(ctx, conversationID); err != nil {
		return fmt.Errorf("dissolving group: %w", err)
	}

	if s.notifier != nil {
		runHooks(s.log, func() { s.notifier.ConversationDeleted(conversationID) })
	}
	return nil
}

func (s *GroupService) UpdateInfo(ctx context.Context, actorID, conversationID uuid.UUID, title, avatarURL *string) error {
	if _, err := s.requireRole(ctx, conversationID, actorID, domain.RoleOwner); err != nil {
		return err
	}
	return s.convRepo.UpdateInfo(ctx, conversationID, title, avatarURL)
}

func (s *GroupService) requireGroupMember(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Membership, error) {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	if !conv.IsGroup() {
		return nil, ErrNotAGroup
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

func (s *GroupService) requireRole(ctx context.Context, conversationID, userID uuid.UUID, roles ...string) (*domain.Membership, error) {
	member, err := s.requireGroupMember(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	for _, role := range roles {
		if member.Role == role {
			return member, nil
		}
	}
	return nil, ErrInsufficientRole
}
