package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
)

// Guard errors returned by write methods that re-check authorization inside
// the mutating transaction. Role and status can change between a caller's
// read and its write, so the transaction is the source of truth.
var (
	ErrNotMember          = errors.New("actor is not a member of the conversation")
	ErrConversationLocked = errors.New("conversation is locked")
	ErrConversationBanned = errors.New("conversation is banned")
	ErrMemberMuted        = errors.New("member is muted in the conversation")
	ErrReportTerminal     = errors.New("report is already resolved or rejected")
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	// BumpTokenVersion advances the session epoch and returns the new value.
	BumpTokenVersion(ctx context.Context, id uuid.UUID) (int, error)
	// Sanction flips the account status, bumps the session epoch and
	// deactivates the user's devices as one transaction. Returns the
	// previous status and the new epoch.
	Sanction(ctx context.Context, id uuid.UUID, status string) (string, int, error)
	IsAdmin(ctx context.Context, id uuid.UUID) (bool, error)
	SeedAdmin(ctx context.Context, id uuid.UUID) error
	// List is the admin listing: optional status filter, search over
	// name/email/username, admins excluded. Returns page plus total.
	List(ctx context.Context, status, query string, limit, offset int) ([]domain.User, int, error)
}

type ConversationRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	GetMember(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Membership, error)
	ListMembers(ctx context.Context, conversationID uuid.UUID) ([]domain.Membership, error)
	ListMemberIDs(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error)
	// FindDirect returns the direct conversation between the pair in either
	// order, or nil.
	FindDirect(ctx context.Context, a, b uuid.UUID) (*domain.Conversation, error)
	CreateDirect(ctx context.Context, a, b uuid.UUID) (*domain.Conversation, error)
	CreateGroup(ctx context.Context, conv *domain.Conversation, ownerID uuid.UUID, memberIDs []uuid.UUID) error
	AddMembers(ctx context.Context, conversationID uuid.UUID, userIDs []uuid.UUID) error
	RemoveMember(ctx context.Context, conversationID, userID uuid.UUID) error
	UpdateMemberRole(ctx context.Context, conversationID, userID uuid.UUID, role string) error
	SetMemberMuted(ctx context.Context, conversationID, userID uuid.UUID, muted bool) error
	// TransferOwnership atomically demotes the old owner to admin and
	// promotes the new owner, unmuting them.
	TransferOwnership(ctx context.Context, conversationID, oldOwnerID, newOwnerID uuid.UUID) error
	UpdateInfo(ctx context.Context, conversationID uuid.UUID, title, avatarURL *string) error
	// SetGroupStatus flips a group's status; a transition to banned purges
	// all messages in the same transaction.
	SetGroupStatus(ctx context.Context, conversationID uuid.UUID, status string) error
	Delete(ctx context.Context, id uuid.UUID) error
	SetLastRead(ctx context.Context, conversationID, userID uuid.UUID, messageID *uuid.UUID) error
	// ListSummaries returns the viewer's conversation list with previews and
	// unread counts, excluding hidden conversations and respecting the
	// viewer's cleared-history bound.
	ListSummaries(ctx context.Context, userID uuid.UUID) ([]domain.ConversationSummary, error)
	// ListGroups is the admin listing: optional status filter, title search,
	// member counts included. Returns page plus total.
	ListGroups(ctx context.Context, status, query string, limit, offset int) ([]domain.GroupOverview, int, error)
}

type VisibilityRepository interface {
	ClearedAt(ctx context.Context, userID, conversationID uuid.UUID) (*time.Time, error)
	SetClearedAt(ctx context.Context, userID, conversationID uuid.UUID, at time.Time) error
	Hide(ctx context.Context, userID, conversationID uuid.UUID) error
	Unhide(ctx context.Context, userID, conversationID uuid.UUID) error
	ListHidden(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	GetPINHash(ctx context.Context, userID uuid.UUID) (*string, error)
	SetPINHash(ctx context.Context, userID uuid.UUID, hash string) error
	ClearPIN(ctx context.Context, userID uuid.UUID) error
	// WipeHidden clears history for every hidden conversation, unhides them
	// all and drops the PIN, as one transaction.
	WipeHidden(ctx context.Context, userID uuid.UUID, at time.Time) error
}

type MessageRepository interface {
	// CreateGuarded inserts the message after re-verifying, inside the same
	// transaction, that the sender is still a member and the conversation
	// still accepts sends. Returns the guard errors above on violation.
	CreateGuarded(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error)
	// List returns messages visible to the viewer in chronological order:
	// revoked messages appear as tombstones, messages at or before the
	// viewer's cleared bound do not appear at all.
	List(ctx context.Context, conversationID, viewerID uuid.UUID, before *uuid.UUID, limit int) ([]domain.Message, error)
	LatestIDs(ctx context.Context, conversationID uuid.UUID, limit int) ([]uuid.UUID, error)
	React(ctx context.Context, messageID, userID uuid.UUID, emoji string) error
	SetPinned(ctx context.Context, id uuid.UUID, pinned bool) error
	Tombstone(ctx context.Context, id uuid.UUID) error
	HardDelete(ctx context.Context, id uuid.UUID) error
	// Forward copies each source message the actor can currently see into
	// each target conversation the actor may currently send to, in one
	// transaction. Returns the ids of the created messages plus how many
	// sources and targets survived filtering.
	Forward(ctx context.Context, actorID uuid.UUID, sourceIDs, targetIDs []uuid.UUID) (newIDs []uuid.UUID, sources, targets int, err error)
}

type RelationshipRepository interface {
	IsFriend(ctx context.Context, a, b uuid.UUID) (bool, error)
	// Blocks reports blocking in both directions at once.
	Blocks(ctx context.Context, a, b uuid.UUID) (aBlocksB, bBlocksA bool, err error)
	PendingInvite(ctx context.Context, senderID, receiverID uuid.UUID) (*domain.Invite, error)
	UpsertInvite(ctx context.Context, senderID, receiverID uuid.UUID) (*domain.Invite, error)
	// Accept flips a pending invite addressed to the receiver and creates
	// both friendship directions atomically. Returns nil if the invite is
	// missing, not pending, or not addressed to the receiver.
	Accept(ctx context.Context, inviteID, receiverID uuid.UUID) (*domain.Invite, error)
	Decline(ctx context.Context, inviteID, receiverID uuid.UUID) (bool, error)
	// CancelSent cancels the sender's own pending invite and returns the
	// receiver id, or nil if there was nothing to cancel.
	CancelSent(ctx context.Context, inviteID, senderID uuid.UUID) (*uuid.UUID, error)
	// Block inserts the block edge idempotently, removes any friendship in
	// either direction and cancels pending invites both ways, atomically.
	Block(ctx context.Context, blockerID, targetID uuid.UUID) error
	Unblock(ctx context.Context, blockerID, targetID uuid.UUID) error
	RemoveFriendship(ctx context.Context, a, b uuid.UUID) error
	ListFriends(ctx context.Context, userID uuid.UUID) ([]domain.Friend, error)
	ListInvites(ctx context.Context, userID uuid.UUID, received bool) ([]domain.Invite, error)
	SearchUsers(ctx context.Context, userID uuid.UUID, query string, limit int) ([]domain.UserSearchResult, error)
}

// SweepOutcome is the fate of one claimed due item.
type SweepOutcome struct {
	Scheduled domain.ScheduledMessage
	Sent      bool
	MessageID *uuid.UUID
}

type ScheduledRepository interface {
	Create(ctx context.Context, sm *domain.ScheduledMessage) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ScheduledMessage, error)
	ListPending(ctx context.Context, userID uuid.UUID, conversationID *uuid.UUID, limit int) ([]domain.ScheduledMessage, error)
	// Cancel and Reschedule act only while the item is still pending; both
	// report whether a row changed.
	Cancel(ctx context.Context, id, userID uuid.UUID) (bool, error)
	Reschedule(ctx context.Context, id, userID uuid.UUID, at time.Time) (bool, error)
	// SendNow promotes one pending item immediately: re-checks pending
	// status, membership and group status under a row lock, inserts the
	// message and marks the item sent in one transaction.
	SendNow(ctx context.Context, id, userID uuid.UUID) (*domain.ScheduledMessage, error)
	// ClaimDueBatch claims up to batch due pending items with skip-locked
	// semantics and settles each: canceled when the group is no longer
	// active or the sender is no longer a member, sent otherwise. The
	// message insert and the status flip share the claim transaction.
	ClaimDueBatch(ctx context.Context, batch int) ([]SweepOutcome, error)
}

// SanctionPlan is the durable effect of one typed moderation action,
// executed atomically together with the report's terminal transition.
type SanctionPlan struct {
	UserID          *uuid.UUID
	UserStatus      string
	ConversationID  *uuid.UUID
	GroupStatus     string
	DeleteMessageID *uuid.UUID
	DeleteNoteID    *uuid.UUID
}

// SanctionResult reports what the resolve transaction actually did.
type SanctionResult struct {
	Report          *domain.Report
	OldUserStatus   string
	NewTokenVersion int
}

type ReportRepository interface {
	Create(ctx context.Context, report *domain.Report) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Report, error)
	List(ctx context.Context, status string, limit, offset int) ([]domain.Report, int, error)
	// Resolve locks the report row, rejects terminal reports with
	// ErrReportTerminal, applies the plan (user sanction bumps the session
	// epoch and deactivates devices; group ban purges messages) and flips
	// the report to its terminal status, all in one transaction.
	Resolve(ctx context.Context, reportID, adminID uuid.UUID, status string, note *string, plan *SanctionPlan) (*SanctionResult, error)
}

type DeviceRepository interface {
	// Register makes the token the user's single active device, displacing
	// any other owner of the same token and the user's previous devices.
	// Returns the displaced token of the user's old device, if any.
	Register(ctx context.Context, userID uuid.UUID, token, platform string) (*string, error)
	// ActiveTokens resolves push destinations for the given users honoring
	// the per-user toggle named by kind ("dm", "group" or "call"). An empty
	// kind skips toggles entirely.
	ActiveTokens(ctx context.Context, userIDs []uuid.UUID, kind string) ([]string, error)
	Deactivate(ctx context.Context, userID uuid.UUID) error
	GetSettings(ctx context.Context, userID uuid.UUID) (*domain.NotificationSettings, error)
	UpdateSettings(ctx context.Context, s *domain.NotificationSettings) error
}

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.AppNotification) error
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.AppNotification, error)
	MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error
}

type NoteRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Note, error)
	// Upsert replaces the owner's previous note, if any. One live note per
	// user.
	Upsert(ctx context.Context, n *domain.Note) error
	GetByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.Note, error)
	// ListFeed returns the unexpired notes of the user and their friends,
	// newest first.
	ListFeed(ctx context.Context, userID uuid.UUID) ([]domain.Note, error)
	// DeleteByOwner removes the owner's note and reports whether one existed.
	DeleteByOwner(ctx context.Context, ownerID uuid.UUID) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
