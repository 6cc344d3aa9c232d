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
	ErrReportNotFound      = errors.New("report not found")
	ErrReportTerminal      = errors.New("report is already resolved or rejected")
	ErrInvalidReport       = errors.New("report is malformed")
	ErrInvalidStatus       = errors.New("invalid status value")
	ErrCannotSanctionAdmin = errors.New("admin accounts cannot be sanctioned")
	ErrCannotSanctionSelf  = errors.New("you cannot sanction your own account")
	ErrNoSanctionTarget    = errors.New("the report has no user to sanction")
)

// ModerationAction is a closed set of typed admin actions. Adding an action
// means adding a variant and a case in buildPlan, not another string branch.
type ModerationAction interface {
	moderationAction()
}

// UserSanction flips the resolved target user's account status.
type UserSanction struct {
	Status string // active, locked or banned
}

// GroupSanction flips the reported group's status.
type GroupSanction struct {
	Status string // active, locked or banned
}

// ContentRemoval deletes the reported message or note.
type ContentRemoval struct{}

// Warn resolves the report with a note to the reporter and no other effect.
type Warn struct{}

func (UserSanction) moderationAction()   {}
func (GroupSanction) moderationAction()  {}
func (ContentRemoval) moderationAction() {}
func (Warn) moderationAction()           {}

type ModerationService struct {
	reportRepo repository.ReportRepository
	userRepo   repository.UserRepository
	convRepo   repository.ConversationRepository
	noteRepo   repository.NoteRepository
	notifRepo  repository.NotificationRepository
	notifier   Notifier
	pusher     Pusher
	log        *zap.SugaredLogger
}

func NewModerationService(
	reportRepo repository.ReportRepository,
	userRepo repository.UserRepository,
	convRepo repository.ConversationRepository,
	noteRepo repository.NoteRepository,
	notifRepo repository.NotificationRepository,
	log *zap.SugaredLogger,
) *ModerationService {
	return &ModerationService{
		reportRepo: reportRepo,
		userRepo:   userRepo,
		convRepo:   convRepo,
		noteRepo:   noteRepo,
		notifRepo:  notifRepo,
		log:        log,
	}
}

func (s *ModerationService) SetNotifier(n Notifier) {
	s.notifier = n
}

func (s *ModerationService) SetPusher(p Pusher) {
	s.pusher = p
}

type CreateReportInput struct {
	TargetType     string     `json:"target_type"`
	TargetID       uuid.UUID  `json:"target_id"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	Reasons        []string   `json:"reasons"`
	Description    *string    `json:"description,omitempty"`
}

func (s *ModerationService) CreateReport(ctx context.Context, reporterID uuid.UUID, input CreateReportInput) (*domain.Report, error) {
	switch input.TargetType {
	case domain.ReportTargetUser, domain.ReportTargetConversation,
		domain.ReportTargetMessage, domain.ReportTargetNote:
	default:
		return nil, ErrInvalidReport
	}

	var reasons []string
	for _, raw := range input.Reasons {
		if r := strings.TrimSpace(raw); r != "" {
			reasons = append(reasons, r)
		}
	}
	if len(reasons) == 0 || len(reasons) > 3 {
		return nil, ErrInvalidReport
	}

	report := &domain.Report{
		ID:             uuid.New(),
		ReporterID:     reporterID,
		TargetType:     input.TargetType,
		TargetID:       input.TargetID,
		ConversationID: input.ConversationID,
		Reasons:        reasons,
		Description:    input.Description,
		Status:         domain.ReportStatusPending,
		CreatedAt:      time.Now(),
	}
	if err := s.reportRepo.Create(ctx, report); err != nil {
		return nil, fmt.Errorf("creating report: %w", err)
	}
	return report, nil
}

func (s *ModerationService) ListReports(ctx context.Context, status string, limit, offset int) ([]domain.Report, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.reportRepo.List(ctx, status, limit, offset)
}

func (s *ModerationService) GetReport(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	report, err := s.reportRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, ErrReportNotFound
	}
	return report, nil
}

type ResolveReportInput struct {
	Action ModerationAction
	Reject bool
	Note   *string
}

// ResolveReport settles a report, optionally applying a typed action. The
// report flip, the sanction, the epoch bump and the device deactivation
// commit as one transaction; notifications and force-logout run after.
func (s *ModerationService) ResolveReport(ctx context.Context, adminID, reportID uuid.UUID, input ResolveReportInput) (*domain.Report, error) {
	report, err := s.reportRepo.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, ErrReportNotFound
	}

	plan, err := s.buildPlan(ctx, adminID, report, input.Action)
	if err != nil {
		return nil, err
	}

	status := domain.ReportStatusResolved
	if input.Reject {
		status = domain.ReportStatusRejected
	}

	result, err := s.reportRepo.Resolve(ctx, reportID, adminID, status, input.Note, plan)
	if err != nil {
		if errors.Is(err, repository.ErrReportTerminal) {
			return nil, ErrReportTerminal
		}
		return nil, fmt.Errorf("resolving report: %w", err)
	}
	if result == nil {
		return nil, ErrReportNotFound
	}

	s.notifyResolution(ctx, result, plan, status)
	return result.Report, nil
}

// buildPlan turns a typed action into its durable effect against this
// report's targets.
func (s *ModerationService) buildPlan(ctx context.Context, adminID uuid.UUID, report *domain.Report, action ModerationAction) (*repository.SanctionPlan, error) {
	if action == nil {
		return nil, nil
	}

	switch a := action.(type) {
	case UserSanction:
		if !validUserSanction(a.Status) {
			return nil, ErrInvalidStatus
		}
		targetID, err := s.resolveSanctionUser(ctx, report)
		if err != nil {
			return nil, err
		}
		if targetID == nil {
			return nil, ErrNoSanctionTarget
		}
		if *targetID == adminID {
			return nil, ErrCannotSanctionSelf
		}
		if isAdmin, err := s.userRepo.IsAdmin(ctx, *targetID); err != nil {
			return nil, err
		} else if isAdmin {
			return nil, ErrCannotSanctionAdmin
		}
		return &repository.SanctionPlan{UserID: targetID, UserStatus: a.Status}, nil

	case GroupSanction:
		if !validGroupStatus(a.Status) {
			return nil, ErrInvalidStatus
		}
		convID := report.ConversationID
		if report.TargetType == domain.ReportTargetConversation {
			convID = &report.TargetID
		}
		if convID == nil {
			return nil, ErrInvalidReport
		}
		conv, err := s.convRepo.GetByID(ctx, *convID)
		if err != nil {
			return nil, err
		}
		if conv == nil {
			return nil, ErrConversationNotFound
		}
		if !conv.IsGroup() {
			return nil, ErrNotAGroup
		}
		return &repository.SanctionPlan{ConversationID: convID, GroupStatus: a.Status}, nil

	case ContentRemoval:
		switch report.TargetType {
		case domain.ReportTargetMessage:
			return &repository.SanctionPlan{DeleteMessageID: &report.TargetID}, nil
		case domain.ReportTargetNote:
			return &repository.SanctionPlan{DeleteNoteID: &report.TargetID}, nil
		default:
			return nil, ErrInvalidReport
		}

	case Warn:
		return nil, nil

	default:
		return nil, fmt.Errorf("unhandled moderation action %T", action)
	}
}

// resolveSanctionUser maps a report to the user a sanction lands on: a user
// target directly, a note target via the note's owner, a direct-conversation
// target via the member who is not the reporter. Groups carry no implied
// single user.
func (s *ModerationService) resolveSanctionUser(ctx context.Context, report *domain.Report) (*uuid.UUID, error) {
	switch report.TargetType {
	case domain.ReportTargetUser:
		return &report.TargetID, nil

	case domain.ReportTargetNote:
		note, err := s.noteRepo.GetByID(ctx, report.TargetID)
		if err != nil {
			return nil, err
		}
		if note == nil {
			return nil, nil
		}
		return &note.OwnerID, nil

	case domain.ReportTargetConversation:
		conv, err := s.convRepo.GetByID(ctx, report.TargetID)
		if err != nil {
			return nil, err
		}
		if conv == nil || conv.IsGroup() {
			return nil, nil
		}
		memberIDs, err := s.convRepo.ListMemberIDs(ctx, conv.ID)
		if err != nil {
			return nil, err
		}
		for _, id := range memberIDs {
			if id != report.ReporterID {
				return &id, nil
			}
		}
		return nil, nil

	default:
		return nil, nil
	}
}

func (s *ModerationService) notifyResolution(ctx context.Context, result *repository.SanctionResult, plan *repository.SanctionPlan, status string) {
	report := result.Report

	hooks := []func(){func() {
		kind := domain.NotificationReportResolved
		message := "Your report has been reviewed and resolved."
		if status == domain.ReportStatusRejected {
			kind = domain.NotificationReportRejected
			message = "Your report has been reviewed and rejected."
		}
		s.appNotify(ctx, report.ReporterID, kind, message)
	}}

	if plan != nil && plan.UserID != nil {
		sanctioned := *plan.UserID
		kind, message := sanctionNotice(plan.UserStatus)
		hooks = append(hooks, func() { s.appNotify(ctx, sanctioned, kind, message) })

		// A fresh lock or ban forcibly ends the user's live sessions.
		if result.OldUserStatus == domain.UserStatusActive &&
			(plan.UserStatus == domain.UserStatusLocked || plan.UserStatus == domain.UserStatusBanned) {
			hooks = append(hooks, func() { s.forceLogout(ctx, sanctioned, kind, message) })
		}
	}

	runHooks(s.log, hooks...)
}

// SetUserStatus is the direct (report-less) sanction path. Admin accounts
// and the caller's own account are off limits.
func (s *ModerationService) SetUserStatus(ctx context.Context, adminID, targetID uuid.UUID, status string) (*domain.User, error) {
	if !validUserSanction(status) {
		return nil, ErrInvalidStatus
	}
	if targetID == adminID && status != domain.UserStatusActive {
		return nil, ErrCannotSanctionSelf
	}

	target, err := s.userRepo.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, ErrUserNotFound
	}
	if isAdmin, err := s.userRepo.IsAdmin(ctx, targetID); err != nil {
		return nil, err
	} else if isAdmin {
		return nil, ErrCannotSanctionAdmin
	}

	oldStatus, version, err := s.userRepo.Sanction(ctx, targetID, status)
	if err != nil {
		return nil, fmt.Errorf("sanctioning user: %w", err)
	}
	target.Status = status
	target.TokenVersion = version

	if oldStatus == domain.UserStatusActive &&
		(status == domain.UserStatusLocked || status == domain.UserStatusBanned) {
		kind, message := sanctionNotice(status)
		runHooks(s.log,
			func() { s.appNotify(ctx, targetID, kind, message) },
			func() { s.forceLogout(ctx, targetID, kind, message) },
		)
	}

	return target, nil
}

// SetGroupStatus is the direct group sanction. Banning purges the group's
// messages irreversibly.
func (s *ModerationService) SetGroupStatus(ctx context.Context, conversationID uuid.UUID, status string) (*domain.Conversation, error) {
	if !validGroupStatus(status) {
		return nil, ErrInvalidStatus
	}

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

	if err := s.convRepo.SetGroupStatus(ctx, conversationID, status); err != nil {
		return nil, fmt.Errorf("setting group status: %w", err)
	}
	conv.Status = status
	return conv, nil
}

func (s *ModerationService) ListUsers(ctx context.Context, status, query string, limit, offset int) ([]domain.User, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.userRepo.List(ctx, status, query, limit, offset)
}

func (s *ModerationService) ListGroups(ctx context.Context, status, query string, limit, offset int) ([]domain.GroupOverview, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.convRepo.ListGroups(ctx, status, query, limit, offset)
}

func (s *ModerationService) GroupMembers(ctx context.Context, conversationID uuid.UUID) ([]domain.Membership, error) {
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
	return s.convRepo.ListMembers(ctx, conversationID)
}

// AdminStats is the dashboard overview.
type AdminStats struct {
	Users          int `json:"users"`
	Groups         int `json:"groups"`
	PendingReports int `json:"pending_reports"`
}

func (s *ModerationService) Stats(ctx context.Context) (*AdminStats, error) {
	_, users, err := s.userRepo.List(ctx, "", "", 1, 0)
	if err != nil {
		return nil, err
	}
	_, groups, err := s.convRepo.ListGroups(ctx, "", "", 1, 0)
	if err != nil {
		return nil, err
	}
	_, pending, err := s.reportRepo.List(ctx, "pending", 1, 0)
	if err != nil {
		return nil, err
	}
	return &AdminStats{Users: users, Groups: groups, PendingReports: pending}, nil
}

func (s *ModerationService) appNotify(ctx context.Context, userID uuid.UUID, kind, message string) {
	n := &domain.AppNotification{
		ID:        uuid.New(),
		UserID:    userID,
		Kind:      kind,
		Message:   message,
		CreatedAt: time.Now(),
	}
	if err := s.notifRepo.Create(ctx, n); err != nil {
		s.log.Errorw("creating app notification", "user_id", userID, "kind", kind, "error", err)
	}
}

func (s *ModerationService) forceLogout(ctx context.Context, userID uuid.UUID, reason, message string) {
	if s.notifier != nil {
		s.notifier.ForceLogout(userID, reason, message)
	}
	if s.pusher != nil {
		s.pusher.ForceLogout(ctx, userID, reason, message)
	}
}

func sanctionNotice(status string) (kind, message string) {
	switch status {
	case domain.UserStatusLocked:
		return domain.NotificationUserLocked,
			"Your account has been temporarily locked for violating the terms of use."
	case domain.UserStatusBanned:
		return domain.NotificationUserBanned,
			"Your account has been permanently banned for a serious violation."
	default:
		return domain.NotificationUserUnlocked,
			"Your account has been reactivated."
	}
}

func validUserSanction(status string) bool {
	switch status {
	case domain.UserStatusActive, domain.UserStatusLocked, domain.UserStatusBanned:
		return true
	}
	return false
}

func validGroupStatus(status string) bool {
	switch status {
	case domain.ConversationStatusActive, domain.ConversationStatusLocked, domain.ConversationStatusBanned:
		return true
	}
	return false
}
