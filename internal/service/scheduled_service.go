package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/repository"
	"go.uber.org/zap"
)

var (
	ErrScheduledNotFound = errors.New("scheduled message not found or not pending")
	ErrScheduleInPast    = errors.New("schedule time must be in the future")
	ErrScheduleNoText    = errors.New("a scheduled message needs text")
)

type ScheduledService struct {
	schedRepo repository.ScheduledRepository
	msgRepo   repository.MessageRepository
	convRepo  repository.ConversationRepository
	notifier  Notifier
	pusher    Pusher
	log       *zap.SugaredLogger
}

func NewScheduledService(
	schedRepo repository.ScheduledRepository,
	msgRepo repository.MessageRepository,
	convRepo repository.ConversationRepository,
	log *zap.SugaredLogger,
) *ScheduledService {
	return &ScheduledService{
		schedRepo: schedRepo,
		msgRepo:   msgRepo,
		convRepo:  convRepo,
		log:       log,
	}
}

func (s *ScheduledService) SetNotifier(n Notifier) {
	s.notifier = n
}

func (s *ScheduledService) SetPusher(p Pusher) {
	s.pusher = p
}

type ScheduleMessageInput struct {
	ConversationID uuid.UUID  `json:"conversation_id"`
	Text           string     `json:"text"`
	AssetURL       *string    `json:"asset_url,omitempty"`
	ReplyToID      *uuid.UUID `json:"reply_to_id,omitempty"`
	ScheduleAt     time.Time  `json:"schedule_at"`
}

func (s *ScheduledService) Create(ctx context.Context, userID uuid.UUID, input ScheduleMessageInput) (*domain.ScheduledMessage, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, ErrScheduleNoText
	}
	if !input.ScheduleAt.After(time.Now()) {
		return nil, ErrScheduleInPast
	}

	conv, err := s.convRepo.GetByID(ctx, input.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	member, err := s.convRepo.GetMember(ctx, input.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrNotAMember
	}
	if conv.IsGroup() {
		switch conv.Status {
		case domain.ConversationStatusLocked:
			return nil, ErrGroupLocked
		case domain.ConversationStatusBanned:
			return nil, ErrGroupBanned
		}
	}

	sm := &domain.ScheduledMessage{
		ID:             uuid.New(),
		UserID:         userID,
		ConversationID: input.ConversationID,
		Text:           &text,
		AssetURL:       input.AssetURL,
		ReplyToID:      input.ReplyToID,
		ScheduleAt:     input.ScheduleAt,
		Status:         domain.ScheduledStatusPending,
		CreatedAt:      time.Now(),
	}
	if err := s.schedRepo.Create(ctx, sm); err != nil {
		return nil, err
	}
	return sm, nil
}

func (s *ScheduledService) ListPending(ctx context.Context, userID uuid.UUID, conversationID *uuid.UUID) ([]domain.ScheduledMessage, error) {
	items, err := s.schedRepo.ListPending(ctx, userID, conversationID, 200)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.ScheduledMessage{}
	}
	return items, nil
}

func (s *ScheduledService) Cancel(ctx context.Context, id, userID uuid.UUID) error {
	ok, err := s.schedRepo.Cancel(ctx, id, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrScheduledNotFound
	}
	return nil
}

func (s *ScheduledService) Reschedule(ctx context.Context, id, userID uuid.UUID, at time.Time) error {
	if !at.After(time.Now()) {
		return ErrScheduleInPast
	}
	ok, err := s.schedRepo.Reschedule(ctx, id, userID, at)
	if err != nil {
		return err
	}
	if !ok {
		return ErrScheduledNotFound
	}
	return nil
}

// SendNow promotes one pending item immediately, with the same
// membership/group-status guard and transactional status flip as the sweep.
func (s *ScheduledService) SendNow(ctx context.Context, id, userID uuid.UUID) (*domain.Message, error) {
	sm, err := s.schedRepo.SendNow(ctx, id, userID)
	if err != nil {
		return nil, mapGuardErr(err)
	}
	if sm == nil {
		return nil, ErrScheduledNotFound
	}

	full, err := s.msgRepo.GetByID(ctx, *sm.SentMessageID)
	if err != nil {
		return nil, err
	}

	s.broadcastSent(ctx, full)
	return full, nil
}

// Run is the recurring sweep. One tick claims a batch of due items with
// skip-locked semantics and settles each inside the claim transaction;
// fan-out and push run only after the commit, each item isolated.
func (s *ScheduledService) Run(ctx context.Context, interval time.Duration, batch int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Infow("scheduled message worker started", "interval", interval, "batch", batch)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduled message worker stopped")
			return nil
		case <-ticker.C:
			s.sweep(ctx, batch)
		}
	}
}

func (s *ScheduledService) sweep(ctx context.Context, batch int) {
	outcomes, err := s.schedRepo.ClaimDueBatch(ctx, batch)
	if err != nil {
		s.log.Errorw("claiming due scheduled messages", "error", err)
		return
	}

	for _, out := range outcomes {
		if !out.Sent {
			s.log.Infow("scheduled message canceled by sweep",
				"scheduled_id", out.Scheduled.ID,
				"conversation_id", out.Scheduled.ConversationID,
			)
			continue
		}

		full, err := s.msgRepo.GetByID(ctx, *out.MessageID)
		if err != nil || full == nil {
			s.log.Errorw("fetching swept message", "message_id", out.MessageID, "error", err)
			continue
		}
		s.broadcastSent(ctx, full)
	}
}

func (s *ScheduledService) broadcastSent(ctx context.Context, msg *domain.Message) {
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
