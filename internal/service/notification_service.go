package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/repository"
)

type NotificationService struct {
	notifRepo repository.NotificationRepository
}

func NewNotificationService(notifRepo repository.NotificationRepository) *NotificationService {
	return &NotificationService{notifRepo: notifRepo}
}

func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.AppNotification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.notifRepo.List(ctx, userID, limit, offset)
}

// MarkRead marks the given notifications as read, or every unread one when
// ids is empty.
func (s *NotificationService) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error {
	return s.notifRepo.MarkRead(ctx, userID, ids)
}
