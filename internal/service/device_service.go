package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/repository"
	"go.uber.org/zap"
)

var ErrInvalidDevice = errors.New("device token or platform is invalid")

type DeviceService struct {
	deviceRepo repository.DeviceRepository
	pusher     Pusher
	log        *zap.SugaredLogger
}

func NewDeviceService(deviceRepo repository.DeviceRepository, log *zap.SugaredLogger) *DeviceService {
	return &DeviceService{deviceRepo: deviceRepo, log: log}
}

func (s *DeviceService) SetPusher(p Pusher) {
	s.pusher = p
}

// Register binds the push token to the user as their single active device.
// When the token previously belonged to another account, that account's
// session is ended so two users never share one device.
func (s *DeviceService) Register(ctx context.Context, userID uuid.UUID, token, platform string) error {
	token = strings.TrimSpace(token)
	switch platform {
	case "ios", "android", "web":
	default:
		return ErrInvalidDevice
	}
	if token == "" {
		return ErrInvalidDevice
	}

	displaced, err := s.deviceRepo.Register(ctx, userID, token, platform)
	if err != nil {
		return fmt.Errorf("registering device: %w", err)
	}

	if displaced != nil && s.pusher != nil {
		old := *displaced
		runHooks(s.log, func() {
			s.pusher.ForceLogoutToken(ctx, old, "DEVICE_REPLACED",
				"You have been signed out because your account was used on another device.")
		})
	}
	return nil
}

func (s *DeviceService) Unregister(ctx context.Context, userID uuid.UUID) error {
	return s.deviceRepo.Deactivate(ctx, userID)
}

func (s *DeviceService) GetSettings(ctx context.Context, userID uuid.UUID) (*domain.NotificationSettings, error) {
	return s.deviceRepo.GetSettings(ctx, userID)
}

func (s *DeviceService) UpdateSettings(ctx context.Context, settings *domain.NotificationSettings) (*domain.NotificationSettings, error) {
	if err := s.deviceRepo.UpdateSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("updating notification settings: %w", err)
	}
	return settings, nil
}
