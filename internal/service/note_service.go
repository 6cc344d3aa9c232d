package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/repository"
	"go.uber.org/zap"
)

const (
	noteMaxLen = 300
	noteTTL    = 24 * time.Hour
)

var (
	ErrNoteEmpty    = errors.New("a note needs text")
	ErrNoteTooLong  = errors.New("note text is too long")
	ErrNoteNotFound = errors.New("note not found")
)

// NoteService manages 24-hour status notes: one live note per user,
// visible to friends, replaced on repost.
type NoteService struct {
	noteRepo  repository.NoteRepository
	relRepo   repository.RelationshipRepository
	notifRepo repository.NotificationRepository
	log       *zap.SugaredLogger
}

func NewNoteService(
	noteRepo repository.NoteRepository,
	relRepo repository.RelationshipRepository,
	notifRepo repository.NotificationRepository,
	log *zap.SugaredLogger,
) *NoteService {
	return &NoteService{
		noteRepo:  noteRepo,
		relRepo:   relRepo,
		notifRepo: notifRepo,
		log:       log,
	}
}

// Upsert posts the user's note, replacing any previous one and restarting
// the 24-hour clock. Friends are notified about the new note.
func (s *NoteService) Upsert(ctx context.Context, ownerID uuid.UUID, text string) (*domain.Note, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNoteEmpty
	}
	if utf8.RuneCountInString(text) > noteMaxLen {
		return nil, ErrNoteTooLong
	}

	now := time.Now()
	note := &domain.Note{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Text:      text,
		CreatedAt: now,
		ExpiresAt: now.Add(noteTTL),
	}
	if err := s.noteRepo.Upsert(ctx, note); err != nil {
		return nil, err
	}

	s.notifyFriends(ctx, ownerID)

	full, err := s.noteRepo.GetByOwner(ctx, ownerID)
	if err != nil || full == nil {
		return note, nil
	}
	return full, nil
}

// Mine returns the caller's current note, expired or not.
func (s *NoteService) Mine(ctx context.Context, userID uuid.UUID) (*domain.Note, error) {
	note, err := s.noteRepo.GetByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, ErrNoteNotFound
	}
	return note, nil
}

// Feed returns the unexpired notes of the caller and their friends.
func (s *NoteService) Feed(ctx context.Context, userID uuid.UUID) ([]domain.Note, error) {
	notes, err := s.noteRepo.ListFeed(ctx, userID)
	if err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []domain.Note{}
	}
	return notes, nil
}

// Delete removes the caller's own note.
func (s *NoteService) Delete(ctx context.Context, userID uuid.UUID) error {
	deleted, err := s.noteRepo.DeleteByOwner(ctx, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNoteNotFound
	}
	return nil
}

func (s *NoteService) notifyFriends(ctx context.Context, ownerID uuid.UUID) {
	friends, err := s.relRepo.ListFriends(ctx, ownerID)
	if err != nil {
		s.log.Errorw("listing friends for note notification", "owner_id", ownerID, "error", err)
		return
	}
	for _, f := range friends {
		n := &domain.AppNotification{
			ID:        uuid.New(),
			UserID:    f.UserID,
			Kind:      domain.NotificationFriendNote,
			Message:   "posted a new note.",
			CreatedAt: time.Now(),
		}
		if err := s.notifRepo.Create(ctx, n); err != nil {
			s.log.Errorw("creating note notification", "user_id", f.UserID, "error", err)
		}
	}
}
