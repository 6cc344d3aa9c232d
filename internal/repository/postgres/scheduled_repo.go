package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/repository"
)

type ScheduledRepo struct {
	pool *pgxpool.Pool
}

func NewScheduledRepo(pool *pgxpool.Pool) *ScheduledRepo {
	return &ScheduledRepo{pool: pool}
}

const scheduledColumns = `id, user_id, conversation_id, text, asset_url, reply_to_id, reply_to_note, schedule_at, status, sent_message_id, created_at`

func scanScheduled(row pgx.Row) (*domain.ScheduledMessage, error) {
	var sm domain.ScheduledMessage
	var replyNote []byte
	err := row.Scan(
		&sm.ID, &sm.UserID, &sm.ConversationID, &sm.Text, &sm.AssetURL,
		&sm.ReplyToID, &replyNote, &sm.ScheduleAt, &sm.Status, &sm.SentMessageID, &sm.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if replyNote != nil {
		var snap domain.NoteSnapshot
		if err := json.Unmarshal(replyNote, &snap); err == nil {
			sm.ReplyToNote = &snap
		}
	}
	return &sm, nil
}

func (r *ScheduledRepo) Create(ctx context.Context, sm *domain.ScheduledMessage) error {
	var replyNote []byte
	if sm.ReplyToNote != nil {
		var err error
		replyNote, err = json.Marshal(sm.ReplyToNote)
		if err != nil {
			return err
		}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO scheduled_messages (id, user_id, conversation_id, text, asset_url, reply_to_id, reply_to_note, schedule_at, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', $9)`,
		sm.ID, sm.UserID, sm.ConversationID, sm.Text, sm.AssetURL,
		sm.ReplyToID, replyNote, sm.ScheduleAt, sm.CreatedAt,
	)
	return err
}

func (r *ScheduledRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ScheduledMessage, error) {
	query := `SELECT ` + scheduledColumns + ` FROM scheduled_messages WHERE id = $1`
	return scanScheduled(r.pool.QueryRow(ctx, query, id))
}

func (r *ScheduledRepo) ListPending(ctx context.Context, userID uuid.UUID, conversationID *uuid.UUID, limit int) ([]domain.ScheduledMessage, error) {
	query := `
		SELECT ` + scheduledColumns + `
		FROM scheduled_messages
		WHERE user_id = $1 AND status = 'pending'
			AND ($2::uuid IS NULL OR conversation_id = $2)
		ORDER BY schedule_at ASC
		LIMIT $3`
	rows, err := r.pool.Query(ctx, query, userID, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.ScheduledMessage
	for rows.Next() {
		sm, err := scanScheduled(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *sm)
	}
	return items, rows.Err()
}

func (r *ScheduledRepo) Cancel(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE scheduled_messages SET status = 'canceled'
		WHERE id = $1 AND user_id = $2 AND status = 'pending'`,
		id, userID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ScheduledRepo) Reschedule(ctx context.Context, id, userID uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE scheduled_messages SET schedule_at = $3
		WHERE id = $1 AND user_id = $2 AND status = 'pending'`,
		id, userID, at,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ScheduledRepo) SendNow(ctx context.Context, id, userID uuid.UUID) (*domain.ScheduledMessage, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	sm, err := scanScheduled(tx.QueryRow(ctx,
		`SELECT `+scheduledColumns+` FROM scheduled_messages WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		id, userID,
	))
	if err != nil {
		return nil, err
	}
	if sm == nil || sm.Status != domain.ScheduledStatusPending {
		return nil, nil
	}

	msgID, err := promoteScheduled(ctx, tx, sm)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	sm.Status = domain.ScheduledStatusSent
	sm.SentMessageID = msgID
	return sm, nil
}

// promoteScheduled re-checks membership and group status inside the caller's
// transaction, inserts the message and flips the item to sent.
func promoteScheduled(ctx context.Context, tx pgx.Tx, sm *domain.ScheduledMessage) (*uuid.UUID, error) {
	var convType, convStatus string
	err := tx.QueryRow(ctx, `
		SELECT c.type, c.status
		FROM conversations c
		JOIN conversation_members cm ON cm.conversation_id = c.id
		WHERE c.id = $1 AND cm.user_id = $2`,
		sm.ConversationID, sm.UserID,
	).Scan(&convType, &convStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotMember
	}
	if err != nil {
		return nil, err
	}
	if convType == domain.ConversationTypeGroup && convStatus != domain.ConversationStatusActive {
		if convStatus == domain.ConversationStatusBanned {
			return nil, repository.ErrConversationBanned
		}
		return nil, repository.ErrConversationLocked
	}

	msg := &domain.Message{
		ID:             uuid.New(),
		ConversationID: sm.ConversationID,
		SenderID:       sm.UserID,
		Type:           domain.MessageTypeText,
		Text:           sm.Text,
		AssetURL:       sm.AssetURL,
		ReplyToID:      sm.ReplyToID,
		ReplyToNote:    sm.ReplyToNote,
		CreatedAt:      time.Now(),
	}
	if sm.AssetURL != nil {
		msg.Type = domain.MessageTypeImage
	}
	if err := insertMessage(ctx, tx, msg); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE scheduled_messages SET status = 'sent', sent_message_id = $2 WHERE id = $1`,
		sm.ID, msg.ID,
	); err != nil {
		return nil, err
	}
	return &msg.ID, nil
}

func (r *ScheduledRepo) ClaimDueBatch(ctx context.Context, batch int) ([]repository.SweepOutcome, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Skip-locked claim: items another in-flight sweep already holds are
	// left alone and picked up next time.
	rows, err := tx.Query(ctx, `
		SELECT `+scheduledColumns+`
		FROM scheduled_messages
		WHERE status = 'pending' AND schedule_at <= now()
		ORDER BY schedule_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED`,
		batch,
	)
	if err != nil {
		return nil, err
	}
	var due []domain.ScheduledMessage
	for rows.Next() {
		sm, err := scanScheduled(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		due = append(due, *sm)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Each item settles inside its own savepoint so one failing item rolls
	// back alone instead of stalling the whole batch.
	var outcomes []repository.SweepOutcome
	for i := range due {
		sm := &due[i]
		sp, err := tx.Begin(ctx)
		if err != nil {
			return nil, err
		}
		msgID, err := promoteScheduled(ctx, sp, sm)
		switch {
		case errors.Is(err, repository.ErrNotMember),
			errors.Is(err, repository.ErrConversationLocked),
			errors.Is(err, repository.ErrConversationBanned):
			if _, err := sp.Exec(ctx,
				`UPDATE scheduled_messages SET status = 'canceled' WHERE id = $1`, sm.ID,
			); err != nil {
				return nil, err
			}
			if err := sp.Commit(ctx); err != nil {
				return nil, err
			}
			sm.Status = domain.ScheduledStatusCanceled
			outcomes = append(outcomes, repository.SweepOutcome{Scheduled: *sm})
		case err != nil:
			// Leave the item pending for the next sweep.
			if rerr := sp.Rollback(ctx); rerr != nil {
				return nil, rerr
			}
		default:
			if err := sp.Commit(ctx); err != nil {
				return nil, err
			}
			sm.Status = domain.ScheduledStatusSent
			sm.SentMessageID = msgID
			outcomes = append(outcomes, repository.SweepOutcome{Scheduled: *sm, Sent: true, MessageID: msgID})
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return outcomes, nil
}
