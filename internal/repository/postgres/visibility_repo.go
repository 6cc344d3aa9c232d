package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type VisibilityRepo struct {
	pool *pgxpool.Pool
}

func NewVisibilityRepo(pool *pgxpool.Pool) *VisibilityRepo {
	return &VisibilityRepo{pool: pool}
}

func (r *VisibilityRepo) ClearedAt(ctx context.Context, userID, conversationID uuid.UUID) (*time.Time, error) {
	var at time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT cleared_at FROM user_conversation_clears WHERE user_id = $1 AND conversation_id = $2`,
		userID, conversationID,
	).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &at, nil
}

func (r *VisibilityRepo) SetClearedAt(ctx context.Context, userID, conversationID uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_conversation_clears (user_id, conversation_id, cleared_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, conversation_id) DO UPDATE SET cleared_at = EXCLUDED.cleared_at`,
		userID, conversationID, at,
	)
	return err
}

func (r *VisibilityRepo) Hide(ctx context.Context, userID, conversationID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO hidden_conversations (user_id, conversation_id, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT DO NOTHING`,
		userID, conversationID,
	)
	return err
}

func (r *VisibilityRepo) Unhide(ctx context.Context, userID, conversationID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM hidden_conversations WHERE user_id = $1 AND conversation_id = $2`,
		userID, conversationID,
	)
	return err
}

func (r *VisibilityRepo) ListHidden(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT conversation_id FROM hidden_conversations WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *VisibilityRepo) GetPINHash(ctx context.Context, userID uuid.UUID) (*string, error) {
	var hash string
	err := r.pool.QueryRow(ctx,
		`SELECT pin_hash FROM user_hidden_settings WHERE user_id = $1`, userID,
	).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &hash, nil
}

func (r *VisibilityRepo) SetPINHash(ctx context.Context, userID uuid.UUID, hash string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_hidden_settings (user_id, pin_hash, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET pin_hash = EXCLUDED.pin_hash, updated_at = now()`,
		userID, hash,
	)
	return err
}

func (r *VisibilityRepo) ClearPIN(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_hidden_settings WHERE user_id = $1`, userID)
	return err
}

func (r *VisibilityRepo) WipeHidden(ctx context.Context, userID uuid.UUID, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO user_conversation_clears (user_id, conversation_id, cleared_at)
		SELECT h.user_id, h.conversation_id, $2
		FROM hidden_conversations h
		WHERE h.user_id = $1
		ON CONFLICT (user_id, conversation_id) DO UPDATE SET cleared_at = EXCLUDED.cleared_at`,
		userID, at,
	); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM hidden_conversations WHERE user_id = $1`, userID,
	); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM user_hidden_settings WHERE user_id = $1`, userID,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
