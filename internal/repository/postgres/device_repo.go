package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/relay/internal/domain"
)

type DeviceRepo struct {
	pool *pgxpool.Pool
}

func NewDeviceRepo(pool *pgxpool.Pool) *DeviceRepo {
	return &DeviceRepo{pool: pool}
}

func (r *DeviceRepo) Register(ctx context.Context, userID uuid.UUID, token, platform string) (*string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// One active device per user. Lock the user's current row first so two
	// concurrent registrations serialize.
	var displaced *string
	var old string
	err = tx.QueryRow(ctx,
		`SELECT token FROM user_devices WHERE user_id = $1 AND token <> $2 FOR UPDATE`,
		userID, token,
	).Scan(&old)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err == nil {
		displaced = &old
	}

	// The same physical device may have belonged to someone else.
	if _, err := tx.Exec(ctx,
		`DELETE FROM user_devices WHERE token = $1 AND user_id <> $2`, token, userID,
	); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM user_devices WHERE user_id = $1`, userID,
	); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO user_devices (id, user_id, token, platform, is_active, registered_at)
		VALUES ($1, $2, $3, $4, true, now())`,
		uuid.New(), userID, token, platform,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return displaced, nil
}

func (r *DeviceRepo) ActiveTokens(ctx context.Context, userIDs []uuid.UUID, kind string) ([]string, error) {
	var toggle string
	switch kind {
	case "dm":
		toggle = "dm_push_enabled"
	case "group":
		toggle = "group_push_enabled"
	case "call":
		toggle = "call_push_enabled"
	}
	query := `
		SELECT d.token
		FROM user_devices d
		LEFT JOIN user_notification_settings s ON s.user_id = d.user_id
		WHERE d.user_id = ANY($1)
			AND d.is_active`
	if toggle != "" {
		query += ` AND COALESCE(s.` + toggle + `, true)`
	}
	rows, err := r.pool.Query(ctx, query, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (r *DeviceRepo) Deactivate(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE user_devices SET is_active = false WHERE user_id = $1`, userID)
	return err
}

func (r *DeviceRepo) GetSettings(ctx context.Context, userID uuid.UUID) (*domain.NotificationSettings, error) {
	s := &domain.NotificationSettings{
		UserID:           userID,
		DMPushEnabled:    true,
		GroupPushEnabled: true,
		CallPushEnabled:  true,
	}
	err := r.pool.QueryRow(ctx, `
		SELECT dm_push_enabled, group_push_enabled, call_push_enabled
		FROM user_notification_settings WHERE user_id = $1`,
		userID,
	).Scan(&s.DMPushEnabled, &s.GroupPushEnabled, &s.CallPushEnabled)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return s, nil
}

func (r *DeviceRepo) UpdateSettings(ctx context.Context, s *domain.NotificationSettings) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_notification_settings (user_id, dm_push_enabled, group_push_enabled, call_push_enabled)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			dm_push_enabled = EXCLUDED.dm_push_enabled,
			group_push_enabled = EXCLUDED.group_push_enabled,
			call_push_enabled = EXCLUDED.call_push_enabled`,
		s.UserID, s.DMPushEnabled, s.GroupPushEnabled, s.CallPushEnabled,
	)
	return err
}
