package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/relay/internal/domain"
)

type NotificationRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationRepo(pool *pgxpool.Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

func (r *NotificationRepo) Create(ctx context.Context, n *domain.AppNotification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_app_notifications (id, user_id, kind, message, is_read, created_at)
		VALUES ($1, $2, $3, $4, false, $5)`,
		n.ID, n.UserID, n.Kind, n.Message, n.CreatedAt,
	)
	return err
}

func (r *NotificationRepo) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.AppNotification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, kind, message, is_read, created_at
		FROM user_app_notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.AppNotification
	for rows.Next() {
		var n domain.AppNotification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

func (r *NotificationRepo) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		_, err := r.pool.Exec(ctx,
			`UPDATE user_app_notifications SET is_read = true WHERE user_id = $1`, userID)
		return err
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE user_app_notifications SET is_read = true WHERE user_id = $1 AND id = ANY($2)`,
		userID, ids,
	)
	return err
}
