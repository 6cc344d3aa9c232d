package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/relay/internal/domain"
)

type RelationshipRepo struct {
	pool *pgxpool.Pool
}

func NewRelationshipRepo(pool *pgxpool.Pool) *RelationshipRepo {
	return &RelationshipRepo{pool: pool}
}

func (r *RelationshipRepo) IsFriend(ctx context.Context, a, b uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_friends WHERE user_id = $1 AND friend_id = $2)`,
		a, b,
	).Scan(&exists)
	return exists, err
}

func (r *RelationshipRepo) Blocks(ctx context.Context, a, b uuid.UUID) (bool, bool, error) {
	var aBlocksB, bBlocksA bool
	err := r.pool.QueryRow(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM user_blocks WHERE blocker_id = $1 AND blocked_id = $2),
			EXISTS (SELECT 1 FROM user_blocks WHERE blocker_id = $2 AND blocked_id = $1)`,
		a, b,
	).Scan(&aBlocksB, &bBlocksA)
	return aBlocksB, bBlocksA, err
}

func (r *RelationshipRepo) PendingInvite(ctx context.Context, senderID, receiverID uuid.UUID) (*domain.Invite, error) {
	query := `
		SELECT id, sender_id, receiver_id, status, created_at, updated_at
		FROM contact_invites
		WHERE sender_id = $1 AND receiver_id = $2 AND status = 'pending'`
	var inv domain.Invite
	err := r.pool.QueryRow(ctx, query, senderID, receiverID).Scan(
		&inv.ID, &inv.SenderID, &inv.ReceiverID, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *RelationshipRepo) UpsertInvite(ctx context.Context, senderID, receiverID uuid.UUID) (*domain.Invite, error) {
	// Re-sending after a decline or cancel revives the same row.
	query := `
		INSERT INTO contact_invites (id, sender_id, receiver_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'pending', now(), now())
		ON CONFLICT (sender_id, receiver_id)
		DO UPDATE SET status = 'pending', updated_at = now()
		RETURNING id, sender_id, receiver_id, status, created_at, updated_at`
	var inv domain.Invite
	err := r.pool.QueryRow(ctx, query, uuid.New(), senderID, receiverID).Scan(
		&inv.ID, &inv.SenderID, &inv.ReceiverID, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *RelationshipRepo) Accept(ctx context.Context, inviteID, receiverID uuid.UUID) (*domain.Invite, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var inv domain.Invite
	err = tx.QueryRow(ctx, `
		SELECT id, sender_id, receiver_id, status, created_at, updated_at
		FROM contact_invites
		WHERE id = $1 AND receiver_id = $2 AND status = 'pending'
		FOR UPDATE`,
		inviteID, receiverID,
	).Scan(&inv.ID, &inv.SenderID, &inv.ReceiverID, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE contact_invites SET status = 'accepted', updated_at = now() WHERE id = $1`,
		inv.ID,
	); err != nil {
		return nil, err
	}

	// Friendship is materialized in both directions.
	if _, err := tx.Exec(ctx, `
		INSERT INTO user_friends (user_id, friend_id, created_at)
		VALUES ($1, $2, now()), ($2, $1, now())
		ON CONFLICT DO NOTHING`,
		inv.SenderID, inv.ReceiverID,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	inv.Status = domain.InviteStatusAccepted
	return &inv, nil
}

func (r *RelationshipRepo) Decline(ctx context.Context, inviteID, receiverID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE contact_invites SET status = 'declined', updated_at = now()
		WHERE id = $1 AND receiver_id = $2 AND status = 'pending'`,
		inviteID, receiverID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *RelationshipRepo) CancelSent(ctx context.Context, inviteID, senderID uuid.UUID) (*uuid.UUID, error) {
	var receiverID uuid.UUID
	err := r.pool.QueryRow(ctx, `
		UPDATE contact_invites SET status = 'canceled', updated_at = now()
		WHERE id = $1 AND sender_id = $2 AND status = 'pending'
		RETURNING receiver_id`,
		inviteID, senderID,
	).Scan(&receiverID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &receiverID, nil
}

func (r *RelationshipRepo) Block(ctx context.Context, blockerID, targetID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO user_blocks (blocker_id, blocked_id, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT DO NOTHING`,
		blockerID, targetID,
	); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM user_friends
		WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)`,
		blockerID, targetID,
	); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE contact_invites SET status = 'canceled', updated_at = now()
		WHERE status = 'pending'
			AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))`,
		blockerID, targetID,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *RelationshipRepo) Unblock(ctx context.Context, blockerID, targetID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM user_blocks WHERE blocker_id = $1 AND blocked_id = $2`,
		blockerID, targetID,
	)
	return err
}

func (r *RelationshipRepo) RemoveFriendship(ctx context.Context, a, b uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM user_friends
		WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)`,
		a, b,
	)
	return err
}

func (r *RelationshipRepo) ListFriends(ctx context.Context, userID uuid.UUID) ([]domain.Friend, error) {
	query := `
		SELECT u.id, u.display_name, u.avatar_url, u.status, f.created_at
		FROM user_friends f
		JOIN users u ON u.id = f.friend_id
		WHERE f.user_id = $1
		ORDER BY LOWER(u.display_name)`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var friends []domain.Friend
	for rows.Next() {
		var f domain.Friend
		if err := rows.Scan(&f.UserID, &f.DisplayName, &f.AvatarURL, &f.Status, &f.Since); err != nil {
			return nil, err
		}
		friends = append(friends, f)
	}
	return friends, rows.Err()
}

func (r *RelationshipRepo) ListInvites(ctx context.Context, userID uuid.UUID, received bool) ([]domain.Invite, error) {
	who := "receiver_id"
	if !received {
		who = "sender_id"
	}
	query := `
		SELECT i.id, i.sender_id, i.receiver_id, i.status, i.created_at, i.updated_at,
			s.display_name, s.avatar_url, rc.display_name, rc.avatar_url
		FROM contact_invites i
		JOIN users s ON s.id = i.sender_id
		JOIN users rc ON rc.id = i.receiver_id
		WHERE i.` + who + ` = $1 AND i.status = 'pending'
		ORDER BY i.created_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invites []domain.Invite
	for rows.Next() {
		var inv domain.Invite
		if err := rows.Scan(
			&inv.ID, &inv.SenderID, &inv.ReceiverID, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt,
			&inv.SenderDisplayName, &inv.SenderAvatarURL, &inv.ReceiverDisplayName, &inv.ReceiverAvatarURL,
		); err != nil {
			return nil, err
		}
		invites = append(invites, inv)
	}
	return invites, rows.Err()
}

func (r *RelationshipRepo) SearchUsers(ctx context.Context, userID uuid.UUID, query string, limit int) ([]domain.UserSearchResult, error) {
	q := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	sql := `
		SELECT u.id, u.username, u.display_name, u.avatar_url,
			EXISTS (
				SELECT 1 FROM contact_invites i
				WHERE i.sender_id = $1 AND i.receiver_id = u.id AND i.status = 'pending'
			) AS invited_by_me,
			(
				SELECT i.id FROM contact_invites i
				WHERE i.sender_id = u.id AND i.receiver_id = $1 AND i.status = 'pending'
			) AS inbound_invite_id
		FROM users u
		WHERE u.id <> $1
			AND u.status = 'active'
			AND (LOWER(u.username) LIKE $2 OR LOWER(u.display_name) LIKE $2)
			AND NOT EXISTS (SELECT 1 FROM user_friends f WHERE f.user_id = $1 AND f.friend_id = u.id)
			AND NOT EXISTS (
				SELECT 1 FROM user_blocks b
				WHERE (b.blocker_id = $1 AND b.blocked_id = u.id)
					OR (b.blocker_id = u.id AND b.blocked_id = $1)
			)
		ORDER BY LOWER(u.display_name)
		LIMIT $3`
	rows, err := r.pool.Query(ctx, sql, userID, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.UserSearchResult
	for rows.Next() {
		var res domain.UserSearchResult
		if err := rows.Scan(&res.ID, &res.Username, &res.DisplayName, &res.AvatarURL, &res.InvitedByMe, &res.InboundInviteID); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}
