package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/relay/internal/domain"
)

type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

func (r *ConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	query := `SELECT id, type, status, title, avatar_url, created_at FROM conversations WHERE id = $1`
	var c domain.Conversation
	err := r.pool.QueryRow(ctx, query, id).Scan(&c.ID, &c.Type, &c.Status, &c.Title, &c.AvatarURL, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ConversationRepo) GetMember(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Membership, error) {
	query := `
		SELECT conversation_id, user_id, role, is_muted, last_read_msg_id, joined_at
		FROM conversation_members
		WHERE conversation_id = $1 AND user_id = $2`
	var m domain.Membership
	err := r.pool.QueryRow(ctx, query, conversationID, userID).Scan(
		&m.ConversationID, &m.UserID, &m.Role, &m.IsMuted, &m.LastReadMsgID, &m.JoinedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *ConversationRepo) ListMembers(ctx context.Context, conversationID uuid.UUID) ([]domain.Membership, error) {
	query := `
		SELECT m.conversation_id, m.user_id, m.role, m.is_muted, m.last_read_msg_id, m.joined_at,
			u.display_name, u.avatar_url, u.status
		FROM conversation_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.conversation_id = $1
		ORDER BY (m.role = 'owner') DESC, (m.role = 'admin') DESC, LOWER(u.display_name)`
	rows, err := r.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []domain.Membership
	for rows.Next() {
		var m domain.Membership
		if err := rows.Scan(
			&m.ConversationID, &m.UserID, &m.Role, &m.IsMuted, &m.LastReadMsgID, &m.JoinedAt,
			&m.DisplayName, &m.AvatarURL, &m.UserStatus,
		); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *ConversationRepo) ListMemberIDs(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM conversation_members WHERE conversation_id = $1`, conversationID)
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

func (r *ConversationRepo) FindDirect(ctx context.Context, a, b uuid.UUID) (*domain.Conversation, error) {
	query := `
		SELECT c.id, c.type, c.status, c.title, c.avatar_url, c.created_at
		FROM conversations c
		JOIN conversation_members ma ON ma.conversation_id = c.id AND ma.user_id = $1
		JOIN conversation_members mb ON mb.conversation_id = c.id AND mb.user_id = $2
		WHERE c.type = 'direct'
		LIMIT 1`
	var c domain.Conversation
	err := r.pool.QueryRow(ctx, query, a, b).Scan(&c.ID, &c.Type, &c.Status, &c.Title, &c.AvatarURL, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ConversationRepo) CreateDirect(ctx context.Context, a, b uuid.UUID) (*domain.Conversation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Serialize concurrent first contacts for the same pair, then re-check:
	// the loser of the race returns the winner's conversation instead of
	// creating a second one.
	lo, hi := a, b
	if hi.String() < lo.String() {
		lo, hi = hi, lo
	}
	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		lo.String()+":"+hi.String(),
	); err != nil {
		return nil, err
	}

	var existing domain.Conversation
	err = tx.QueryRow(ctx, `
		SELECT c.id, c.type, c.status, c.title, c.avatar_url, c.created_at
		FROM conversations c
		JOIN conversation_members ma ON ma.conversation_id = c.id AND ma.user_id = $1
		JOIN conversation_members mb ON mb.conversation_id = c.id AND mb.user_id = $2
		WHERE c.type = 'direct'
		LIMIT 1`, a, b,
	).Scan(&existing.ID, &existing.Type, &existing.Status, &existing.Title, &existing.AvatarURL, &existing.CreatedAt)
	if err == nil {
		return &existing, tx.Commit(ctx)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	conv := &domain.Conversation{
		ID:        uuid.New(),
		Type:      domain.ConversationTypeDirect,
		Status:    domain.ConversationStatusActive,
		CreatedAt: time.Now(),
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO conversations (id, type, status, created_at) VALUES ($1, 'direct', 'active', $2)`,
		conv.ID, conv.CreatedAt,
	); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO conversation_members (conversation_id, user_id, role, is_muted, joined_at)
		VALUES ($1, $2, 'member', false, now()), ($1, $3, 'member', false, now())`,
		conv.ID, a, b,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *ConversationRepo) CreateGroup(ctx context.Context, conv *domain.Conversation, ownerID uuid.UUID, memberIDs []uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO conversations (id, type, status, title, avatar_url, created_at) VALUES ($1, 'group', 'active', $2, $3, $4)`,
		conv.ID, conv.Title, conv.AvatarURL, conv.CreatedAt,
	); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO conversation_members (conversation_id, user_id, role, is_muted, joined_at)
		VALUES ($1, $2, 'owner', false, now())`,
		conv.ID, ownerID,
	); err != nil {
		return err
	}

	for _, uid := range memberIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO conversation_members (conversation_id, user_id, role, is_muted, joined_at)
			VALUES ($1, $2, 'member', false, now())
			ON CONFLICT DO NOTHING`,
			conv.ID, uid,
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *ConversationRepo) AddMembers(ctx context.Context, conversationID uuid.UUID, userIDs []uuid.UUID) error {
	// Only ids that exist in users are inserted; re-adds are no-ops.
	_, err := r.pool.Exec(ctx, `
		INSERT INTO conversation_members (conversation_id, user_id, role, is_muted, joined_at)
		SELECT $1, u.id, 'member', false, now()
		FROM users u
		WHERE u.id = ANY($2)
		ON CONFLICT DO NOTHING`,
		conversationID, userIDs,
	)
	return err
}

func (r *ConversationRepo) RemoveMember(ctx context.Context, conversationID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM conversation_members WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID,
	)
	return err
}

func (r *ConversationRepo) UpdateMemberRole(ctx context.Context, conversationID, userID uuid.UUID, role string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE conversation_members SET role = $3 WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID, role,
	)
	return err
}

func (r *ConversationRepo) SetMemberMuted(ctx context.Context, conversationID, userID uuid.UUID, muted bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE conversation_members SET is_muted = $3 WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID, muted,
	)
	return err
}

func (r *ConversationRepo) TransferOwnership(ctx context.Context, conversationID, oldOwnerID, newOwnerID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Demote first, promote second, one transaction: a concurrent reader
	// never sees zero or two owners.
	if _, err := tx.Exec(ctx,
		`UPDATE conversation_members SET role = 'admin' WHERE conversation_id = $1 AND user_id = $2 AND role = 'owner'`,
		conversationID, oldOwnerID,
	); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE conversation_members SET role = 'owner', is_muted = false WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, newOwnerID,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *ConversationRepo) UpdateInfo(ctx context.Context, conversationID uuid.UUID, title, avatarURL *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET title = COALESCE($2, title), avatar_url = COALESCE($3, avatar_url)
		WHERE id = $1`,
		conversationID, title, avatarURL,
	)
	return err
}

func (r *ConversationRepo) SetGroupStatus(ctx context.Context, conversationID uuid.UUID, status string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Banning a group destroys its history for everyone.
	if status == domain.ConversationStatusBanned {
		if _, err := tx.Exec(ctx,
			`DELETE FROM messages WHERE conversation_id = $1`, conversationID,
		); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE conversations SET status = $2 WHERE id = $1`, conversationID, status,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *ConversationRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	return err
}

func (r *ConversationRepo) SetLastRead(ctx context.Context, conversationID, userID uuid.UUID, messageID *uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE conversation_members SET last_read_msg_id = $3 WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID, messageID,
	)
	return err
}

func (r *ConversationRepo) ListSummaries(ctx context.Context, userID uuid.UUID) ([]domain.ConversationSummary, error) {
	// One pass: the viewer's memberships, minus hidden conversations, with
	// the last visible message and the unread count. The cleared-at bound
	// truncates both the preview and the count; unread means newer than the
	// last-read message, not deleted, not the viewer's own.
	query := `
		WITH my AS (
			SELECT m.conversation_id, m.last_read_msg_id
			FROM conversation_members m
			LEFT JOIN hidden_conversations h
				ON h.conversation_id = m.conversation_id AND h.user_id = m.user_id
			WHERE m.user_id = $1 AND h.user_id IS NULL
		),
		bounds AS (
			SELECT my.conversation_id,
				COALESCE(uc.cleared_at, 'epoch'::timestamptz) AS cleared_at,
				lr.created_at AS last_read_at
			FROM my
			LEFT JOIN user_conversation_clears uc
				ON uc.conversation_id = my.conversation_id AND uc.user_id = $1
			LEFT JOIN messages lr ON lr.id = my.last_read_msg_id
		),
		last_msg AS (
			SELECT DISTINCT ON (m.conversation_id)
				m.conversation_id, m.text, m.type, m.deleted_at, m.created_at
			FROM messages m
			JOIN bounds b ON b.conversation_id = m.conversation_id
			WHERE m.created_at > b.cleared_at
			ORDER BY m.conversation_id, m.created_at DESC
		),
		unread AS (
			SELECT m.conversation_id, COUNT(*)::int AS cnt
			FROM messages m
			JOIN bounds b ON b.conversation_id = m.conversation_id
			WHERE m.deleted_at IS NULL
				AND m.sender_id <> $1
				AND m.created_at > b.cleared_at
				AND (b.last_read_at IS NULL OR m.created_at > b.last_read_at)
			GROUP BY m.conversation_id
		)
		SELECT c.id, c.type, c.status, c.title, c.avatar_url, c.created_at,
			COALESCE(c.title, peer.display_name, '') AS display_title,
			CASE WHEN lm.deleted_at IS NOT NULL THEN NULL ELSE lm.text END,
			lm.created_at,
			COALESCE(un.cnt, 0)
		FROM conversations c
		JOIN bounds b ON b.conversation_id = c.id
		LEFT JOIN last_msg lm ON lm.conversation_id = c.id
		LEFT JOIN unread un ON un.conversation_id = c.id
		LEFT JOIN LATERAL (
			SELECT u.display_name
			FROM conversation_members pm
			JOIN users u ON u.id = pm.user_id
			WHERE pm.conversation_id = c.id AND pm.user_id <> $1 AND c.type = 'direct'
			LIMIT 1
		) peer ON TRUE
		ORDER BY COALESCE(lm.created_at, c.created_at) DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []domain.ConversationSummary
	for rows.Next() {
		var s domain.ConversationSummary
		if err := rows.Scan(
			&s.ID, &s.Type, &s.Status, &s.Title, &s.AvatarURL, &s.CreatedAt,
			&s.DisplayTitle, &s.LastMessageText, &s.LastMessageAt, &s.UnreadCount,
		); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func (r *ConversationRepo) ListGroups(ctx context.Context, status, query string, limit, offset int) ([]domain.GroupOverview, int, error) {
	where := []string{`c.type = 'group'`}
	var args []any

	if status != "" && status != "all" {
		args = append(args, status)
		where = append(where, fmt.Sprintf("c.status = $%d", len(args)))
	}
	if q := strings.TrimSpace(query); q != "" {
		args = append(args, "%"+strings.ToLower(q)+"%")
		where = append(where, fmt.Sprintf("LOWER(c.title) LIKE $%d", len(args)))
	}
	whereSQL := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM conversations c WHERE `+whereSQL, args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	listSQL := fmt.Sprintf(`
		SELECT c.id, c.type, c.status, c.title, c.avatar_url, c.created_at,
			(SELECT COUNT(*) FROM conversation_members m WHERE m.conversation_id = c.id)
		FROM conversations c
		WHERE %s
		ORDER BY c.created_at DESC
		LIMIT $%d OFFSET $%d`, whereSQL, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, listSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var groups []domain.GroupOverview
	for rows.Next() {
		var g domain.GroupOverview
		if err := rows.Scan(&g.ID, &g.Type, &g.Status, &g.Title, &g.AvatarURL, &g.CreatedAt, &g.MemberCount); err != nil {
			return nil, 0, err
		}
		groups = append(groups, g)
	}
	return groups, total, rows.Err()
}
