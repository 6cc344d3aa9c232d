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

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

func (r *MessageRepo) CreateGuarded(ctx context.Context, msg *domain.Message) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Membership and conversation status are re-read under lock so a
	// concurrent removal or group lock cannot race the insert.
	var convType, convStatus string
	var isMuted bool
	err = tx.QueryRow(ctx, `
		SELECT c.type, c.status, cm.is_muted
		FROM conversations c
		JOIN conversation_members cm ON cm.conversation_id = c.id
		WHERE c.id = $1 AND cm.user_id = $2
		FOR UPDATE`,
		msg.ConversationID, msg.SenderID,
	).Scan(&convType, &convStatus, &isMuted)
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotMember
	}
	if err != nil {
		return err
	}

	if convType == domain.ConversationTypeGroup {
		switch convStatus {
		case domain.ConversationStatusLocked:
			return repository.ErrConversationLocked
		case domain.ConversationStatusBanned:
			return repository.ErrConversationBanned
		}
		if isMuted {
			return repository.ErrMemberMuted
		}
	}

	if err := insertMessage(ctx, tx, msg); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func insertMessage(ctx context.Context, tx pgx.Tx, msg *domain.Message) error {
	var replyNote []byte
	if msg.ReplyToNote != nil {
		var err error
		replyNote, err = json.Marshal(msg.ReplyToNote)
		if err != nil {
			return err
		}
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, type, text, asset_url, reply_to_id, reply_to_note, is_pinned, is_forwarded, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Type, msg.Text, msg.AssetURL,
		msg.ReplyToID, replyNote, msg.IsPinned, msg.IsForwarded, msg.CreatedAt,
	)
	return err
}

func (r *MessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	query := `
		SELECT m.id, m.conversation_id, m.sender_id, m.type, m.text, m.asset_url,
			m.reply_to_id, m.reply_to_note, m.is_pinned, m.is_forwarded, m.deleted_at, m.created_at,
			u.display_name, u.avatar_url
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.id = $1`
	var msg domain.Message
	var replyNote []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Type, &msg.Text, &msg.AssetURL,
		&msg.ReplyToID, &replyNote, &msg.IsPinned, &msg.IsForwarded, &msg.DeletedAt, &msg.CreatedAt,
		&msg.SenderDisplayName, &msg.SenderAvatarURL,
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
			msg.ReplyToNote = &snap
		}
	}

	if msg.Reactions, err = r.listReactions(ctx, msg.ID); err != nil {
		return nil, err
	}
	if msg.ReadBy, err = r.listReadBy(ctx, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *MessageRepo) listReactions(ctx context.Context, messageID uuid.UUID) ([]domain.Reaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.message_id, r.user_id, r.emoji, u.display_name
		FROM message_reactions r
		JOIN users u ON u.id = r.user_id
		WHERE r.message_id = $1
		ORDER BY u.display_name`,
		messageID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reactions := []domain.Reaction{}
	for rows.Next() {
		var re domain.Reaction
		if err := rows.Scan(&re.MessageID, &re.UserID, &re.Emoji, &re.DisplayName); err != nil {
			return nil, err
		}
		reactions = append(reactions, re)
	}
	return reactions, rows.Err()
}

// listReadBy derives read receipts from membership last-read pointers: a
// member whose pointer sits at or past this message has read it. The sender
// is excluded.
func (r *MessageRepo) listReadBy(ctx context.Context, msg *domain.Message) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT cm.user_id
		FROM conversation_members cm
		JOIN messages lr ON lr.id = cm.last_read_msg_id
		WHERE cm.conversation_id = $1
			AND cm.user_id <> $2
			AND lr.created_at >= $3`,
		msg.ConversationID, msg.SenderID, msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	readBy := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		readBy = append(readBy, id)
	}
	return readBy, rows.Err()
}

func (r *MessageRepo) List(ctx context.Context, conversationID, viewerID uuid.UUID, before *uuid.UUID, limit int) ([]domain.Message, error) {
	// Revoked messages come back as tombstones with their payload nulled;
	// messages at or before the viewer's cleared bound are filtered out.
	base := `
		SELECT m.id, m.conversation_id, m.sender_id, m.type,
			CASE WHEN m.deleted_at IS NOT NULL THEN NULL ELSE m.text END,
			CASE WHEN m.deleted_at IS NOT NULL THEN NULL ELSE m.asset_url END,
			m.reply_to_id, m.reply_to_note, m.is_pinned, m.is_forwarded, m.deleted_at, m.created_at,
			u.display_name, u.avatar_url
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		LEFT JOIN user_conversation_clears uc
			ON uc.conversation_id = m.conversation_id AND uc.user_id = $2
		WHERE m.conversation_id = $1
			AND m.created_at > COALESCE(uc.cleared_at, 'epoch'::timestamptz)`

	var rows pgx.Rows
	var err error
	if before != nil {
		rows, err = r.pool.Query(ctx, base+`
			AND m.created_at < (SELECT created_at FROM messages WHERE id = $3)
			ORDER BY m.created_at DESC
			LIMIT $4`,
			conversationID, viewerID, *before, limit)
	} else {
		rows, err = r.pool.Query(ctx, base+`
			ORDER BY m.created_at DESC
			LIMIT $3`,
			conversationID, viewerID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var replyNote []byte
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Type, &msg.Text, &msg.AssetURL,
			&msg.ReplyToID, &replyNote, &msg.IsPinned, &msg.IsForwarded, &msg.DeletedAt, &msg.CreatedAt,
			&msg.SenderDisplayName, &msg.SenderAvatarURL,
		); err != nil {
			return nil, err
		}
		if replyNote != nil {
			var snap domain.NoteSnapshot
			if err := json.Unmarshal(replyNote, &snap); err == nil {
				msg.ReplyToNote = &snap
			}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological (query gives DESC).
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *MessageRepo) LatestIDs(ctx context.Context, conversationID uuid.UUID, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM messages
		WHERE conversation_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $2`,
		conversationID, limit,
	)
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

func (r *MessageRepo) React(ctx context.Context, messageID, userID uuid.UUID, emoji string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx,
		`SELECT emoji FROM message_reactions WHERE message_id = $1 AND user_id = $2 FOR UPDATE`,
		messageID, userID,
	).Scan(&current)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		_, err = tx.Exec(ctx,
			`INSERT INTO message_reactions (message_id, user_id, emoji, created_at) VALUES ($1, $2, $3, now())`,
			messageID, userID, emoji)
	case err != nil:
		return err
	case current == emoji:
		// Same emoji again toggles the reaction off.
		_, err = tx.Exec(ctx,
			`DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2`,
			messageID, userID)
	default:
		_, err = tx.Exec(ctx,
			`UPDATE message_reactions SET emoji = $3, created_at = now() WHERE message_id = $1 AND user_id = $2`,
			messageID, userID, emoji)
	}
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *MessageRepo) SetPinned(ctx context.Context, id uuid.UUID, pinned bool) error {
	_, err := r.pool.Exec(ctx, `UPDATE messages SET is_pinned = $2 WHERE id = $1`, id, pinned)
	return err
}

func (r *MessageRepo) Tombstone(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE messages SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, time.Now())
	return err
}

func (r *MessageRepo) HardDelete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM message_reactions WHERE message_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *MessageRepo) Forward(ctx context.Context, actorID uuid.UUID, sourceIDs, targetIDs []uuid.UUID) ([]uuid.UUID, int, int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, 0, 0, err
	}
	defer tx.Rollback(ctx)

	// Sources the actor can currently see: a member of the source
	// conversation, message not revoked, not behind the cleared bound.
	srcRows, err := tx.Query(ctx, `
		SELECT m.id, m.type, m.text, m.asset_url
		FROM messages m
		JOIN conversation_members cm
			ON cm.conversation_id = m.conversation_id AND cm.user_id = $1
		LEFT JOIN user_conversation_clears uc
			ON uc.conversation_id = m.conversation_id AND uc.user_id = $1
		WHERE m.id = ANY($2)
			AND m.deleted_at IS NULL
			AND m.created_at > COALESCE(uc.cleared_at, 'epoch'::timestamptz)
		ORDER BY m.created_at`,
		actorID, sourceIDs,
	)
	if err != nil {
		return nil, 0, 0, err
	}
	type source struct {
		msgType  string
		text     *string
		assetURL *string
	}
	var sources []source
	for srcRows.Next() {
		var s source
		var id uuid.UUID
		if err := srcRows.Scan(&id, &s.msgType, &s.text, &s.assetURL); err != nil {
			srcRows.Close()
			return nil, 0, 0, err
		}
		sources = append(sources, s)
	}
	srcRows.Close()
	if err := srcRows.Err(); err != nil {
		return nil, 0, 0, err
	}

	// Targets the actor may currently send to: still a member, and not a
	// locked or banned group.
	tgtRows, err := tx.Query(ctx, `
		SELECT c.id
		FROM conversations c
		JOIN conversation_members cm ON cm.conversation_id = c.id AND cm.user_id = $1
		WHERE c.id = ANY($2)
			AND NOT (c.type = 'group' AND c.status <> 'active')`,
		actorID, targetIDs,
	)
	if err != nil {
		return nil, 0, 0, err
	}
	var targets []uuid.UUID
	for tgtRows.Next() {
		var id uuid.UUID
		if err := tgtRows.Scan(&id); err != nil {
			tgtRows.Close()
			return nil, 0, 0, err
		}
		targets = append(targets, id)
	}
	tgtRows.Close()
	if err := tgtRows.Err(); err != nil {
		return nil, 0, 0, err
	}

	if len(sources) == 0 || len(targets) == 0 {
		return nil, len(sources), len(targets), tx.Commit(ctx)
	}

	var newIDs []uuid.UUID
	now := time.Now()
	for _, convID := range targets {
		for _, src := range sources {
			msg := &domain.Message{
				ID:             uuid.New(),
				ConversationID: convID,
				SenderID:       actorID,
				Type:           src.msgType,
				Text:           src.text,
				AssetURL:       src.assetURL,
				IsForwarded:    true,
				CreatedAt:      now,
			}
			if err := insertMessage(ctx, tx, msg); err != nil {
				return nil, 0, 0, err
			}
			newIDs = append(newIDs, msg.ID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, 0, err
	}
	return newIDs, len(sources), len(targets), nil
}
