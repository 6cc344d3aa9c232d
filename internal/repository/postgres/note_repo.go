package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/relay/internal/domain"
)

type NoteRepo struct {
	pool *pgxpool.Pool
}

func NewNoteRepo(pool *pgxpool.Pool) *NoteRepo {
	return &NoteRepo{pool: pool}
}

func (r *NoteRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Note, error) {
	query := `
		SELECT n.id, n.owner_id, n.text, n.created_at, n.expires_at, u.display_name
		FROM user_notes n
		JOIN users u ON u.id = n.owner_id
		WHERE n.id = $1`
	var n domain.Note
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&n.ID, &n.OwnerID, &n.Text, &n.CreatedAt, &n.ExpiresAt, &n.OwnerDisplayName,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NoteRepo) Upsert(ctx context.Context, n *domain.Note) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// One live note per user: posting again replaces the previous one.
	if _, err := tx.Exec(ctx, `DELETE FROM user_notes WHERE owner_id = $1`, n.OwnerID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO user_notes (id, owner_id, text, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)`,
		n.ID, n.OwnerID, n.Text, n.CreatedAt, n.ExpiresAt,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *NoteRepo) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.Note, error) {
	query := `
		SELECT n.id, n.owner_id, n.text, n.created_at, n.expires_at, u.display_name
		FROM user_notes n
		JOIN users u ON u.id = n.owner_id
		WHERE n.owner_id = $1`
	var n domain.Note
	err := r.pool.QueryRow(ctx, query, ownerID).Scan(
		&n.ID, &n.OwnerID, &n.Text, &n.CreatedAt, &n.ExpiresAt, &n.OwnerDisplayName,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NoteRepo) ListFeed(ctx context.Context, userID uuid.UUID) ([]domain.Note, error) {
	query := `
		SELECT n.id, n.owner_id, n.text, n.created_at, n.expires_at, u.display_name
		FROM user_notes n
		JOIN users u ON u.id = n.owner_id
		WHERE n.expires_at > now()
			AND (n.owner_id = $1 OR EXISTS (
				SELECT 1 FROM user_friends f
				WHERE f.user_id = $1 AND f.friend_id = n.owner_id
			))
		ORDER BY n.created_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []domain.Note
	for rows.Next() {
		var n domain.Note
		if err := rows.Scan(&n.ID, &n.OwnerID, &n.Text, &n.CreatedAt, &n.ExpiresAt, &n.OwnerDisplayName); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (r *NoteRepo) DeleteByOwner(ctx context.Context, ownerID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_notes WHERE owner_id = $1`, ownerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *NoteRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_notes WHERE id = $1`, id)
	return err
}
