package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/relay/internal/domain"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `id, email, username, display_name, password_hash, avatar_url, status, token_version, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.DisplayName, &u.PasswordHash,
		&u.AvatarURL, &u.Status, &u.TokenVersion, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, username, display_name, password_hash, avatar_url, status, token_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.pool.Exec(ctx, query,
		user.ID, user.Email, user.Username, user.DisplayName, user.PasswordHash,
		user.AvatarURL, user.Status, user.TokenVersion, user.CreatedAt, user.UpdatedAt,
	)
	return err
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(r.pool.QueryRow(ctx, query, username))
}

func (r *UserRepo) BumpTokenVersion(ctx context.Context, id uuid.UUID) (int, error) {
	var version int
	err := r.pool.QueryRow(ctx,
		`UPDATE users SET token_version = token_version + 1, updated_at = now() WHERE id = $1 RETURNING token_version`,
		id,
	).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (r *UserRepo) Sanction(ctx context.Context, id uuid.UUID, status string) (string, int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", 0, err
	}
	defer tx.Rollback(ctx)

	var oldStatus string
	err = tx.QueryRow(ctx,
		`SELECT status FROM users WHERE id = $1 FOR UPDATE`, id,
	).Scan(&oldStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", 0, pgx.ErrNoRows
	}
	if err != nil {
		return "", 0, err
	}

	var version int
	if err := tx.QueryRow(ctx, `
		UPDATE users
		SET status = $2, token_version = token_version + 1, updated_at = now()
		WHERE id = $1
		RETURNING token_version`,
		id, status,
	).Scan(&version); err != nil {
		return "", 0, err
	}

	// Sanctioned accounts stop receiving push immediately.
	if _, err := tx.Exec(ctx,
		`UPDATE user_devices SET is_active = false WHERE user_id = $1`, id,
	); err != nil {
		return "", 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", 0, err
	}
	return oldStatus, version, nil
}

func (r *UserRepo) IsAdmin(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM admins WHERE user_id = $1)`, id,
	).Scan(&exists)
	return exists, err
}

func (r *UserRepo) SeedAdmin(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO admins (user_id) VALUES ($1) ON CONFLICT DO NOTHING`, id,
	)
	return err
}

func (r *UserRepo) List(ctx context.Context, status, query string, limit, offset int) ([]domain.User, int, error) {
	where := []string{`u.id NOT IN (SELECT user_id FROM admins)`}
	var args []any

	if status != "" && status != "all" {
		args = append(args, status)
		where = append(where, fmt.Sprintf("u.status = $%d", len(args)))
	}
	if q := strings.TrimSpace(query); q != "" {
		args = append(args, "%"+strings.ToLower(q)+"%")
		i := len(args)
		where = append(where, fmt.Sprintf(
			"(LOWER(u.display_name) LIKE $%d OR LOWER(u.email) LIKE $%d OR LOWER(u.username) LIKE $%d)", i, i, i))
	}
	whereSQL := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM users u WHERE `+whereSQL, args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	listSQL := fmt.Sprintf(`
		SELECT %s FROM users u
		WHERE %s
		ORDER BY u.created_at DESC
		LIMIT $%d OFFSET $%d`,
		qualify(userColumns, "u"), whereSQL, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, listSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(
			&u.ID, &u.Email, &u.Username, &u.DisplayName, &u.PasswordHash,
			&u.AvatarURL, &u.Status, &u.TokenVersion, &u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

// qualify prefixes every column in a comma-separated list with an alias.
func qualify(columns, alias string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}
