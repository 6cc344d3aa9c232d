package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/repository"
)

type ReportRepo struct {
	pool *pgxpool.Pool
}

func NewReportRepo(pool *pgxpool.Pool) *ReportRepo {
	return &ReportRepo{pool: pool}
}

const reportColumns = `id, reporter_id, target_type, target_id, conversation_id, reasons, description, status, resolved_by, resolved_at, resolution_note, created_at`

func scanReport(row pgx.Row) (*domain.Report, error) {
	var rep domain.Report
	err := row.Scan(
		&rep.ID, &rep.ReporterID, &rep.TargetType, &rep.TargetID, &rep.ConversationID,
		&rep.Reasons, &rep.Description, &rep.Status, &rep.ResolvedBy, &rep.ResolvedAt,
		&rep.ResolutionNote, &rep.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

func (r *ReportRepo) Create(ctx context.Context, report *domain.Report) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reports (id, reporter_id, target_type, target_id, conversation_id, reasons, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8)`,
		report.ID, report.ReporterID, report.TargetType, report.TargetID,
		report.ConversationID, report.Reasons, report.Description, report.CreatedAt,
	)
	return err
}

func (r *ReportRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	return scanReport(r.pool.QueryRow(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE id = $1`, id))
}

func (r *ReportRepo) List(ctx context.Context, status string, limit, offset int) ([]domain.Report, int, error) {
	where := `1=1`
	args := []any{}
	if status != "" && status != "all" {
		args = append(args, status)
		where = `status = $1`
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM reports WHERE `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	n := len(args)
	query := fmt.Sprintf(`
		SELECT %s
		FROM reports
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, reportColumns, where, n-1, n)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var reports []domain.Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		reports = append(reports, *rep)
	}
	return reports, total, rows.Err()
}

func (r *ReportRepo) Resolve(ctx context.Context, reportID, adminID uuid.UUID, status string, note *string, plan *repository.SanctionPlan) (*repository.SanctionResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rep, err := scanReport(tx.QueryRow(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE id = $1 FOR UPDATE`, reportID))
	if err != nil {
		return nil, err
	}
	if rep == nil {
		return nil, nil
	}
	if rep.IsTerminal() {
		return nil, repository.ErrReportTerminal
	}

	result := &repository.SanctionResult{}

	if plan != nil && plan.UserID != nil {
		// Status flip, epoch bump and device deactivation commit together
		// so a concurrent login cannot race the sanction.
		err = tx.QueryRow(ctx, `
			SELECT status FROM users WHERE id = $1 FOR UPDATE`, *plan.UserID,
		).Scan(&result.OldUserStatus)
		if err != nil {
			return nil, err
		}
		if err := tx.QueryRow(ctx, `
			UPDATE users
			SET status = $2, token_version = token_version + 1, updated_at = now()
			WHERE id = $1
			RETURNING token_version`,
			*plan.UserID, plan.UserStatus,
		).Scan(&result.NewTokenVersion); err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE user_devices SET is_active = false WHERE user_id = $1`, *plan.UserID,
		); err != nil {
			return nil, err
		}
	}

	if plan != nil && plan.ConversationID != nil {
		if plan.GroupStatus == domain.ConversationStatusBanned {
			if _, err := tx.Exec(ctx,
				`DELETE FROM messages WHERE conversation_id = $1`, *plan.ConversationID,
			); err != nil {
				return nil, err
			}
		}
		if _, err := tx.Exec(ctx,
			`UPDATE conversations SET status = $2 WHERE id = $1 AND type = 'group'`,
			*plan.ConversationID, plan.GroupStatus,
		); err != nil {
			return nil, err
		}
	}

	if plan != nil && plan.DeleteMessageID != nil {
		if _, err := tx.Exec(ctx,
			`UPDATE messages SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`,
			*plan.DeleteMessageID,
		); err != nil {
			return nil, err
		}
	}

	if plan != nil && plan.DeleteNoteID != nil {
		if _, err := tx.Exec(ctx,
			`DELETE FROM user_notes WHERE id = $1`, *plan.DeleteNoteID,
		); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	if _, err := tx.Exec(ctx, `
		UPDATE reports
		SET status = $2, resolved_by = $3, resolved_at = $4, resolution_note = $5
		WHERE id = $1`,
		rep.ID, status, adminID, now, note,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	rep.Status = status
	rep.ResolvedBy = &adminID
	rep.ResolvedAt = &now
	rep.ResolutionNote = note
	result.Report = rep
	return result, nil
}
