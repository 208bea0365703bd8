package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bulksender/internal/model"
)

type PostgresOperationRepo struct {
	db *sql.DB
}

func NewPostgresOperationRepo(db *sql.DB) *PostgresOperationRepo {
	return &PostgresOperationRepo{db: db}
}

func (r *PostgresOperationRepo) Create(ctx context.Context, op *model.Operation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO operations (id, owner_id, group_tag, message_type, body, media_id,
		                        total, processed, succeeded, failed, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0, 0, $8, $9)
	`,
		op.ID,
		op.OwnerID,
		op.GroupTag,
		string(op.MessageType),
		op.Body,
		op.MediaID,
		op.Total,
		string(op.Status),
		op.CreatedAt.UTC(),
	)
	return err
}

const operationColumns = `
	id, owner_id, group_tag, message_type, body, media_id,
	total, processed, succeeded, failed, status, last_error,
	created_at, started_at, completed_at`

func (r *PostgresOperationRepo) Get(ctx context.Context, id string) (*model.Operation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+operationColumns+`
		FROM operations
		WHERE id = $1
	`, id)

	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOperationNotFound
	}
	if err != nil {
		return nil, err
	}
	return op, nil
}

func (r *PostgresOperationRepo) MarkProcessing(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE operations
		SET status = 'processing', started_at = $2
		WHERE id = $1 AND status = 'pending'
	`, id, at.UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("operation %s is not pending", id)
	}
	return nil
}

func (r *PostgresOperationRepo) UpdateProgress(ctx context.Context, id string, processed, succeeded, failed int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE operations
		SET processed = GREATEST(processed, $2),
		    succeeded = GREATEST(succeeded, $3),
		    failed    = GREATEST(failed, $4)
		WHERE id = $1
	`, id, processed, succeeded, failed)
	return err
}

func (r *PostgresOperationRepo) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE operations
		SET status = 'completed', completed_at = $2
		WHERE id = $1 AND completed_at IS NULL
	`, id, at.UTC())
	return err
}

func (r *PostgresOperationRepo) MarkFailed(ctx context.Context, id string, reason string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE operations
		SET status = 'failed', last_error = $2, completed_at = $3
		WHERE id = $1 AND completed_at IS NULL
	`, id, reason, at.UTC())
	return err
}

func (r *PostgresOperationRepo) List(ctx context.Context, f OperationFilter, p Page) ([]model.Operation, int, error) {
	p = p.Normalize()

	where := " WHERE 1=1"
	args := []any{}
	if f.OwnerID != "" {
		args = append(args, f.OwnerID)
		where += fmt.Sprintf(" AND owner_id = $%d", len(args))
	}
	if f.GroupTag != "" {
		args = append(args, f.GroupTag)
		where += fmt.Sprintf(" AND group_tag = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT count(*) FROM operations"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, p.Limit, p.Offset)
	query := fmt.Sprintf(`
		SELECT `+operationColumns+`
		FROM operations
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *op)
	}
	return out, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOperation(row rowScanner) (*model.Operation, error) {
	var (
		op          model.Operation
		messageType string
		status      string
		lastErr     sql.NullString
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)

	if err := row.Scan(
		&op.ID,
		&op.OwnerID,
		&op.GroupTag,
		&messageType,
		&op.Body,
		&op.MediaID,
		&op.Total,
		&op.Processed,
		&op.Succeeded,
		&op.Failed,
		&status,
		&lastErr,
		&op.CreatedAt,
		&startedAt,
		&completedAt,
	); err != nil {
		return nil, err
	}

	op.MessageType = model.MessageType(messageType)
	op.Status = model.OperationStatus(status)
	if lastErr.Valid {
		s := lastErr.String
		op.LastError = &s
	}
	if startedAt.Valid {
		t := startedAt.Time
		op.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		op.CompletedAt = &t
	}
	return &op, nil
}
