package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bulksender/internal/model"
)

type PostgresDispatchRepo struct {
	db *sql.DB
}

func NewPostgresDispatchRepo(db *sql.DB) *PostgresDispatchRepo {
	return &PostgresDispatchRepo{db: db}
}

func (r *PostgresDispatchRepo) BulkCreate(ctx context.Context, records []model.DispatchRecord) error {
	if len(records) == 0 {
		return nil
	}

	var (
		sb   strings.Builder
		args = make([]any, 0, len(records)*8)
	)
	sb.WriteString(`
		INSERT INTO dispatch_records
			(id, operation_id, recipient, message_type, body, media_id, status, created_at, updated_at)
		VALUES `)
	for i, rec := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 8
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+8)
		args = append(args,
			rec.ID,
			rec.OperationID,
			rec.Recipient,
			string(rec.MessageType),
			rec.Body,
			rec.MediaID,
			string(rec.Status),
			rec.CreatedAt.UTC(),
		)
	}

	_, err := r.db.ExecContext(ctx, sb.String(), args...)
	return err
}

func (r *PostgresDispatchRepo) BulkUpdate(ctx context.Context, updates []DispatchUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}

	var (
		sb   strings.Builder
		args = make([]any, 0, len(updates)*5+1)
	)
	sb.WriteString(`
		UPDATE dispatch_records AS d
		SET status            = v.status,
		    remote_message_id = NULLIF(v.remote_message_id, ''),
		    last_error        = NULLIF(v.last_error, ''),
		    retry_count       = v.retry_count,
		    updated_at        = $1
		FROM (VALUES `)
	args = append(args, time.Now().UTC())
	for i, u := range updates {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i*5 + 1
		fmt.Fprintf(&sb, "($%d::text, $%d::text, $%d::text, $%d::text, $%d::int)",
			base+1, base+2, base+3, base+4, base+5)
		args = append(args, u.ID, string(u.Status), u.RemoteMessageID, u.ErrorDetail, u.RetryCount)
	}
	// Only queued rows: a delivery confirmation that already advanced
	// the record must never be overwritten.
	sb.WriteString(`
		) AS v(id, status, remote_message_id, last_error, retry_count)
		WHERE d.id = v.id AND d.status = 'queued'`)

	res, err := r.db.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *PostgresDispatchRepo) UpdateOne(ctx context.Context, u DispatchUpdate) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE dispatch_records
		SET status            = $2,
		    remote_message_id = NULLIF($3, ''),
		    last_error        = NULLIF($4, ''),
		    retry_count       = $5,
		    updated_at        = now()
		WHERE id = $1 AND status = 'queued'
	`, u.ID, string(u.Status), u.RemoteMessageID, u.ErrorDetail, u.RetryCount)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("dispatch record missing or not queued")
	}
	return nil
}

func (r *PostgresDispatchRepo) ListByOperation(ctx context.Context, operationID string, status model.DispatchStatus, p Page) ([]model.DispatchRecord, int, error) {
	p = p.Normalize()

	where := " WHERE operation_id = $1"
	args := []any{operationID}
	if status != "" {
		args = append(args, string(status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT count(*) FROM dispatch_records"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, p.Limit, p.Offset)
	query := fmt.Sprintf(`
		SELECT id, operation_id, recipient, message_type, body, media_id,
		       status, remote_message_id, last_error, retry_count, created_at, updated_at
		FROM dispatch_records
		%s
		ORDER BY created_at ASC, id ASC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.DispatchRecord
	for rows.Next() {
		var (
			rec         model.DispatchRecord
			messageType string
			recStatus   string
			remoteID    sql.NullString
			lastErr     sql.NullString
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.OperationID,
			&rec.Recipient,
			&messageType,
			&rec.Body,
			&rec.MediaID,
			&recStatus,
			&remoteID,
			&lastErr,
			&rec.RetryCount,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		rec.MessageType = model.MessageType(messageType)
		rec.Status = model.DispatchStatus(recStatus)
		if remoteID.Valid {
			s := remoteID.String
			rec.RemoteMessageID = &s
		}
		if lastErr.Valid {
			s := lastErr.String
			rec.LastError = &s
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}
