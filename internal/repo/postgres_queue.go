package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flockline/flockline/internal/model"
)

const queueColumns = `id, tenant_id, message_id, handle, category, priority, status, assignee_id, reply_text, replied_at, replied_by, created_at, updated_at`

type PostgresQueueRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresQueueRepo(pool *pgxpool.Pool) *PostgresQueueRepo {
	return &PostgresQueueRepo{pool: pool}
}

// EnqueueIfAbsent relies on the unique index on message_id: an orchestrator
// retry for an already-escalated message finds the existing item instead of
// creating a second one.
func (r *PostgresQueueRepo) EnqueueIfAbsent(ctx context.Context, item model.QueueItem) (model.QueueItem, bool, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO queue_items (tenant_id, message_id, handle, category, priority, status, assignee_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'PENDING', $6, now(), now())
		ON CONFLICT (message_id) DO NOTHING
		RETURNING `+queueColumns,
		item.TenantID, item.MessageID, item.Handle, item.Category, item.Priority, item.AssigneeID)

	stored, err := scanQueueItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, gerr := r.getByMessageID(ctx, item.MessageID)
		if gerr != nil {
			return model.QueueItem{}, false, gerr
		}
		return existing, false, nil
	}
	if err != nil {
		return model.QueueItem{}, false, err
	}
	return stored, true, nil
}

func scanQueueItem(row pgx.Row) (model.QueueItem, error) {
	var q model.QueueItem
	err := row.Scan(
		&q.ID,
		&q.TenantID,
		&q.MessageID,
		&q.Handle,
		&q.Category,
		&q.Priority,
		&q.Status,
		&q.AssigneeID,
		&q.ReplyText,
		&q.RepliedAt,
		&q.RepliedBy,
		&q.CreatedAt,
		&q.UpdatedAt,
	)
	return q, err
}

func (r *PostgresQueueRepo) getByMessageID(ctx context.Context, messageID int64) (model.QueueItem, error) {
	q, err := scanQueueItem(r.pool.QueryRow(ctx,
		`SELECT `+queueColumns+` FROM queue_items WHERE message_id = $1`, messageID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.QueueItem{}, fmt.Errorf("queue item for message %d: %w", messageID, model.ErrNotFound)
	}
	return q, err
}

func (r *PostgresQueueRepo) GetByID(ctx context.Context, id int64) (model.QueueItem, error) {
	q, err := scanQueueItem(r.pool.QueryRow(ctx,
		`SELECT `+queueColumns+` FROM queue_items WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.QueueItem{}, fmt.Errorf("queue item %d: %w", id, model.ErrNotFound)
	}
	return q, err
}

func (r *PostgresQueueRepo) ListByStatus(ctx context.Context, tenantID int64, status model.QueueStatus, limit, offset int) ([]model.QueueItem, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+queueColumns+`
		FROM queue_items
		WHERE tenant_id = $1 AND status = $2
		ORDER BY
			CASE priority WHEN 'HIGH' THEN 0 WHEN 'MEDIUM' THEN 1 ELSE 2 END,
			created_at ASC
		LIMIT $3 OFFSET $4
	`, tenantID, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.QueueItem
	for rows.Next() {
		q, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (r *PostgresQueueRepo) CountByStatus(ctx context.Context, tenantID int64, status model.QueueStatus) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM queue_items WHERE tenant_id = $1 AND status = $2
	`, tenantID, status).Scan(&n)
	return n, err
}

// UpdateTransition refuses to touch a CLOSED row at the SQL level, so two
// racing staff actions cannot reopen a terminal item.
func (r *PostgresQueueRepo) UpdateTransition(ctx context.Context, item model.QueueItem) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE queue_items
		SET status = $2,
		    assignee_id = $3,
		    reply_text = $4,
		    replied_at = $5,
		    replied_by = $6,
		    updated_at = now()
		WHERE id = $1 AND status <> 'CLOSED'
	`, item.ID, item.Status, item.AssigneeID, item.ReplyText, item.RepliedAt, item.RepliedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	if _, err := r.GetByID(ctx, item.ID); err != nil {
		return err
	}
	return fmt.Errorf("queue item %d is closed: %w", item.ID, model.ErrInvalidTransition)
}
