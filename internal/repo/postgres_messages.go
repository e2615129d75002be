package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flockline/flockline/internal/model"
)

const messageColumns = `id, tenant_id, conversation_id, participant_id, handle, direction, body, provider_message_id, status, command, escalated, processed, created_at, updated_at`

type PostgresMessageRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresMessageRepo(pool *pgxpool.Pool) *PostgresMessageRepo {
	return &PostgresMessageRepo{pool: pool}
}

// Insert runs the whole append as one transaction: conversation upsert,
// message insert, counter bump. The unique index on provider_message_id turns
// a duplicate delivery into a clean short-circuit — the transaction writes
// nothing and the stored row is returned, so counters can never double-count.
func (r *PostgresMessageRepo) Insert(ctx context.Context, m model.Message) (model.Message, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Message{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	conv, err := upsertConversation(ctx, tx, m.TenantID, m.Handle, m.ParticipantID)
	if err != nil {
		return model.Message{}, false, fmt.Errorf("upsert conversation: %w", err)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO messages (tenant_id, conversation_id, participant_id, handle, direction, body, provider_message_id, status, command, escalated, processed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, false, now(), now())
		ON CONFLICT (provider_message_id) DO NOTHING
		RETURNING `+messageColumns,
		m.TenantID, conv.ID, m.ParticipantID, m.Handle, m.Direction, m.Body, m.ProviderMessageID, m.Status, m.Command)

	stored, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Duplicate provider message id. Abandon the transaction and hand
		// back what the first delivery stored.
		existing, gerr := r.GetByProviderID(ctx, m.ProviderMessageID)
		if gerr != nil {
			return model.Message{}, false, gerr
		}
		return existing, false, nil
	}
	if err != nil {
		return model.Message{}, false, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE conversations
		SET last_message = $2,
		    last_message_at = now(),
		    message_count = message_count + 1,
		    unread_count = unread_count + CASE WHEN $3 THEN 1 ELSE 0 END,
		    updated_at = now()
		WHERE id = $1
	`, conv.ID, m.Body, m.Direction == model.Inbound); err != nil {
		return model.Message{}, false, fmt.Errorf("update counters: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Message{}, false, err
	}
	return stored, true, nil
}

func scanMessage(row pgx.Row) (model.Message, error) {
	var m model.Message
	err := row.Scan(
		&m.ID,
		&m.TenantID,
		&m.ConversationID,
		&m.ParticipantID,
		&m.Handle,
		&m.Direction,
		&m.Body,
		&m.ProviderMessageID,
		&m.Status,
		&m.Command,
		&m.Escalated,
		&m.Processed,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	return m, err
}

func (r *PostgresMessageRepo) GetByID(ctx context.Context, id int64) (model.Message, error) {
	m, err := scanMessage(r.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Message{}, fmt.Errorf("message %d: %w", id, model.ErrNotFound)
	}
	return m, err
}

func (r *PostgresMessageRepo) GetByProviderID(ctx context.Context, providerMessageID string) (model.Message, error) {
	m, err := scanMessage(r.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE provider_message_id = $1`, providerMessageID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Message{}, fmt.Errorf("message %q: %w", providerMessageID, model.ErrNotFound)
	}
	return m, err
}

func (r *PostgresMessageRepo) MarkProcessed(ctx context.Context, id int64, label *model.CommandLabel, escalated bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE messages SET command = $2, escalated = $3, processed = true, updated_at = now()
		WHERE id = $1
	`, id, label, escalated)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message %d: %w", id, model.ErrNotFound)
	}
	return nil
}

func (r *PostgresMessageRepo) UpdateStatus(ctx context.Context, providerMessageID string, status model.DeliveryStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE messages SET status = $2, updated_at = now()
		WHERE provider_message_id = $1
	`, providerMessageID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message %q: %w", providerMessageID, model.ErrNotFound)
	}
	return nil
}

func (r *PostgresMessageRepo) ListByConversation(ctx context.Context, conversationID int64, limit, offset int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
