package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flockline/flockline/internal/model"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the conversation
// upsert can run standalone or inside the message-insert transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const conversationColumns = `id, tenant_id, participant_id, handle, status, last_message, last_message_at, message_count, unread_count, created_at, updated_at`

// upsertConversation is the atomic get-or-create for (tenant_id, handle).
// The ON CONFLICT arm always updates, so RETURNING yields the row whether it
// was inserted or already existed; the unique index serializes concurrent
// creators.
func upsertConversation(ctx context.Context, q querier, tenantID int64, handle string, participantID *int64) (model.Conversation, error) {
	row := q.QueryRow(ctx, `
		INSERT INTO conversations (tenant_id, participant_id, handle, status, last_message, last_message_at, message_count, unread_count, created_at, updated_at)
		VALUES ($1, $2, $3, 'ACTIVE', '', now(), 0, 0, now(), now())
		ON CONFLICT (tenant_id, handle)
		DO UPDATE SET
			participant_id = COALESCE(conversations.participant_id, EXCLUDED.participant_id),
			updated_at = now()
		RETURNING `+conversationColumns, tenantID, participantID, handle)
	return scanConversation(row)
}

func scanConversation(row pgx.Row) (model.Conversation, error) {
	var c model.Conversation
	err := row.Scan(
		&c.ID,
		&c.TenantID,
		&c.ParticipantID,
		&c.Handle,
		&c.Status,
		&c.LastMessage,
		&c.LastMessageAt,
		&c.MessageCount,
		&c.UnreadCount,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}

type PostgresConversationRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresConversationRepo(pool *pgxpool.Pool) *PostgresConversationRepo {
	return &PostgresConversationRepo{pool: pool}
}

func (r *PostgresConversationRepo) Upsert(ctx context.Context, tenantID int64, handle string, participantID *int64) (model.Conversation, error) {
	return upsertConversation(ctx, r.pool, tenantID, handle, participantID)
}

func (r *PostgresConversationRepo) GetByID(ctx context.Context, id int64) (model.Conversation, error) {
	c, err := scanConversation(r.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Conversation{}, fmt.Errorf("conversation %d: %w", id, model.ErrNotFound)
	}
	return c, err
}

func (r *PostgresConversationRepo) ListByStatus(ctx context.Context, tenantID int64, status model.ConversationStatus, limit, offset int) ([]model.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE tenant_id = $1 AND status = $2
		ORDER BY last_message_at DESC
		LIMIT $3 OFFSET $4
	`, tenantID, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectConversations(rows)
}

func (r *PostgresConversationRepo) ListUnread(ctx context.Context, tenantID int64) ([]model.Conversation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE tenant_id = $1 AND unread_count > 0
		ORDER BY last_message_at DESC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectConversations(rows)
}

func collectConversations(rows pgx.Rows) ([]model.Conversation, error) {
	var out []model.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresConversationRepo) MarkRead(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations SET unread_count = 0, updated_at = now() WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation %d: %w", id, model.ErrNotFound)
	}
	return nil
}

func (r *PostgresConversationRepo) SetStatus(ctx context.Context, id int64, status model.ConversationStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations SET status = $2, updated_at = now()
		WHERE id = $1 AND status = 'ACTIVE'
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Already CLOSED or ARCHIVED is a no-op; only a missing row is an error.
	_, err = r.GetByID(ctx, id)
	return err
}

func (r *PostgresConversationRepo) SweepInactive(ctx context.Context, tenantID int64, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations SET status = 'ARCHIVED', updated_at = now()
		WHERE tenant_id = $1 AND status = 'ACTIVE' AND last_message_at < $2
	`, tenantID, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
