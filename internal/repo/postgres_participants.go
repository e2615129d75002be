package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flockline/flockline/internal/model"
)

type PostgresParticipantRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresParticipantRepo(pool *pgxpool.Pool) *PostgresParticipantRepo {
	return &PostgresParticipantRepo{pool: pool}
}

func (r *PostgresParticipantRepo) FindByHandle(ctx context.Context, tenantID int64, handle string) (model.Participant, error) {
	var p model.Participant
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, handle, full_name, status, joined_at, last_active_at
		FROM participants
		WHERE tenant_id = $1 AND handle = $2
	`, tenantID, handle).Scan(&p.ID, &p.TenantID, &p.Handle, &p.FullName, &p.Status, &p.JoinedAt, &p.LastActiveAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Participant{}, fmt.Errorf("participant %q: %w", handle, model.ErrNotFound)
	}
	return p, err
}

// Register inserts the participant or, when the handle is already known,
// updates the name and flips the status back to ACTIVE. Re-registering after
// an unsubscribe reactivates the contact.
func (r *PostgresParticipantRepo) Register(ctx context.Context, tenantID int64, handle, fullName string) (model.Participant, error) {
	var p model.Participant
	err := r.pool.QueryRow(ctx, `
		INSERT INTO participants (tenant_id, handle, full_name, status, joined_at, last_active_at)
		VALUES ($1, $2, $3, 'ACTIVE', now(), now())
		ON CONFLICT (tenant_id, handle)
		DO UPDATE SET full_name = EXCLUDED.full_name, status = 'ACTIVE', last_active_at = now()
		RETURNING id, tenant_id, handle, full_name, status, joined_at, last_active_at
	`, tenantID, handle, fullName).Scan(&p.ID, &p.TenantID, &p.Handle, &p.FullName, &p.Status, &p.JoinedAt, &p.LastActiveAt)
	return p, err
}

func (r *PostgresParticipantRepo) SetStatus(ctx context.Context, id int64, status model.ParticipantStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE participants SET status = $2, last_active_at = now() WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("participant %d: %w", id, model.ErrNotFound)
	}
	return nil
}

func (r *PostgresParticipantRepo) TouchLastActive(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE participants SET last_active_at = now() WHERE id = $1
	`, id)
	return err
}
