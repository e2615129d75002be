package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flockline/flockline/internal/model"
)

type PostgresAuditRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresAuditRepo(pool *pgxpool.Pool) *PostgresAuditRepo {
	return &PostgresAuditRepo{pool: pool}
}

func (r *PostgresAuditRepo) Insert(ctx context.Context, e model.AuditEntry) (model.AuditEntry, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO command_audit (tenant_id, handle, command, command_text, success, error_detail, response_sent, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING id, created_at
	`, e.TenantID, e.Handle, e.Command, e.CommandText, e.Success, e.ErrorDetail, e.ResponseSent, e.LatencyMS).
		Scan(&e.ID, &e.CreatedAt)
	return e, err
}

func (r *PostgresAuditRepo) ListRecent(ctx context.Context, tenantID int64, limit, offset int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, handle, command, command_text, success, error_detail, response_sent, latency_ms, created_at
		FROM command_audit
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(
			&e.ID,
			&e.TenantID,
			&e.Handle,
			&e.Command,
			&e.CommandText,
			&e.Success,
			&e.ErrorDetail,
			&e.ResponseSent,
			&e.LatencyMS,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
