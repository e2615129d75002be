package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flockline/flockline/internal/model"
)

type PostgresTenantRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresTenantRepo(pool *pgxpool.Pool) *PostgresTenantRepo {
	return &PostgresTenantRepo{pool: pool}
}

func (r *PostgresTenantRepo) ResolveByChannelNumber(ctx context.Context, channelNumber string) (model.Tenant, error) {
	var t model.Tenant
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, channel_number, location, contact_phone, created_at
		FROM tenants
		WHERE channel_number = $1
	`, channelNumber).Scan(&t.ID, &t.Name, &t.ChannelNumber, &t.Location, &t.ContactPhone, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Tenant{}, fmt.Errorf("tenant for channel %q: %w", channelNumber, model.ErrNotFound)
	}
	return t, err
}

func (r *PostgresTenantRepo) List(ctx context.Context) ([]model.Tenant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, channel_number, location, contact_phone, created_at
		FROM tenants
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Tenant
	for rows.Next() {
		var t model.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.ChannelNumber, &t.Location, &t.ContactPhone, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
