package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/javierd009/concierge/internal/database/models"
)

type tenantRepo struct {
	db dbTx
}

// NewTenantRepository creates a new TenantRepository.
func NewTenantRepository(db dbTx) TenantRepository {
	return &tenantRepo{db: db}
}

func (r *tenantRepo) Create(ctx context.Context, t *models.Tenant) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tenants (id, display_name, timezone, settings, created_at, updated_at)
		 VALUES (?, ?, ?, ?, datetime('now'), datetime('now'))`,
		t.ID, t.DisplayName, t.Timezone, t.Settings,
	)
	if err != nil {
		return fmt.Errorf("inserting tenant: %w", err)
	}
	return nil
}

func (r *tenantRepo) GetByID(ctx context.Context, id string) (*models.Tenant, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, display_name, timezone, settings, retired_at, created_at, updated_at
		 FROM tenants WHERE id = ?`, id)
	var t models.Tenant
	if err := row.Scan(&t.ID, &t.DisplayName, &t.Timezone, &t.Settings, &t.RetiredAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning tenant: %w", err)
	}
	return &t, nil
}

func (r *tenantRepo) List(ctx context.Context) ([]models.Tenant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, display_name, timezone, settings, retired_at, created_at, updated_at FROM tenants ORDER BY display_name`)
	if err != nil {
		return nil, fmt.Errorf("querying tenants: %w", err)
	}
	defer rows.Close()

	var out []models.Tenant
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(&t.ID, &t.DisplayName, &t.Timezone, &t.Settings, &t.RetiredAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning tenant row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *tenantRepo) Update(ctx context.Context, t *models.Tenant) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tenants SET display_name = ?, timezone = ?, settings = ?, retired_at = ?, updated_at = datetime('now')
		 WHERE id = ?`,
		t.DisplayName, t.Timezone, t.Settings, t.RetiredAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("updating tenant: %w", err)
	}
	return nil
}
