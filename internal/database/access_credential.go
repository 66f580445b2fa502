package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/javierd009/concierge/internal/database/models"
)

type accessCredentialRepo struct {
	db dbTx
}

// NewAccessCredentialRepository creates a new AccessCredentialRepository.
func NewAccessCredentialRepository(db dbTx) AccessCredentialRepository {
	return &accessCredentialRepo{db: db}
}

func (r *accessCredentialRepo) Create(ctx context.Context, c *models.AccessCredential) error {
	points, err := json.Marshal(c.AllowedPoints)
	if err != nil {
		return fmt.Errorf("marshaling allowed points: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO access_credentials (id, tenant_id, visitor_id, type, valid_from, valid_until,
		 allowed_points, max_uses, use_count, status, provisioning_mode, device_targets,
		 used_at, revoked_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))`,
		c.ID, c.TenantID, c.VisitorID, c.Type, c.ValidFrom, c.ValidUntil,
		string(points), c.MaxUses, c.UseCount, c.Status, c.ProvisioningMod, c.DeviceTargets,
		c.UsedAt, c.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting access credential: %w", err)
	}
	return nil
}

const credentialSelect = `SELECT id, tenant_id, visitor_id, type, valid_from, valid_until,
		 allowed_points, max_uses, use_count, status, provisioning_mode, device_targets,
		 used_at, revoked_at, created_at, updated_at FROM access_credentials`

func scanCredential(row *sql.Row) (*models.AccessCredential, error) {
	var c models.AccessCredential
	var points string
	if err := row.Scan(&c.ID, &c.TenantID, &c.VisitorID, &c.Type, &c.ValidFrom, &c.ValidUntil,
		&points, &c.MaxUses, &c.UseCount, &c.Status, &c.ProvisioningMod, &c.DeviceTargets,
		&c.UsedAt, &c.RevokedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning access credential: %w", err)
	}
	if err := json.Unmarshal([]byte(points), &c.AllowedPoints); err != nil {
		return nil, fmt.Errorf("unmarshaling allowed points: %w", err)
	}
	return &c, nil
}

func (r *accessCredentialRepo) GetByID(ctx context.Context, tenantID, id string) (*models.AccessCredential, error) {
	return scanCredential(r.db.QueryRowContext(ctx, credentialSelect+` WHERE tenant_id = ? AND id = ?`, tenantID, id))
}

func (r *accessCredentialRepo) Update(ctx context.Context, c *models.AccessCredential) error {
	points, err := json.Marshal(c.AllowedPoints)
	if err != nil {
		return fmt.Errorf("marshaling allowed points: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE access_credentials SET status = ?, use_count = ?, used_at = ?, revoked_at = ?,
		 allowed_points = ?, device_targets = ?, updated_at = datetime('now') WHERE id = ?`,
		c.Status, c.UseCount, c.UsedAt, c.RevokedAt, string(points), c.DeviceTargets, c.ID,
	)
	if err != nil {
		return fmt.Errorf("updating access credential: %w", err)
	}
	return nil
}
