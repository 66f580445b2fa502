package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/javierd009/concierge/internal/database/models"
)

type apiKeyRepo struct {
	db dbTx
}

// NewAPIKeyRepository creates a new APIKeyRepository.
func NewAPIKeyRepository(db dbTx) APIKeyRepository {
	return &apiKeyRepo{db: db}
}

func (r *apiKeyRepo) Create(ctx context.Context, tenantID, label, secretHash string) (*models.APIKeyRecord, error) {
	rec := &models.APIKeyRecord{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		Label:      label,
		SecretHash: secretHash,
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, tenant_id, label, secret_hash, created_at) VALUES (?, ?, ?, ?, datetime('now'))`,
		rec.ID, rec.TenantID, rec.Label, rec.SecretHash,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting api key: %w", err)
	}
	return rec, nil
}

func (r *apiKeyRepo) FindActiveByTenant(ctx context.Context, tenantID string) ([]models.APIKeyRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, tenant_id, label, secret_hash, revoked_at, created_at FROM api_keys
		 WHERE tenant_id = ? AND revoked_at IS NULL`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying api keys: %w", err)
	}
	defer rows.Close()

	var out []models.APIKeyRecord
	for rows.Next() {
		var k models.APIKeyRecord
		if err := rows.Scan(&k.ID, &k.TenantID, &k.Label, &k.SecretHash, &k.RevokedAt, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
