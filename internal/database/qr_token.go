package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/javierd009/concierge/internal/database/models"
)

type qrTokenRepo struct {
	db dbTx
}

// NewQrTokenRepository creates a new QrTokenRepository.
func NewQrTokenRepository(db dbTx) QrTokenRepository {
	return &qrTokenRepo{db: db}
}

const qrTokenSelect = `SELECT id, tenant_id, credential_id, resident_id, token, card_no, employee_no,
		 max_uses, use_count, expires_at, used_at, revoked_at, created_at, updated_at FROM qr_tokens`

func scanQrToken(row *sql.Row) (*models.QrToken, error) {
	var q models.QrToken
	if err := row.Scan(&q.ID, &q.TenantID, &q.CredentialID, &q.ResidentID, &q.Token, &q.CardNo, &q.EmployeeNo,
		&q.MaxUses, &q.UseCount, &q.ExpiresAt, &q.UsedAt, &q.RevokedAt, &q.CreatedAt, &q.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning qr token: %w", err)
	}
	return &q, nil
}

func (r *qrTokenRepo) Create(ctx context.Context, q *models.QrToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO qr_tokens (id, tenant_id, credential_id, resident_id, token, card_no, employee_no,
		 max_uses, use_count, expires_at, used_at, revoked_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))`,
		q.ID, q.TenantID, q.CredentialID, q.ResidentID, q.Token, q.CardNo, q.EmployeeNo,
		q.MaxUses, q.UseCount, q.ExpiresAt, q.UsedAt, q.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting qr token: %w", err)
	}
	return nil
}

func (r *qrTokenRepo) GetByToken(ctx context.Context, tenantID, token string) (*models.QrToken, error) {
	return scanQrToken(r.db.QueryRowContext(ctx, qrTokenSelect+` WHERE tenant_id = ? AND token = ?`, tenantID, token))
}

func (r *qrTokenRepo) Update(ctx context.Context, q *models.QrToken) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE qr_tokens SET use_count = ?, used_at = ?, revoked_at = ?, updated_at = datetime('now') WHERE id = ?`,
		q.UseCount, q.UsedAt, q.RevokedAt, q.ID,
	)
	if err != nil {
		return fmt.Errorf("updating qr token: %w", err)
	}
	return nil
}
