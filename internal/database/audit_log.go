package database

import (
	"context"
	"fmt"

	"github.com/javierd009/concierge/internal/database/models"
)

type auditLogRepo struct {
	db dbTx
}

// NewAuditLogRepository creates a new AuditLogRepository.
func NewAuditLogRepository(db dbTx) AuditLogRepository {
	return &auditLogRepo{db: db}
}

func (r *auditLogRepo) Append(ctx context.Context, a *models.AuditLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, tenant_id, actor_type, actor_id, actor_label, action,
		 resource_type, resource_id, outcome, message, extra_data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))`,
		a.ID, a.TenantID, a.ActorType, a.ActorID, a.ActorLabel, a.Action,
		a.ResourceType, a.ResourceID, a.Outcome, a.Message, a.ExtraData,
	)
	if err != nil {
		return fmt.Errorf("appending audit log: %w", err)
	}
	return nil
}
