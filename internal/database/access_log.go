package database

import (
	"context"
	"fmt"

	"github.com/javierd009/concierge/internal/database/models"
)

type accessLogRepo struct {
	db dbTx
}

// NewAccessLogRepository creates a new AccessLogRepository.
func NewAccessLogRepository(db dbTx) AccessLogRepository {
	return &accessLogRepo{db: db}
}

func (r *accessLogRepo) Append(ctx context.Context, l *models.AccessLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO access_logs (id, tenant_id, event_type, access_point, direction, resident_id,
		 visitor_id, authorization_meth, snapshot_url, confidence, extra_data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))`,
		l.ID, l.TenantID, l.EventType, l.AccessPoint, l.Direction, l.ResidentID,
		l.VisitorID, l.AuthorizationMeth, l.SnapshotURL, l.Confidence, l.ExtraData,
	)
	if err != nil {
		return fmt.Errorf("appending access log: %w", err)
	}
	return nil
}
