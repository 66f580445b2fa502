package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/javierd009/concierge/internal/database/models"
)

type telephonyExtensionRepo struct {
	db dbTx
}

// NewTelephonyExtensionRepository creates a new TelephonyExtensionRepository.
func NewTelephonyExtensionRepository(db dbTx) TelephonyExtensionRepository {
	return &telephonyExtensionRepo{db: db}
}

func (r *telephonyExtensionRepo) GetByExtension(ctx context.Context, tenantID, extension string) (*models.TelephonyExtensionMap, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, extension, access_point, device_type, device_host, door_index, enabled, created_at, updated_at
		 FROM telephony_extension_maps WHERE tenant_id = ? AND extension = ?`, tenantID, extension)
	var m models.TelephonyExtensionMap
	if err := row.Scan(&m.ID, &m.TenantID, &m.Extension, &m.AccessPoint, &m.DeviceType, &m.DeviceHost,
		&m.DoorIndex, &m.Enabled, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning telephony extension map: %w", err)
	}
	return &m, nil
}
