package database

import (
	"context"

	"github.com/javierd009/concierge/internal/database/models"
)

// TenantRepository manages condominium tenants.
type TenantRepository interface {
	Create(ctx context.Context, t *models.Tenant) error
	GetByID(ctx context.Context, id string) (*models.Tenant, error)
	List(ctx context.Context) ([]models.Tenant, error)
	Update(ctx context.Context, t *models.Tenant) error
}

// ResidentRepository manages residents.
type ResidentRepository interface {
	Create(ctx context.Context, r *models.Resident) error
	GetByID(ctx context.Context, tenantID, id string) (*models.Resident, error)
	GetByPhone(ctx context.Context, phone string) (*models.Resident, error)
	FindByNameOrUnit(ctx context.Context, tenantID, name, unit string, limit int) ([]models.Resident, error)
}

// VisitorRepository manages visitors.
type VisitorRepository interface {
	Create(ctx context.Context, v *models.Visitor) error
	GetByID(ctx context.Context, tenantID, id string) (*models.Visitor, error)
	FindPreauthorized(ctx context.Context, tenantID, visitorName, residentID, unit string) (*models.Visitor, error)
}

// AccessCredentialRepository manages generic access credentials.
type AccessCredentialRepository interface {
	Create(ctx context.Context, c *models.AccessCredential) error
	GetByID(ctx context.Context, tenantID, id string) (*models.AccessCredential, error)
	Update(ctx context.Context, c *models.AccessCredential) error
}

// QrTokenRepository manages QR credential tokens.
type QrTokenRepository interface {
	Create(ctx context.Context, q *models.QrToken) error
	GetByToken(ctx context.Context, tenantID, token string) (*models.QrToken, error)
	Update(ctx context.Context, q *models.QrToken) error
}

// AccessLogRepository appends access events. Rows are never mutated after insert.
type AccessLogRepository interface {
	Append(ctx context.Context, l *models.AccessLog) error
}

// AuditLogRepository appends audit decision records. Rows are never mutated after insert.
type AuditLogRepository interface {
	Append(ctx context.Context, a *models.AuditLog) error
}

// TelephonyExtensionRepository resolves intercom extensions to access points.
type TelephonyExtensionRepository interface {
	GetByExtension(ctx context.Context, tenantID, extension string) (*models.TelephonyExtensionMap, error)
}

// APIKeyRepository manages service-account credentials for the HTTP surface.
type APIKeyRepository interface {
	Create(ctx context.Context, tenantID, label, secretHash string) (*models.APIKeyRecord, error)
	FindActiveByTenant(ctx context.Context, tenantID string) ([]models.APIKeyRecord, error)
}
