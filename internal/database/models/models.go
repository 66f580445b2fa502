package models

import "time"

// Tenant is the administrative boundary: a single condominium.
type Tenant struct {
	ID          string
	DisplayName string
	Timezone    string
	Settings    string // JSON: branding, device endpoint overrides
	RetiredAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Resident is an end user identified by a globally unique phone number and a
// tenant-scoped unit.
type Resident struct {
	ID        string
	TenantID  string
	Phone     string
	Name      string
	Unit      string
	Building  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Visitor status values.
const (
	VisitorStatusPending  = "pending"
	VisitorStatusApproved = "approved"
	VisitorStatusDenied   = "denied"
	VisitorStatusInside   = "inside"
	VisitorStatusExited   = "exited"
)

// Visitor is a person granted access, tied to a resident.
type Visitor struct {
	ID                string
	TenantID          string
	ResidentID        string
	Name              string
	Plate             string
	IdentificationNum string
	ValidFrom         *time.Time
	ValidUntil        *time.Time
	AllowedPoints     []string // subset of AccessPoints
	Status            string
	AuthorizedByChan  string // "voice" | "whatsapp" | "qr" | "guard"
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Access points — the closed set named throughout the spec.
const (
	AccessPointVehicularEntry = "vehicular_entry"
	AccessPointVehicularExit  = "vehicular_exit"
	AccessPointPedestrian     = "pedestrian"
)

// ValidAccessPoint reports whether p is a member of the closed access-point set.
func ValidAccessPoint(p string) bool {
	switch p {
	case AccessPointVehicularEntry, AccessPointVehicularExit, AccessPointPedestrian:
		return true
	default:
		return false
	}
}

// AccessCredential statuses.
const (
	CredentialStatusActive  = "active"
	CredentialStatusUsed    = "used"
	CredentialStatusRevoked = "revoked"
	CredentialStatusExpired = "expired"
)

// UnlimitedUses marks an AccessCredential.MaxUses as having no cap.
const UnlimitedUses = 0

// AccessCredential is a generic credential envelope; QrToken wraps a
// credential of Type "qr" one-to-one.
type AccessCredential struct {
	ID              string
	TenantID        string
	VisitorID       string
	Type            string // "qr" | "pin" | "plate" | "face" | "card"
	ValidFrom       *time.Time
	ValidUntil      *time.Time
	AllowedPoints   []string
	MaxUses         int // 0 = unlimited
	UseCount        int
	Status          string
	ProvisioningMod string // "backend" | "device"
	DeviceTargets   string // JSON map of device host -> provisioning result
	UsedAt          *time.Time
	RevokedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Expired reports whether the credential's validity window has closed as of now.
func (c *AccessCredential) Expired(now time.Time) bool {
	return c.ValidUntil != nil && !now.Before(*c.ValidUntil)
}

// UsedUp reports whether the credential has exhausted its bounded use budget.
func (c *AccessCredential) UsedUp() bool {
	return c.MaxUses > 0 && c.UseCount >= c.MaxUses
}

// QrToken is one-to-one with an AccessCredential of type "qr".
type QrToken struct {
	ID           string
	TenantID     string
	CredentialID string
	ResidentID   string // issuing resident, for revoke ownership checks
	Token        string // URL-safe, >=192 bits entropy
	CardNo       string // numeric, configured digit width
	EmployeeNo   string // prefix + first 10 hex chars of visitor id
	MaxUses      int
	UseCount     int
	ExpiresAt    time.Time
	UsedAt       *time.Time
	RevokedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AccessLog is an append-only event record. Never mutated after insert.
type AccessLog struct {
	ID                string
	TenantID          string
	EventType         string // "entry" | "exit" | "denied" | "open_gate" | "transferred" | ...
	AccessPoint       string
	Direction         string
	ResidentID        string
	VisitorID         string
	AuthorizationMeth string
	SnapshotURL       string
	Confidence        float64
	ExtraData         string // JSON
	CreatedAt         time.Time
}

// AuditLog is an append-only decision record.
type AuditLog struct {
	ID           string
	TenantID     string
	ActorType    string // "resident" | "visitor" | "system" | "guard"
	ActorID      string
	ActorLabel   string
	Action       string
	ResourceType string
	ResourceID   string
	Outcome      string // "success" | "failure"
	Message      string
	ExtraData    string // JSON
	CreatedAt    time.Time
}

// APIKeyRecord is a service-account credential for the tenant HTTP surface.
type APIKeyRecord struct {
	ID         string
	TenantID   string
	Label      string
	SecretHash string
	RevokedAt  *time.Time
	CreatedAt  time.Time
}

// TelephonyExtensionMap resolves an intercom extension string to a physical
// access point and device, for PBX-initiated open flows.
type TelephonyExtensionMap struct {
	ID          string
	TenantID    string
	Extension   string
	AccessPoint string
	DeviceType  string // "panel" | "biometric"
	DeviceHost  string
	DoorIndex   int
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
