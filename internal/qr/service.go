// Package qr implements the QR Credential Lifecycle: issue, consume, revoke
// and scan for visitor access credentials backed by QR codes.
package qr

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/javierd009/concierge/internal/config"
	"github.com/javierd009/concierge/internal/database"
	"github.com/javierd009/concierge/internal/database/models"
	"github.com/javierd009/concierge/internal/devices"
)

// maxProvisionAttempts bounds the card_no collision retry loop in Issue.
const maxProvisionAttempts = 10

// accessPointDoors maps the closed access-point set to the panel device and
// door index consume() must invoke, per the mapping table in §6.
var accessPointDoors = map[string]int{
	models.AccessPointVehicularEntry: 1,
	models.AccessPointVehicularExit:  2,
	models.AccessPointPedestrian:     1,
}

// Service implements the QR credential lifecycle against persistence and the
// configured access devices.
type Service struct {
	db  *database.DB
	cfg *config.Config

	nowFunc func() time.Time
}

// New constructs a Service wired to db and cfg.
func New(db *database.DB, cfg *config.Config) *Service {
	return &Service{db: db, cfg: cfg, nowFunc: time.Now}
}

// IssueInput carries the fields accepted by POST /qr/issue-visit.
type IssueInput struct {
	TenantID          string
	ResidentID        string
	VisitorName       string
	Plate             string
	IdentificationNum string
	ValidFrom         *time.Time
	ValidUntil        *time.Time
	AllowedPoints     []string
	MaxUses           int
	AuthorizationType string // "airbnb" | "employee" | "guest" | "delivery"
}

// IssueResult is returned to the HTTP layer and rendered into the QR card.
type IssueResult struct {
	VisitorID       string
	CredentialID    string
	QrTokenID       string
	Token           string
	CardNo          string
	EmployeeNo      string
	ExpiresAt       time.Time
	ProvisionedOn   []string
	ProvisioningMod string
}

// normalizePoints validates and de-duplicates allowed access points,
// preserving input order.
func normalizePoints(points []string) ([]string, error) {
	seen := make(map[string]bool, len(points))
	out := make([]string, 0, len(points))
	for _, p := range points {
		if !models.ValidAccessPoint(p) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPoint, p)
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out, nil
}

// Issue provisions the visitor on the biometric readers first, then writes
// visitor, credential, QR token and audit row in one transaction that
// commits them together.
func (s *Service) Issue(ctx context.Context, in IssueInput) (*IssueResult, error) {
	if in.ValidFrom != nil && in.ValidUntil != nil && !in.ValidFrom.Before(*in.ValidUntil) {
		return nil, ErrInvalidWindow
	}
	points, err := normalizePoints(in.AllowedPoints)
	if err != nil {
		return nil, err
	}
	maxUses := in.MaxUses
	if maxUses < 0 {
		maxUses = models.UnlimitedUses
	}

	now := s.nowFunc()
	visitorUUID := uuid.New()
	visitorID := visitorUUID.String()
	credentialID := uuid.NewString()
	qrTokenID := uuid.NewString()
	employeeNo := s.cfg.QREmployeePrefix + hex.EncodeToString(visitorUUID[:])[:10]

	provisioned, cardNo, err := s.provisionBiometrics(ctx, employeeNo, in.VisitorName, in.ValidFrom, in.ValidUntil, now)
	if err != nil {
		return nil, err
	}

	token, err := newPrintableToken()
	if err != nil {
		return nil, err
	}

	var expiresAt time.Time
	if in.ValidUntil != nil {
		expiresAt = *in.ValidUntil
	} else {
		expiresAt = now.AddDate(1, 0, 0)
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		visitors := database.NewVisitorRepository(tx)
		credentials := database.NewAccessCredentialRepository(tx)
		tokens := database.NewQrTokenRepository(tx)
		audits := database.NewAuditLogRepository(tx)

		visitor := &models.Visitor{
			ID:                visitorID,
			TenantID:          in.TenantID,
			ResidentID:        in.ResidentID,
			Name:              in.VisitorName,
			Plate:             in.Plate,
			IdentificationNum: in.IdentificationNum,
			ValidFrom:         in.ValidFrom,
			ValidUntil:        in.ValidUntil,
			AllowedPoints:     points,
			Status:            models.VisitorStatusApproved,
			AuthorizedByChan:  in.AuthorizationType,
		}
		if err := visitors.Create(ctx, visitor); err != nil {
			return fmt.Errorf("creating visitor: %w", err)
		}

		credential := &models.AccessCredential{
			ID:              credentialID,
			TenantID:        in.TenantID,
			VisitorID:       visitorID,
			Type:            "qr",
			ValidFrom:       in.ValidFrom,
			ValidUntil:      in.ValidUntil,
			AllowedPoints:   points,
			MaxUses:         maxUses,
			UseCount:        0,
			Status:          models.CredentialStatusActive,
			ProvisioningMod: "device",
			DeviceTargets:   joinHosts(provisioned),
		}
		if err := credentials.Create(ctx, credential); err != nil {
			return fmt.Errorf("creating access credential: %w", err)
		}

		qrToken := &models.QrToken{
			ID:           qrTokenID,
			TenantID:     in.TenantID,
			CredentialID: credentialID,
			ResidentID:   in.ResidentID,
			Token:        token,
			CardNo:       cardNo,
			EmployeeNo:   employeeNo,
			MaxUses:      maxUses,
			UseCount:     0,
			ExpiresAt:    expiresAt,
		}
		if err := tokens.Create(ctx, qrToken); err != nil {
			return fmt.Errorf("creating qr token: %w", err)
		}

		return audits.Append(ctx, &models.AuditLog{
			ID:           uuid.NewString(),
			TenantID:     in.TenantID,
			ActorType:    "resident",
			ActorID:      in.ResidentID,
			Action:       "issue_qr",
			ResourceType: "qr_token",
			ResourceID:   qrTokenID,
			Outcome:      "success",
			Message:      fmt.Sprintf("issued qr for visitor %s", in.VisitorName),
		})
	})
	if err != nil {
		return nil, err
	}

	return &IssueResult{
		VisitorID:       visitorID,
		CredentialID:    credentialID,
		QrTokenID:       qrTokenID,
		Token:           token,
		CardNo:          cardNo,
		EmployeeNo:      employeeNo,
		ExpiresAt:       expiresAt,
		ProvisionedOn:   provisioned,
		ProvisioningMod: "device",
	}, nil
}

// provisionBiometrics picks a random card_no and provisions it on every
// configured biometric device, retrying with a fresh number on collision.
// All devices must accept the same card_no for a given attempt.
func (s *Service) provisionBiometrics(ctx context.Context, employeeNo, name string, validFrom, validUntil *time.Time, now time.Time) ([]string, string, error) {
	hosts := s.biometricHosts()
	loc := s.cfg.TenantLocation()
	begin := localTimeString(validFrom, now, loc)
	end := localTimeString(validUntil, now.AddDate(1, 0, 0), loc)

	for attempt := 0; attempt < maxProvisionAttempts; attempt++ {
		cardNo, err := randomDigits(s.cfg.QRCardDigits)
		if err != nil {
			return nil, "", err
		}

		allOK := true
		var provisioned []string
		for _, h := range hosts {
			client := devices.Get(h.host, h.port, s.cfg.DeviceUsername, h.password, s.cfg.DeviceTimeout())
			result := client.CreateUserAndCard(ctx, employeeNo, name, begin, end, cardNo, 1)
			if !result.Success {
				allOK = false
				break
			}
			provisioned = append(provisioned, h.host)
		}
		if allOK {
			return provisioned, cardNo, nil
		}
	}
	return nil, "", ErrProvisioning
}

type deviceHost struct {
	host     string
	port     int
	password string
}

func (s *Service) biometricHosts() []deviceHost {
	var hosts []deviceHost
	if s.cfg.Biometric1Host != "" {
		hosts = append(hosts, deviceHost{s.cfg.Biometric1Host, s.cfg.Biometric1Port, s.cfg.Biometric1Password})
	}
	if s.cfg.Biometric2Host != "" {
		hosts = append(hosts, deviceHost{s.cfg.Biometric2Host, s.cfg.Biometric2Port, s.cfg.Biometric2Password})
	}
	return hosts
}

// localTimeString renders t (or fallback, if t is nil) as a tenant-local
// naive "YYYY-MM-DDTHH:MM:SS" string, as the device API requires.
func localTimeString(t *time.Time, fallback time.Time, loc *time.Location) string {
	v := fallback
	if t != nil {
		v = *t
	}
	return v.In(loc).Format("2006-01-02T15:04:05")
}

func joinHosts(hosts []string) string {
	sort.Strings(hosts)
	out := "["
	for i, h := range hosts {
		if i > 0 {
			out += ","
		}
		out += `"` + h + `"`
	}
	return out + "]"
}

// ConsumeInput carries the fields accepted by POST /qr/consume.
type ConsumeInput struct {
	TenantID    string
	Token       string
	AccessPoint string
	Direction   string // "entry" | "exit"
}

// ConsumeResult mirrors the §4.5 consume response shape.
type ConsumeResult struct {
	Accepted   bool
	UseCount   int
	MaxUses    int
	GateOpened bool
	GateMethod string
}

// Consume validates preconditions in spec order, then records the access
// decision and attempts to open the mapped gate. It returns accepted=true
// once preconditions pass regardless of whether the gate itself opened.
func (s *Service) Consume(ctx context.Context, in ConsumeInput) (*ConsumeResult, error) {
	if !models.ValidAccessPoint(in.AccessPoint) {
		return nil, ErrInvalidPoint
	}
	now := s.nowFunc()

	var result *ConsumeResult
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		tokens := database.NewQrTokenRepository(tx)
		credentials := database.NewAccessCredentialRepository(tx)
		visitors := database.NewVisitorRepository(tx)
		accessLogs := database.NewAccessLogRepository(tx)
		audits := database.NewAuditLogRepository(tx)

		qrToken, err := tokens.GetByToken(ctx, in.TenantID, in.Token)
		if err != nil {
			if err == database.ErrNotFound {
				return ErrNotFound
			}
			return err
		}
		if qrToken.RevokedAt != nil {
			s.auditConsumeFailure(ctx, audits, in, qrToken.ID, "revoked")
			return ErrRevoked
		}
		if !qrToken.ExpiresAt.After(now) {
			s.auditConsumeFailure(ctx, audits, in, qrToken.ID, "expired")
			return ErrExpired
		}

		credential, err := credentials.GetByID(ctx, in.TenantID, qrToken.CredentialID)
		if err != nil {
			return err
		}
		if !containsPoint(credential.AllowedPoints, in.AccessPoint) {
			s.auditConsumeFailure(ctx, audits, in, qrToken.ID, "forbidden")
			return ErrForbiddenPoint
		}
		if qrToken.MaxUses > 0 && qrToken.UseCount >= qrToken.MaxUses {
			s.auditConsumeFailure(ctx, audits, in, qrToken.ID, "used_up")
			return ErrUsedUp
		}

		qrToken.UseCount++
		qrToken.UsedAt = &now
		if err := tokens.Update(ctx, qrToken); err != nil {
			return err
		}

		credential.UseCount++
		if credential.MaxUses > 0 && credential.UseCount >= credential.MaxUses {
			credential.Status = models.CredentialStatusUsed
		}
		credential.UsedAt = &now
		if err := credentials.Update(ctx, credential); err != nil {
			return err
		}

		visitor, err := visitors.GetByID(ctx, in.TenantID, credential.VisitorID)
		if err != nil {
			return err
		}

		gateOpened, gateMethod := s.openGate(ctx, in.AccessPoint)

		outcome := "failure"
		if gateOpened {
			outcome = "success"
		}
		if err := accessLogs.Append(ctx, &models.AccessLog{
			ID:                uuid.NewString(),
			TenantID:          in.TenantID,
			EventType:         in.Direction,
			AccessPoint:       in.AccessPoint,
			Direction:         in.Direction,
			ResidentID:        visitor.ResidentID,
			VisitorID:         visitor.ID,
			AuthorizationMeth: "qr",
		}); err != nil {
			return err
		}
		if err := audits.Append(ctx, &models.AuditLog{
			ID:           uuid.NewString(),
			TenantID:     in.TenantID,
			ActorType:    "visitor",
			ActorID:      visitor.ID,
			Action:       "consume_qr",
			ResourceType: "qr_token",
			ResourceID:   qrToken.ID,
			Outcome:      outcome,
			Message:      fmt.Sprintf("gate_method=%s", gateMethod),
		}); err != nil {
			return err
		}

		result = &ConsumeResult{
			Accepted:   true,
			UseCount:   qrToken.UseCount,
			MaxUses:    qrToken.MaxUses,
			GateOpened: gateOpened,
			GateMethod: gateMethod,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func containsPoint(points []string, p string) bool {
	for _, v := range points {
		if v == p {
			return true
		}
	}
	return false
}

func (s *Service) auditConsumeFailure(ctx context.Context, audits database.AuditLogRepository, in ConsumeInput, tokenID, reason string) {
	_ = audits.Append(ctx, &models.AuditLog{
		ID:           uuid.NewString(),
		TenantID:     in.TenantID,
		ActorType:    "visitor",
		Action:       "consume_qr",
		ResourceType: "qr_token",
		ResourceID:   tokenID,
		Outcome:      "failure",
		Message:      reason,
	})
}

// openGate invokes the Access-Device Client for the access point's mapped
// panel and door, per the §6 mapping table.
func (s *Service) openGate(ctx context.Context, accessPoint string) (bool, string) {
	door, ok := accessPointDoors[accessPoint]
	if !ok {
		return false, ""
	}
	host, port, password := s.cfg.AccessPanelHost, s.cfg.AccessPanelPort, s.cfg.AccessPanelPassword
	if accessPoint == models.AccessPointPedestrian {
		host, port, password = s.cfg.PedestrianHost, s.cfg.PedestrianPort, s.cfg.PedestrianPassword
	}
	if host == "" {
		return false, ""
	}
	client := devices.Get(host, port, s.cfg.DeviceUsername, password, s.cfg.DeviceTimeout())
	result := client.OpenDoor(ctx, door)
	if result.Success {
		return true, result.Method
	}

	// Rungs 1-4 all failed; fall back to shelling out to curl --digest
	// before giving up, per §4.4 step 5.
	if ok, _ := client.CurlDigestOpen(ctx, host, port, s.cfg.DeviceUsername, password, door); ok {
		return true, devices.MethodCurlDigest
	}
	return false, ""
}

// RevokeInput carries the fields accepted by POST /qr/revoke.
type RevokeInput struct {
	TenantID   string
	ResidentID string
	Token      string
	Reason     string
}

// Revoke marks a token (and its credential) revoked. Idempotent: revoking an
// already-revoked token succeeds without re-stamping revoked_at.
func (s *Service) Revoke(ctx context.Context, in RevokeInput) error {
	now := s.nowFunc()
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		tokens := database.NewQrTokenRepository(tx)
		credentials := database.NewAccessCredentialRepository(tx)
		audits := database.NewAuditLogRepository(tx)

		qrToken, err := tokens.GetByToken(ctx, in.TenantID, in.Token)
		if err != nil {
			if err == database.ErrNotFound {
				return ErrNotFound
			}
			return err
		}
		if qrToken.ResidentID != in.ResidentID {
			return ErrForbiddenOwner
		}

		if qrToken.RevokedAt == nil {
			qrToken.RevokedAt = &now
			if err := tokens.Update(ctx, qrToken); err != nil {
				return err
			}
			if credential, err := credentials.GetByID(ctx, in.TenantID, qrToken.CredentialID); err == nil {
				credential.RevokedAt = &now
				credential.Status = models.CredentialStatusRevoked
				if err := credentials.Update(ctx, credential); err != nil {
					return err
				}
			}
		}

		return audits.Append(ctx, &models.AuditLog{
			ID:           uuid.NewString(),
			TenantID:     in.TenantID,
			ActorType:    "resident",
			ActorID:      in.ResidentID,
			Action:       "revoke_qr",
			ResourceType: "qr_token",
			ResourceID:   qrToken.ID,
			Outcome:      "success",
			Message:      in.Reason,
		})
	})
}

// Classification values returned by Scan.
const (
	ClassActive  = "active"
	ClassRevoked = "revoked"
	ClassExpired = "expired"
	ClassUsed    = "used"
)

// Scan classifies a token without mutating device state or opening the gate.
func (s *Service) Scan(ctx context.Context, tenantID, token string) (string, error) {
	now := s.nowFunc()
	var class string
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		tokens := database.NewQrTokenRepository(tx)
		audits := database.NewAuditLogRepository(tx)

		qrToken, err := tokens.GetByToken(ctx, tenantID, token)
		if err != nil {
			if err == database.ErrNotFound {
				return ErrNotFound
			}
			return err
		}
		switch {
		case qrToken.RevokedAt != nil:
			class = ClassRevoked
		case !qrToken.ExpiresAt.After(now):
			class = ClassExpired
		case qrToken.MaxUses > 0 && qrToken.UseCount >= qrToken.MaxUses:
			class = ClassUsed
		default:
			class = ClassActive
		}

		return audits.Append(ctx, &models.AuditLog{
			ID:           uuid.NewString(),
			TenantID:     tenantID,
			ActorType:    "visitor",
			Action:       "scan_qr",
			ResourceType: "qr_token",
			ResourceID:   qrToken.ID,
			Outcome:      "success",
			Message:      class,
		})
	})
	if err != nil {
		return "", err
	}
	return class, nil
}
