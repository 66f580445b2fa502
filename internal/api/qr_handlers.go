package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/javierd009/concierge/internal/api/middleware"
	"github.com/javierd009/concierge/internal/qr"
)

type issueVisitRequest struct {
	ResidentID        string     `json:"resident_id"`
	VisitorName       string     `json:"visitor_name"`
	Plate             string     `json:"plate"`
	IdentificationNum string     `json:"identification_num"`
	ValidFrom         *time.Time `json:"valid_from"`
	ValidUntil        *time.Time `json:"valid_until"`
	AllowedPoints     []string   `json:"allowed_points"`
	MaxUses           int        `json:"max_uses"`
	AuthorizationType string     `json:"authorization_type"`
}

// handleIssueVisit implements POST /qr/issue-visit.
func (s *Server) handleIssueVisit(w http.ResponseWriter, r *http.Request) {
	var req issueVisitRequest
	if msg := readJSON(r, &req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if req.ResidentID == "" {
		writeError(w, http.StatusBadRequest, "resident_id is required")
		return
	}
	if msg := validateRequiredStringLen("visitor_name", req.VisitorName, maxNameLen); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if msg := validateStringLen("plate", req.Plate, maxShortStringLen); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if msg := validateStringLen("identification_num", req.IdentificationNum, maxShortStringLen); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if msg := validateIntRange("max_uses", &req.MaxUses, 0, 1000); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	tenantID := middleware.TenantIDFromContext(r.Context())
	result, err := s.qr.Issue(r.Context(), qr.IssueInput{
		TenantID:          tenantID,
		ResidentID:        req.ResidentID,
		VisitorName:       req.VisitorName,
		Plate:             req.Plate,
		IdentificationNum: req.IdentificationNum,
		ValidFrom:         req.ValidFrom,
		ValidUntil:        req.ValidUntil,
		AllowedPoints:     req.AllowedPoints,
		MaxUses:           req.MaxUses,
		AuthorizationType: req.AuthorizationType,
	})
	if err != nil {
		writeQRError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"visitor_id":        result.VisitorID,
		"credential_id":     result.CredentialID,
		"qr_token_id":       result.QrTokenID,
		"token":             result.Token,
		"card_no":           result.CardNo,
		"employee_no":       result.EmployeeNo,
		"printable_url":     s.cfg.PublicBaseURL + "/qr/" + result.Token,
		"expires_at":        result.ExpiresAt,
		"provisioned":       result.ProvisionedOn,
		"provisioning_mode": result.ProvisioningMod,
	})
}

type consumeRequest struct {
	Token       string `json:"token"`
	AccessPoint string `json:"access_point"`
	Direction   string `json:"direction"`
}

// handleConsume implements POST /qr/consume.
func (s *Server) handleConsume(w http.ResponseWriter, r *http.Request) {
	var req consumeRequest
	if msg := readJSON(r, &req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	tenantID := middleware.TenantIDFromContext(r.Context())
	result, err := s.qr.Consume(r.Context(), qr.ConsumeInput{
		TenantID:    tenantID,
		Token:       req.Token,
		AccessPoint: req.AccessPoint,
		Direction:   req.Direction,
	})
	if err != nil {
		writeQRError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accepted":    result.Accepted,
		"use_count":   result.UseCount,
		"max_uses":    result.MaxUses,
		"gate_opened": result.GateOpened,
		"gate_method": result.GateMethod,
	})
}

type revokeRequest struct {
	ResidentID string `json:"resident_id"`
	Token      string `json:"token"`
	Reason     string `json:"reason"`
}

// handleRevoke implements POST /qr/revoke.
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if msg := readJSON(r, &req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if req.ResidentID == "" || req.Token == "" {
		writeError(w, http.StatusBadRequest, "resident_id and token are required")
		return
	}
	if msg := validateStringLen("reason", req.Reason, maxNameLen); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	tenantID := middleware.TenantIDFromContext(r.Context())
	err := s.qr.Revoke(r.Context(), qr.RevokeInput{
		TenantID:   tenantID,
		ResidentID: req.ResidentID,
		Token:      req.Token,
		Reason:     req.Reason,
	})
	if err != nil {
		writeQRError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"revoked": true,
		"token":   req.Token,
	})
}

// handleScan implements GET /qr/{token}, the landing-page scan. Rendering a
// branded HTML page is out of scope here; the endpoint still has to carry
// the exact status-code contract (200/410/404) a physical landing page would.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	tenantID := middleware.TenantIDFromContext(r.Context())

	class, err := s.qr.Scan(r.Context(), tenantID, token)
	if err != nil {
		writeQRError(w, err)
		return
	}

	status := http.StatusOK
	switch class {
	case qr.ClassRevoked, qr.ClassExpired, qr.ClassUsed:
		status = http.StatusGone
	}
	writeJSON(w, status, map[string]any{"status": class})
}

// writeQRError maps qr package sentinel errors onto the status codes named
// in the error handling design (not found=404, forbidden=403, gone=410,
// gateway failure=502).
func writeQRError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, qr.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, qr.ErrForbiddenOwner):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, qr.ErrRevoked), errors.Is(err, qr.ErrExpired), errors.Is(err, qr.ErrUsedUp):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, qr.ErrForbiddenPoint):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, qr.ErrInvalidWindow), errors.Is(err, qr.ErrInvalidPoint):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, qr.ErrProvisioning):
		writeError(w, http.StatusBadGateway, "could not provision credential")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
