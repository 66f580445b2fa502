package api

import (
	"database/sql"
	"net/http"

	"github.com/google/uuid"

	"github.com/javierd009/concierge/internal/api/middleware"
	"github.com/javierd009/concierge/internal/database"
	"github.com/javierd009/concierge/internal/database/models"
)

type logOpenRequest struct {
	AccessPoint  string  `json:"access_point"`
	Success      bool    `json:"success"`
	ActorChannel string  `json:"actor_channel"`
	ActorPhone   string  `json:"actor_phone"`
	MessageID    string  `json:"message_id"`
	ResidentID   string  `json:"resident_id"`
	DeviceHost   string  `json:"device_host"`
	DoorID       *int    `json:"door_id"`
	Method       string  `json:"method"`
}

// handleLogOpen implements POST /audit/log-open, used by the fast-path
// dispatcher and the WhatsApp command handler to record a gate-open attempt
// that did not go through the QR consume flow.
func (s *Server) handleLogOpen(w http.ResponseWriter, r *http.Request) {
	var req logOpenRequest
	if msg := readJSON(r, &req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if !models.ValidAccessPoint(req.AccessPoint) {
		writeError(w, http.StatusBadRequest, "unknown access point")
		return
	}
	if req.ActorChannel == "" {
		writeError(w, http.StatusBadRequest, "actor_channel is required")
		return
	}
	if msg := validateNoControlChars("method", req.Method); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	tenantID := middleware.TenantIDFromContext(r.Context())
	eventType := "denied"
	outcome := "failure"
	if req.Success {
		eventType = "open_gate"
		outcome = "success"
	}

	err := s.db.WithTx(r.Context(), func(tx *sql.Tx) error {
		accessLogs := database.NewAccessLogRepository(tx)
		audits := database.NewAuditLogRepository(tx)

		if err := accessLogs.Append(r.Context(), &models.AccessLog{
			ID:                uuid.NewString(),
			TenantID:          tenantID,
			EventType:         eventType,
			AccessPoint:       req.AccessPoint,
			ResidentID:        req.ResidentID,
			AuthorizationMeth: req.ActorChannel,
		}); err != nil {
			return err
		}

		return audits.Append(r.Context(), &models.AuditLog{
			ID:           uuid.NewString(),
			TenantID:     tenantID,
			ActorType:    actorTypeFor(req.ActorChannel),
			ActorID:      req.ResidentID,
			ActorLabel:   req.ActorPhone,
			Action:       "log_open",
			ResourceType: "access_point",
			ResourceID:   req.AccessPoint,
			Outcome:      outcome,
			Message:      req.Method,
		})
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"logged": true})
}

func actorTypeFor(channel string) string {
	switch channel {
	case "whatsapp", "voice":
		return "resident"
	case "guard":
		return "guard"
	default:
		return "system"
	}
}
