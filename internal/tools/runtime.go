// Package tools implements the Tool Runtime: the fixed catalog of functions
// the realtime voice agent can call mid-conversation.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/javierd009/concierge/internal/config"
	"github.com/javierd009/concierge/internal/database"
	"github.com/javierd009/concierge/internal/database/models"
	"github.com/javierd009/concierge/internal/devices"
)

// CallControl is the telephony control plane surface transfer_to_guard needs.
// The voice bridge session implements this for the call it owns.
type CallControl interface {
	TransferToExtension(ctx context.Context, channelID, extension string) (bool, error)
}

// Descriptor is one entry of the fixed tool catalog presented to the model.
type Descriptor struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON Schema, forwarded verbatim in session.update
}

// Runtime executes tool calls against persistence and the access devices.
type Runtime struct {
	db   *database.DB
	cfg  *config.Config
	call CallControl
}

// New constructs a Runtime. call may be nil outside an active telephony
// session (e.g. in tests); transfer_to_guard then reports unavailable.
func New(db *database.DB, cfg *config.Config, call CallControl) *Runtime {
	return &Runtime{db: db, cfg: cfg, call: call}
}

// Catalog returns the fixed tool descriptors in call order, forwarded to the
// realtime model in session.update.
func Catalog() []Descriptor {
	return []Descriptor{
		{Name: "find_resident", Description: "Buscar un residente por nombre o número de casa/departamento."},
		{Name: "check_preauthorized_visitor", Description: "Verificar si hay una autorización previa para este visitante."},
		{Name: "request_authorization", Description: "Enviar solicitud de autorización al residente por WhatsApp."},
		{Name: "open_gate", Description: "Abrir la puerta/portón de acceso."},
		{Name: "transfer_to_guard", Description: "Transferir la llamada a un guardia de seguridad humano."},
		{Name: "log_visit", Description: "Registrar la visita en la bitácora del condominio."},
	}
}

// Execute dispatches name to its handler. A JSON-unmarshal failure of
// argsJSON never propagates as an error: it is folded into the returned
// result under "error", per the tool runtime's edge-case handling.
func (r *Runtime) Execute(ctx context.Context, name string, argsJSON []byte, tenantID, channelID string) json.RawMessage {
	var args map[string]any
	if len(argsJSON) > 0 {
		if err := json.Unmarshal(argsJSON, &args); err != nil {
			return mustMarshal(map[string]any{"error": fmt.Sprintf("invalid arguments: %v", err)})
		}
	}
	if args == nil {
		args = map[string]any{}
	}

	var result map[string]any
	switch name {
	case "find_resident":
		result = r.findResident(ctx, tenantID, args)
	case "check_preauthorized_visitor":
		result = r.checkPreauthorizedVisitor(ctx, tenantID, args)
	case "request_authorization":
		result = r.requestAuthorization(ctx, tenantID, args)
	case "open_gate":
		result = r.openGate(ctx, tenantID, args)
	case "transfer_to_guard":
		result = r.transferToGuard(ctx, channelID, args)
	case "log_visit":
		result = r.logVisit(ctx, tenantID, args)
	default:
		result = map[string]any{"error": fmt.Sprintf("unknown tool: %s", name)}
	}
	return mustMarshal(result)
}

func mustMarshal(v map[string]any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{"error":"internal encoding error"}`)
	}
	return b
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// findResident backs the find_resident tool, sanitizing rows to
// {id, name, unit, building} and capping results at 5.
func (r *Runtime) findResident(ctx context.Context, tenantID string, args map[string]any) map[string]any {
	name, unit := stringArg(args, "name"), stringArg(args, "unit")

	residents, err := database.NewResidentRepository(r.db).FindByNameOrUnit(ctx, tenantID, name, unit, 5)
	if err != nil {
		slog.Warn("find_resident query failed", "error", err)
		if r.cfg.DemoMode {
			return demoFindResident(name, unit)
		}
		return map[string]any{"found": false, "message": "No pude verificar la información. ¿Lo comunico con un guardia?"}
	}
	if len(residents) == 0 {
		if r.cfg.DemoMode {
			return demoFindResident(name, unit)
		}
		return map[string]any{"found": false, "message": "No se encontró ningún residente con esos datos"}
	}

	safe := make([]map[string]any, 0, len(residents))
	for _, res := range residents {
		safe = append(safe, map[string]any{"id": res.ID, "name": res.Name, "unit": res.Unit, "building": res.Building})
	}
	return map[string]any{
		"found":     true,
		"count":     len(safe),
		"residents": safe,
		"message":   fmt.Sprintf("Se encontraron %d residente(s)", len(safe)),
	}
}

func demoFindResident(name, unit string) map[string]any {
	if unit == "" {
		unit = "1"
	}
	if name == "" {
		name = "Residente"
	}
	return map[string]any{
		"found":     true,
		"count":     1,
		"residents": []map[string]any{{"id": "demo-001", "name": name, "unit": unit, "building": "A"}},
		"message":   "Residente encontrado",
		"demo":      true,
	}
}

// checkPreauthorizedVisitor backs the check_preauthorized_visitor tool.
func (r *Runtime) checkPreauthorizedVisitor(ctx context.Context, tenantID string, args map[string]any) map[string]any {
	visitorName, residentID, unit := stringArg(args, "visitor_name"), stringArg(args, "resident_id"), stringArg(args, "unit")

	visitor, err := database.NewVisitorRepository(r.db).FindPreauthorized(ctx, tenantID, visitorName, residentID, unit)
	if err != nil {
		slog.Warn("check_preauthorized_visitor query failed", "error", err)
		return map[string]any{"authorized": false, "message": "No hay autorización previa registrada"}
	}
	if visitor == nil {
		return map[string]any{"authorized": false, "message": "No hay autorización previa para este visitante"}
	}

	result := map[string]any{
		"authorized":       true,
		"authorization_id": visitor.ID,
		"message":          "Visitante pre-autorizado",
	}
	if visitor.ValidUntil != nil {
		result["expires_at"] = visitor.ValidUntil.Format("2006-01-02T15:04:05Z07:00")
	}
	return result
}

// requestAuthorization hands a visit off to the out-of-scope WhatsApp
// channel and returns immediately; the resident's reply arrives
// asynchronously and is out of scope for this runtime.
func (r *Runtime) requestAuthorization(ctx context.Context, tenantID string, args map[string]any) map[string]any {
	residentID, visitorName := stringArg(args, "resident_id"), stringArg(args, "visitor_name")
	if residentID == "" || visitorName == "" {
		return map[string]any{"sent": false, "message": "Falta información del residente o visitante"}
	}

	requestID := uuid.NewString()
	if err := database.NewAuditLogRepository(r.db).Append(ctx, &models.AuditLog{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		ActorType:    "system",
		ActorLabel:   "voice_agent",
		Action:       "request_authorization",
		ResourceType: "resident",
		ResourceID:   residentID,
		Outcome:      "success",
		Message:      fmt.Sprintf("authorization requested for visitor %s", visitorName),
	}); err != nil {
		slog.Warn("request_authorization audit append failed", "error", err)
	}

	if r.cfg.DemoMode {
		return map[string]any{
			"sent":             true,
			"request_id":       requestID,
			"message":          "Estoy contactando al residente por WhatsApp. Por favor espere un momento.",
			"waiting_response": true,
			"demo":             true,
		}
	}
	return map[string]any{
		"sent":             true,
		"request_id":       requestID,
		"message":          "Solicitud enviada al residente por WhatsApp",
		"waiting_response": true,
	}
}

// openGate backs the open_gate tool. It attempts the real device call
// whenever an access panel host is configured; demo mode only simulates
// success when that call fails or is skipped.
func (r *Runtime) openGate(ctx context.Context, tenantID string, args map[string]any) map[string]any {
	visitorName := stringArg(args, "visitor_name")
	if visitorName == "" {
		return map[string]any{"success": false, "message": "Falta el nombre del visitante"}
	}

	success := false
	if r.cfg.AccessPanelHost != "" {
		client := devices.Get(r.cfg.AccessPanelHost, r.cfg.AccessPanelPort, r.cfg.DeviceUsername, r.cfg.AccessPanelPassword, r.cfg.DeviceTimeout())
		success = client.OpenDoor(ctx, 1).Success
	}

	if !success && r.cfg.DemoMode {
		return map[string]any{"success": true, "message": "Puerta abierta. Puede pasar.", "demo": true}
	}
	if !success {
		return map[string]any{"success": false, "message": "No pude abrir la puerta. Lo comunico con un guardia."}
	}
	return map[string]any{"success": true, "message": "Puerta abierta"}
}

// transferToGuard blind-redirects the live channel to the guard extension.
func (r *Runtime) transferToGuard(ctx context.Context, channelID string, args map[string]any) map[string]any {
	reason := stringArg(args, "reason")
	if reason == "" {
		reason = "Solicitud de transferencia"
	}
	if r.call == nil {
		return map[string]any{"transferred": false, "message": "Sistema de transferencia no disponible"}
	}

	ok, err := r.call.TransferToExtension(ctx, channelID, r.cfg.GuardExtension)
	if err != nil || !ok {
		return map[string]any{"transferred": false, "message": "No se pudo transferir, el guardia no está disponible"}
	}
	return map[string]any{"transferred": true, "extension": r.cfg.GuardExtension, "message": "Llamada transferida a guardia de seguridad"}
}

// logVisit backs the log_visit tool. Failures here must never fail the
// conversation, so errors are swallowed after being logged.
func (r *Runtime) logVisit(ctx context.Context, tenantID string, args map[string]any) map[string]any {
	visitorName := stringArg(args, "visitor_name")
	status := stringArg(args, "status")
	if visitorName == "" || status == "" {
		return map[string]any{"logged": true, "message": "Visita registrada"}
	}

	eventType := map[string]string{
		"authorized":           "entry",
		"denied":               "denied",
		"pending":              "pending",
		"transferred_to_guard": "transferred",
	}[status]
	if eventType == "" {
		eventType = "entry"
	}

	logID := uuid.NewString()
	entry := &models.AccessLog{
		ID:                logID,
		TenantID:          tenantID,
		EventType:         eventType,
		AccessPoint:       "main_gate",
		ResidentID:        stringArg(args, "resident_id"),
		VisitorID:         "",
		AuthorizationMeth: "voice_agent",
	}
	if err := database.NewAccessLogRepository(r.db).Append(ctx, entry); err != nil {
		slog.Warn("log_visit append failed", "error", err)
	}

	return map[string]any{"logged": true, "visit_id": logID, "message": "Visita registrada"}
}
